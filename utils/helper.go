package utils

import (
	"errors"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["request"] = err.Error()
		return errorResponse
	}

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

// returns slice removing duplicate elements
func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			// if not exists in map, append it, otherwise do nothing
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

// SortedUniqueInts returns the distinct ids in ascending order.
func SortedUniqueInts(ids []int) []int {
	out := UniqueSlice(ids)
	sort.Ints(out)
	return out
}

func NilIfEmpty[T comparable](ptr T) *T {
	var defaultZero T
	if ptr == defaultZero {
		return nil
	}
	return &ptr
}

// NewOperationRef builds a business operation reference such as "SELL-<uuid>".
func NewOperationRef(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
