package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type LedgerErrorKind string

const (
	KindInvalidRecipe            LedgerErrorKind = "InvalidRecipe"
	KindInvalidQuantity          LedgerErrorKind = "InvalidQuantity"
	KindNotFound                 LedgerErrorKind = "NotFound"
	KindInsufficientStock        LedgerErrorKind = "InsufficientStock"
	KindInsufficientAvailable    LedgerErrorKind = "InsufficientAvailable"
	KindIdempotencyConflict      LedgerErrorKind = "IdempotencyConflict"
	KindOverRelease              LedgerErrorKind = "OverRelease"
	KindReturnExceedsConsumption LedgerErrorKind = "ReturnExceedsConsumption"
	KindSerializationFailure     LedgerErrorKind = "SerializationFailure"
)

var (
	ErrInvalidRecipe            = errors.New("invalid recipe")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrRecordNotFound           = errors.New("record not found")
	ErrInsufficientStock        = errors.New("insufficient material stock")
	ErrInsufficientAvailable    = errors.New("insufficient available sku quantity")
	ErrIdempotencyConflict      = errors.New("idempotency key reused with a different request")
	ErrOverRelease              = errors.New("release exceeds original material quantity")
	ErrReturnExceedsConsumption = errors.New("return exceeds consumption")
	ErrSerializationFailure     = errors.New("serialization failure")
)

var sentinels = map[LedgerErrorKind]error{
	KindInvalidRecipe:            ErrInvalidRecipe,
	KindInvalidQuantity:          ErrInvalidQuantity,
	KindNotFound:                 ErrRecordNotFound,
	KindInsufficientStock:        ErrInsufficientStock,
	KindInsufficientAvailable:    ErrInsufficientAvailable,
	KindIdempotencyConflict:      ErrIdempotencyConflict,
	KindOverRelease:              ErrOverRelease,
	KindReturnExceedsConsumption: ErrReturnExceedsConsumption,
	KindSerializationFailure:     ErrSerializationFailure,
}

// LedgerError carries the rejection reason plus the authoritative quantities seen under lock,
// so a caller can decide whether to retry with adjusted values.
// errors.Is matches the sentinel of its Kind; errors.As exposes the quantities.
type LedgerError struct {
	Kind       LedgerErrorKind  `json:"kind"`
	Message    string           `json:"message"`
	MaterialId *int             `json:"material_id,omitempty"`
	SkuId      *int             `json:"sku_id,omitempty"`
	Requested  *decimal.Decimal `json:"requested,omitempty"`
	Available  *decimal.Decimal `json:"available,omitempty"`
	cause      error
}

func (e *LedgerError) Error() string {
	var b strings.Builder
	b.WriteString(sentinels[e.Kind].Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *LedgerError) Unwrap() []error {
	out := []error{sentinels[e.Kind]}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// Retryable is true only for transient lock contention.
func (e *LedgerError) Retryable() bool {
	return e.Kind == KindSerializationFailure
}

// IntegrityGuard reports the kinds that signal a caller returning more than was consumed.
func (e *LedgerError) IntegrityGuard() bool {
	return e.Kind == KindOverRelease || e.Kind == KindReturnExceedsConsumption
}

// AsLedgerError unwraps err to a *LedgerError if it carries one.
func AsLedgerError(err error) (*LedgerError, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

func NewInvalidRecipeError(msg string) *LedgerError {
	return &LedgerError{Kind: KindInvalidRecipe, Message: msg}
}

func NewInvalidQuantityError(msg string) *LedgerError {
	return &LedgerError{Kind: KindInvalidQuantity, Message: msg}
}

func NewNotFoundError(entity string, id any) *LedgerError {
	return &LedgerError{Kind: KindNotFound, Message: fmt.Sprintf("%s %v", entity, id)}
}

func NewInsufficientStockError(materialId int, requested, remaining decimal.Decimal) *LedgerError {
	return &LedgerError{
		Kind:       KindInsufficientStock,
		Message:    fmt.Sprintf("material %d has %s remaining, %s requested", materialId, remaining.String(), requested.String()),
		MaterialId: &materialId,
		Requested:  &requested,
		Available:  &remaining,
	}
}

func NewInsufficientAvailableError(skuId int, requested, available int) *LedgerError {
	req := decimal.NewFromInt(int64(requested))
	avail := decimal.NewFromInt(int64(available))
	return &LedgerError{
		Kind:      KindInsufficientAvailable,
		Message:   fmt.Sprintf("sku %d has %d available, %d requested", skuId, available, requested),
		SkuId:     &skuId,
		Requested: &req,
		Available: &avail,
	}
}

func NewOverReleaseError(materialId int, requested, headroom decimal.Decimal) *LedgerError {
	return &LedgerError{
		Kind:       KindOverRelease,
		Message:    fmt.Sprintf("material %d can take back %s, %s requested", materialId, headroom.String(), requested.String()),
		MaterialId: &materialId,
		Requested:  &requested,
		Available:  &headroom,
	}
}

func NewReturnExceedsConsumptionError(skuId, materialId int, requested, outstanding decimal.Decimal) *LedgerError {
	return &LedgerError{
		Kind:       KindReturnExceedsConsumption,
		Message:    fmt.Sprintf("sku %d consumed %s of material %d still outstanding, %s requested", skuId, outstanding.String(), materialId, requested.String()),
		MaterialId: &materialId,
		SkuId:      &skuId,
		Requested:  &requested,
		Available:  &outstanding,
	}
}

func NewIdempotencyConflictError(handlerName, key string) *LedgerError {
	return &LedgerError{Kind: KindIdempotencyConflict, Message: fmt.Sprintf("%s key %q", handlerName, key)}
}

func NewSerializationFailureError(cause error) *LedgerError {
	return &LedgerError{Kind: KindSerializationFailure, cause: cause}
}
