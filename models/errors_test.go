package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestLedgerErrorMatchesItsKindOnly(t *testing.T) {
	err := fmt.Errorf("sell: %w", NewInsufficientAvailableError(7, 3, 2))

	if !errors.Is(err, ErrInsufficientAvailable) {
		t.Fatalf("wrapped error should match ErrInsufficientAvailable")
	}
	if errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("error should not match another kind")
	}
	le, ok := AsLedgerError(err)
	if !ok || *le.SkuId != 7 || !le.Requested.Equal(d("3")) || !le.Available.Equal(d("2")) {
		t.Fatalf("AsLedgerError = %+v, %v", le, ok)
	}
	if le.Retryable() || le.IntegrityGuard() {
		t.Fatalf("InsufficientAvailable is neither retryable nor an integrity guard")
	}
}

func TestSerializationFailureKeepsCause(t *testing.T) {
	cause := errors.New("deadlock found")
	err := NewSerializationFailureError(cause)
	if !errors.Is(err, ErrSerializationFailure) || !errors.Is(err, cause) {
		t.Fatalf("serialization failure should match both sentinel and cause")
	}
	if !err.Retryable() {
		t.Fatalf("serialization failure should be retryable")
	}
	if !strings.Contains(err.Error(), "deadlock found") {
		t.Fatalf("message %q lost the cause", err.Error())
	}
}

func TestIntegrityGuards(t *testing.T) {
	over := NewOverReleaseError(1, d("5"), d("2"))
	ret := NewReturnExceedsConsumptionError(1, 2, d("5"), d("2"))
	if !over.IntegrityGuard() || !ret.IntegrityGuard() {
		t.Fatalf("OverRelease and ReturnExceedsConsumption are integrity guards")
	}
	if !errors.Is(ret, ErrReturnExceedsConsumption) || errors.Is(ret, ErrOverRelease) {
		t.Fatalf("guards must stay distinguishable")
	}
}
