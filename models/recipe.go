package models

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

const (
	QuantityScale int32 = 8
	MoneyScale    int32 = 4
)

func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityScale)
}

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// BatchConsumption is one material's consumption for a whole production batch.
type BatchConsumption struct {
	MaterialId   int             `json:"material_id" binding:"required"`
	QuantityUsed decimal.Decimal `json:"quantity_used"`
}

// SignatureEntry fixes how much of one material a single SKU unit consumes.
type SignatureEntry struct {
	MaterialId      int             `json:"material_id"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

// MaterialSignature is the frozen recipe of a SKU, ordered by ascending material id.
// It is captured once at creation and never recomputed from later state.
type MaterialSignature []SignatureEntry

func (s MaterialSignature) MaterialIds() []int {
	ids := make([]int, 0, len(s))
	for _, e := range s {
		ids = append(ids, e.MaterialId)
	}
	return ids
}

// RequirementsFor returns material id -> quantity needed to produce units more SKU units.
func (s MaterialSignature) RequirementsFor(units int) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal, len(s))
	n := decimal.NewFromInt(int64(units))
	for _, e := range s {
		out[e.MaterialId] = RoundQuantity(e.QuantityPerUnit.Mul(n))
	}
	return out
}

// Equal compares entries exactly, ignoring decimal representation.
func (s MaterialSignature) Equal(other MaterialSignature) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i].MaterialId != other[i].MaterialId || !s[i].QuantityPerUnit.Equal(other[i].QuantityPerUnit) {
			return false
		}
	}
	return true
}

// NormalizeBatch merges duplicate materials, drops zero quantities and sorts by material id.
// Negative quantities and non-positive material ids are rejected with InvalidRecipe.
func NormalizeBatch(batch []BatchConsumption) ([]BatchConsumption, error) {
	merged := make(map[int]decimal.Decimal, len(batch))
	for _, b := range batch {
		if b.MaterialId <= 0 {
			return nil, NewInvalidRecipeError(fmt.Sprintf("invalid material id %d", b.MaterialId))
		}
		if b.QuantityUsed.IsNegative() {
			return nil, NewInvalidRecipeError(fmt.Sprintf("quantity used for material %d must not be negative", b.MaterialId))
		}
		merged[b.MaterialId] = merged[b.MaterialId].Add(RoundQuantity(b.QuantityUsed))
	}

	out := make([]BatchConsumption, 0, len(merged))
	for id, qty := range merged {
		if qty.IsZero() {
			continue
		}
		out = append(out, BatchConsumption{MaterialId: id, QuantityUsed: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialId < out[j].MaterialId })
	return out, nil
}

// DeriveSignature normalizes a production batch to quantity consumed per one SKU unit.
//
// For every material, per-unit quantity = quantity_used / units_produced, rounded to
// QuantityScale. A single remaining material is a direct conversion; several are a combination.
func DeriveSignature(batch []BatchConsumption, unitsProduced int) (MaterialSignature, error) {
	if unitsProduced <= 0 {
		return nil, NewInvalidRecipeError(fmt.Sprintf("units produced must be positive, got %d", unitsProduced))
	}
	normalized, err := NormalizeBatch(batch)
	if err != nil {
		return nil, err
	}
	if len(normalized) == 0 {
		return nil, NewInvalidRecipeError("recipe consumes no material")
	}

	units := decimal.NewFromInt(int64(unitsProduced))
	signature := make(MaterialSignature, 0, len(normalized))
	for _, b := range normalized {
		perUnit := b.QuantityUsed.DivRound(units, QuantityScale)
		if !perUnit.IsPositive() {
			return nil, NewInvalidRecipeError(fmt.Sprintf("quantity used for material %d is too small to split across %d units", b.MaterialId, unitsProduced))
		}
		signature = append(signature, SignatureEntry{MaterialId: b.MaterialId, QuantityPerUnit: perUnit})
	}
	return signature, nil
}
