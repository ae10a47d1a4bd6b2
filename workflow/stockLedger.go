package workflow

import (
	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/shopspring/decimal"
)

// Reserve and Release are the only writers of Material.RemainingQuantity.
// Both run inside the caller's transaction on a material row it has already locked,
// and keep the in-memory row in step with what was written.

// Reserve decrements the lot's remaining quantity.
func Reserve(tx models.LedgerTx, material *models.Material, qty decimal.Decimal) error {
	qty = models.RoundQuantity(qty)
	if !qty.IsPositive() {
		return models.NewInvalidQuantityError("reserve quantity must be positive")
	}
	if qty.GreaterThan(material.RemainingQuantity) {
		return models.NewInsufficientStockError(material.ID, qty, material.RemainingQuantity)
	}
	remaining := models.RoundQuantity(material.RemainingQuantity.Sub(qty))
	if err := tx.UpdateMaterialRemaining(material.ID, remaining); err != nil {
		return err
	}
	material.RemainingQuantity = remaining
	return nil
}

// Release increments the lot's remaining quantity, never past its original quantity.
func Release(tx models.LedgerTx, material *models.Material, qty decimal.Decimal) error {
	qty = models.RoundQuantity(qty)
	if !qty.IsPositive() {
		return models.NewInvalidQuantityError("release quantity must be positive")
	}
	if headroom := releaseHeadroom(material); qty.GreaterThan(headroom) {
		return models.NewOverReleaseError(material.ID, qty, headroom)
	}
	remaining := models.RoundQuantity(material.RemainingQuantity.Add(qty))
	if err := tx.UpdateMaterialRemaining(material.ID, remaining); err != nil {
		return err
	}
	material.RemainingQuantity = remaining
	return nil
}

func releaseHeadroom(material *models.Material) decimal.Decimal {
	return material.OriginalQuantity.Sub(material.RemainingQuantity)
}

// checkReservable validates every requirement against locked rows before any write is issued.
func checkReservable(materials map[int]*models.Material, requirements []models.BatchConsumption) error {
	for _, req := range requirements {
		m, ok := materials[req.MaterialId]
		if !ok {
			return models.NewNotFoundError("material", req.MaterialId)
		}
		if req.QuantityUsed.GreaterThan(m.RemainingQuantity) {
			return models.NewInsufficientStockError(m.ID, req.QuantityUsed, m.RemainingQuantity)
		}
	}
	return nil
}
