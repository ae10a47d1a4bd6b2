package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Material is a stock lot derived 1:1 from a Purchase.
// RemainingQuantity is written only through the stock ledger (Reserve / Release).
type Material struct {
	ID                int             `gorm:"primary_key" json:"id"`
	PurchaseId        int             `gorm:"not null;uniqueIndex" json:"purchase_id"`
	Name              string          `gorm:"size:100;not null" json:"name"`
	MaterialType      MaterialType    `gorm:"size:20;not null" json:"material_type"`
	OriginalQuantity  decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"original_quantity"`
	RemainingQuantity decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"remaining_quantity"`
	UnitCost          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockInvariantHolds reports 0 <= remaining <= original.
func (m *Material) StockInvariantHolds() bool {
	return !m.RemainingQuantity.IsNegative() && m.RemainingQuantity.LessThanOrEqual(m.OriginalQuantity)
}

// MaterialUsage is a consumption edge from a Material to one production batch.
// Returns on destroy raise ReturnedQuantity; rows are never deleted.
type MaterialUsage struct {
	ID               int             `gorm:"primary_key" json:"id"`
	MaterialId       int             `gorm:"index;not null" json:"material_id"`
	ProductId        int             `gorm:"index;not null" json:"product_id"`
	SkuId            int             `gorm:"index;not null" json:"sku_id"`
	QuantityUsed     decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"quantity_used"`
	UnitCostAtTime   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost_at_time"`
	TotalCost        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_cost"`
	ReturnedQuantity decimal.Decimal `gorm:"type:decimal(24,8);not null;default:0" json:"returned_quantity"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Outstanding is the consumed quantity not yet returned.
func (u *MaterialUsage) Outstanding() decimal.Decimal {
	return u.QuantityUsed.Sub(u.ReturnedQuantity)
}
