package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is one production batch: what was consumed to make a set of SKU units.
// Its MaterialUsage rows carry the actual consumption.
type Product struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	SkuId                int             `gorm:"index;not null" json:"sku_id"`
	UnitsProduced        int             `gorm:"not null" json:"units_produced"`
	TotalCost            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_cost"`
	BusinessOperationRef string          `gorm:"size:100;not null;index" json:"business_operation_ref"`
	CreatedBy            string          `gorm:"size:100" json:"created_by"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
