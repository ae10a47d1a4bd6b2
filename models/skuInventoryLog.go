package models

import (
	"time"
)

// SkuInventoryLog is append-only: no update or delete exists for it.
// Folding QuantityDelta reproduces the SKU's total/available split.
type SkuInventoryLog struct {
	ID                   int                    `gorm:"primary_key" json:"id"`
	SkuId                int                    `gorm:"index:idx_sku_log,priority:1;not null" json:"sku_id"`
	Action               InventoryAction        `gorm:"size:20;not null" json:"action"`
	ReferenceType        InventoryReferenceType `gorm:"size:20;not null" json:"reference_type"`
	ReferenceId          *int                   `json:"reference_id"`
	QuantityDelta        int                    `gorm:"not null" json:"quantity_delta"`
	BusinessOperationRef string                 `gorm:"size:100;not null;index" json:"business_operation_ref"`
	FinancialRecordId    *int                   `gorm:"index" json:"financial_record_id"`
	Reason               *string                `gorm:"type:text" json:"reason"`
	Actor                string                 `gorm:"size:100" json:"actor"`
	LoggedAt             time.Time              `gorm:"index:idx_sku_log,priority:2;not null" json:"logged_at"`
}

// CountsTowardTotal is false only for sales: a sale leaves total_quantity alone.
func (l *SkuInventoryLog) CountsTowardTotal() bool {
	return l.Action != InventoryActionSell
}
