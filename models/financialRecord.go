package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FinancialRecord is immutable. A reversal is a new REFUND row pointing at the
// record it compensates through ReversesRecordId.
type FinancialRecord struct {
	ID                   int                 `gorm:"primary_key" json:"id"`
	Type                 FinancialRecordType `gorm:"size:20;not null;index" json:"type"`
	Amount               decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"amount"`
	BusinessOperationRef string              `gorm:"size:100;not null;uniqueIndex" json:"business_operation_ref"`
	Operation            FinancialOperation  `gorm:"size:20;not null" json:"operation"`
	SkuId                *int                `gorm:"index" json:"sku_id"`
	PurchaseId           *int                `gorm:"index" json:"purchase_id"`
	ReversesRecordId     *int                `gorm:"index" json:"reverses_record_id"`
	Description          string              `gorm:"size:255" json:"description"`
	Actor                string              `gorm:"size:100" json:"actor"`
	RecordedAt           time.Time           `gorm:"index;not null" json:"recorded_at"`
}
