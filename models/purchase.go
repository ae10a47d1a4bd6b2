package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is immutable once created and is the source of exactly one Material lot.
type Purchase struct {
	ID           int             `gorm:"primary_key" json:"id"`
	Code         string          `gorm:"size:64;not null;uniqueIndex" json:"code"`
	MaterialName string          `gorm:"size:100;not null" json:"material_name"`
	MaterialType MaterialType    `gorm:"size:20;not null" json:"material_type"`
	Quantity     decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	TotalPrice   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_price"`
	Supplier     string          `gorm:"size:100" json:"supplier"`
	PurchasedAt  time.Time       `gorm:"index;not null" json:"purchased_at"`
	CreatedBy    string          `gorm:"size:100" json:"created_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewPurchase struct {
	Code         string          `json:"code"`
	MaterialName string          `json:"material_name" binding:"required"`
	MaterialType MaterialType    `json:"material_type" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Supplier     string          `json:"supplier"`
	PurchasedAt  *time.Time      `json:"purchased_at"`
}

func (input *NewPurchase) Validate() error {
	if !input.MaterialType.IsValid() {
		return NewInvalidQuantityError("material type must be BEADS, PIECES or WEIGHT")
	}
	if !input.Quantity.IsPositive() {
		return NewInvalidQuantityError("purchase quantity must be positive")
	}
	if input.UnitPrice.IsNegative() {
		return NewInvalidQuantityError("unit price must not be negative")
	}
	return nil
}

// TotalPrice is quantity × unit price rounded to cents.
func (input *NewPurchase) TotalPrice() decimal.Decimal {
	return RoundMoney(RoundQuantity(input.Quantity).Mul(input.UnitPrice))
}
