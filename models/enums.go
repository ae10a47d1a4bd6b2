package models

import (
	"errors"
	"strings"
)

type MaterialType string

const (
	MaterialTypeBeads  MaterialType = "BEADS"
	MaterialTypePieces MaterialType = "PIECES"
	MaterialTypeWeight MaterialType = "WEIGHT"
)

func (t MaterialType) IsValid() bool {
	switch t {
	case MaterialTypeBeads, MaterialTypePieces, MaterialTypeWeight:
		return true
	}
	return false
}

// ParseMaterialType accepts any casing of BEADS, PIECES or WEIGHT.
func ParseMaterialType(s string) (MaterialType, error) {
	t := MaterialType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", errors.New("invalid material type")
	}
	return t, nil
}

type SkuStatus string

const (
	SkuStatusCreated       SkuStatus = "CREATED"
	SkuStatusPartiallySold SkuStatus = "PARTIALLY_SOLD"
	SkuStatusSoldOut       SkuStatus = "SOLD_OUT"
	SkuStatusDestroyed     SkuStatus = "DESTROYED"
)

type InventoryAction string

const (
	InventoryActionCreate  InventoryAction = "CREATE"
	InventoryActionSell    InventoryAction = "SELL"
	InventoryActionAdjust  InventoryAction = "ADJUST"
	InventoryActionDestroy InventoryAction = "DESTROY"
)

type InventoryReferenceType string

const (
	InventoryReferenceTypeProduct InventoryReferenceType = "PRODUCT"
	InventoryReferenceTypeSale    InventoryReferenceType = "SALE"
	InventoryReferenceTypeManual  InventoryReferenceType = "MANUAL"
	InventoryReferenceTypeDestroy InventoryReferenceType = "DESTROY"
)

type FinancialRecordType string

const (
	FinancialRecordTypeExpense FinancialRecordType = "EXPENSE"
	FinancialRecordTypeIncome  FinancialRecordType = "INCOME"
	FinancialRecordTypeRefund  FinancialRecordType = "REFUND"
)

// FinancialOperation names the lifecycle operation a record was booked for.
type FinancialOperation string

const (
	FinancialOperationPurchase FinancialOperation = "PURCHASE"
	FinancialOperationCreate   FinancialOperation = "CREATE"
	FinancialOperationRestock  FinancialOperation = "RESTOCK"
	FinancialOperationSell     FinancialOperation = "SELL"
	FinancialOperationDestroy  FinancialOperation = "DESTROY"
)

// RecordTypeFor is the only record type an operation may book.
func (op FinancialOperation) RecordTypeFor() FinancialRecordType {
	switch op {
	case FinancialOperationSell:
		return FinancialRecordTypeIncome
	case FinancialOperationDestroy:
		return FinancialRecordTypeRefund
	default:
		return FinancialRecordTypeExpense
	}
}

// LifecycleEventType is the outbox event name published after commit.
type LifecycleEventType string

const (
	LifecycleEventPurchaseCreated LifecycleEventType = "PURCHASE_CREATED"
	LifecycleEventSkuCreated      LifecycleEventType = "SKU_CREATED"
	LifecycleEventSkuSold         LifecycleEventType = "SKU_SOLD"
	LifecycleEventSkuDestroyed    LifecycleEventType = "SKU_DESTROYED"
	LifecycleEventSkuRestocked    LifecycleEventType = "SKU_RESTOCKED"
)
