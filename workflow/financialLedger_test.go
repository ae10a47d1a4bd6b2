package workflow

import (
	"testing"

	"github.com/mmdatafocus/craftstock_backend/models"
)

func intPtr(v int) *int { return &v }

func TestCheckFinancialRows(t *testing.T) {
	skuId := 3
	records := []models.FinancialRecord{
		{ID: 10, Type: models.FinancialRecordTypeExpense, BusinessOperationRef: "CREATE-a", SkuId: &skuId, Amount: dec("40")},
		{ID: 11, Type: models.FinancialRecordTypeIncome, BusinessOperationRef: "SELL-b", SkuId: &skuId, Amount: dec("25")},
		{ID: 12, Type: models.FinancialRecordTypeRefund, BusinessOperationRef: "DESTROY-c", SkuId: &skuId, Amount: dec("10"), ReversesRecordId: intPtr(10)},
	}
	logs := []models.SkuInventoryLog{
		{ID: 1, SkuId: skuId, Action: models.InventoryActionCreate, QuantityDelta: 4, BusinessOperationRef: "CREATE-a", FinancialRecordId: intPtr(10)},
		{ID: 2, SkuId: skuId, Action: models.InventoryActionSell, QuantityDelta: -1, BusinessOperationRef: "SELL-b", FinancialRecordId: intPtr(11)},
		{ID: 3, SkuId: skuId, Action: models.InventoryActionDestroy, QuantityDelta: -1, BusinessOperationRef: "DESTROY-c", FinancialRecordId: intPtr(12)},
	}

	if report := CheckFinancialRows(skuId, logs, records); !report.Ok {
		t.Fatalf("well-formed ledger reported violations: %v", report.Violations)
	}

	t.Run("sell without income", func(t *testing.T) {
		broken := append([]models.SkuInventoryLog(nil), logs...)
		broken = append(broken, models.SkuInventoryLog{ID: 4, SkuId: skuId, Action: models.InventoryActionSell, QuantityDelta: -1, BusinessOperationRef: "SELL-d"})
		if report := CheckFinancialRows(skuId, broken, records); report.Ok {
			t.Fatalf("missing INCOME went unnoticed")
		}
	})

	t.Run("wrong record type", func(t *testing.T) {
		broken := append([]models.SkuInventoryLog(nil), logs...)
		broken[1].FinancialRecordId = intPtr(10)
		if report := CheckFinancialRows(skuId, broken, records); report.Ok {
			t.Fatalf("SELL pointing at an EXPENSE went unnoticed")
		}
	})

	t.Run("orphan record", func(t *testing.T) {
		extra := append([]models.FinancialRecord(nil), records...)
		extra = append(extra, models.FinancialRecord{ID: 13, Type: models.FinancialRecordTypeIncome, BusinessOperationRef: "SELL-e", SkuId: &skuId})
		if report := CheckFinancialRows(skuId, logs, extra); report.Ok {
			t.Fatalf("unreferenced record went unnoticed")
		}
	})

	t.Run("refund reversing nothing", func(t *testing.T) {
		broken := append([]models.FinancialRecord(nil), records...)
		broken[2].ReversesRecordId = nil
		if report := CheckFinancialRows(skuId, logs, broken); report.Ok {
			t.Fatalf("dangling REFUND went unnoticed")
		}
	})
}
