package workflow

import (
	"strings"
	"testing"

	"github.com/mmdatafocus/craftstock_backend/models"
)

func logEntry(id int, action models.InventoryAction, delta int) models.SkuInventoryLog {
	return models.SkuInventoryLog{ID: id, SkuId: 1, Action: action, QuantityDelta: delta}
}

func TestFoldInventoryLog(t *testing.T) {
	logs := []models.SkuInventoryLog{
		logEntry(1, models.InventoryActionCreate, 5),
		logEntry(2, models.InventoryActionSell, -2),
		logEntry(3, models.InventoryActionAdjust, 3),
		logEntry(4, models.InventoryActionDestroy, -1),
	}

	r := FoldInventoryLog(&models.Sku{ID: 1, TotalQuantity: 7, AvailableQuantity: 5}, logs)
	if !r.Consistent || r.TotalQuantity != 7 || r.AvailableQuantity != 5 || r.Entries != 4 {
		t.Fatalf("fold = %+v, want consistent 7/5 over 4 entries", r)
	}

	drifted := FoldInventoryLog(&models.Sku{ID: 1, TotalQuantity: 7, AvailableQuantity: 6}, logs)
	if drifted.Consistent || len(drifted.Violations) != 1 || !strings.Contains(drifted.Violations[0], "available") {
		t.Fatalf("drifted stock should be reported: %+v", drifted)
	}
}

func TestFoldInventoryLog_FlagsOversell(t *testing.T) {
	logs := []models.SkuInventoryLog{
		logEntry(1, models.InventoryActionCreate, 1),
		logEntry(2, models.InventoryActionSell, -2),
	}
	r := FoldInventoryLog(&models.Sku{ID: 1, TotalQuantity: 1, AvailableQuantity: -1}, logs)
	if r.Consistent {
		t.Fatalf("negative available must be a violation")
	}
}
