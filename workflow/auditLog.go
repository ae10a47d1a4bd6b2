package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/craftstock_backend/models"
	"go.opentelemetry.io/otel/attribute"
)

// Reconstruction is the SKU's stock as folded from its inventory log, next to the stored row.
type Reconstruction struct {
	SkuId             int      `json:"sku_id"`
	Entries           int      `json:"entries"`
	TotalQuantity     int      `json:"total_quantity"`
	AvailableQuantity int      `json:"available_quantity"`
	RecordedTotal     int      `json:"recorded_total"`
	RecordedAvailable int      `json:"recorded_available"`
	Consistent        bool     `json:"consistent"`
	Violations        []string `json:"violations,omitempty"`
}

// Reconstruct folds every log delta in (logged_at, id) order: all deltas move available,
// every non-SELL delta moves total. Used by tests and integrity checks, not by request handling.
func (e *LedgerEngine) Reconstruct(ctx context.Context, skuId int) (result *Reconstruction, err error) {
	ctx, span := e.startSpan(ctx, "Reconstruct", attribute.Int("sku_id", skuId))
	defer func() { endSpan(span, err) }()

	err = e.Store.View(ctx, func(tx models.LedgerTx) error {
		sku, err := tx.GetSku(skuId)
		if err != nil {
			return err
		}
		logs, err := tx.ListInventoryLogs(skuId)
		if err != nil {
			return err
		}
		result = FoldInventoryLog(sku, logs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FoldInventoryLog replays logs against an empty SKU and compares the outcome with sku.
func FoldInventoryLog(sku *models.Sku, logs []models.SkuInventoryLog) *Reconstruction {
	r := &Reconstruction{
		SkuId:             sku.ID,
		Entries:           len(logs),
		RecordedTotal:     sku.TotalQuantity,
		RecordedAvailable: sku.AvailableQuantity,
	}
	for _, entry := range logs {
		r.AvailableQuantity += entry.QuantityDelta
		if entry.CountsTowardTotal() {
			r.TotalQuantity += entry.QuantityDelta
		}
		if r.AvailableQuantity < 0 {
			r.Violations = append(r.Violations, fmt.Sprintf("log %d: available went negative (%d)", entry.ID, r.AvailableQuantity))
		}
		if r.AvailableQuantity > r.TotalQuantity {
			r.Violations = append(r.Violations, fmt.Sprintf("log %d: available %d exceeds total %d", entry.ID, r.AvailableQuantity, r.TotalQuantity))
		}
	}
	if r.TotalQuantity != sku.TotalQuantity {
		r.Violations = append(r.Violations, fmt.Sprintf("total from log %d != stored %d", r.TotalQuantity, sku.TotalQuantity))
	}
	if r.AvailableQuantity != sku.AvailableQuantity {
		r.Violations = append(r.Violations, fmt.Sprintf("available from log %d != stored %d", r.AvailableQuantity, sku.AvailableQuantity))
	}
	r.Consistent = len(r.Violations) == 0
	return r
}

// SkuIds lists every SKU id in ascending order.
func (e *LedgerEngine) SkuIds(ctx context.Context) ([]int, error) {
	var ids []int
	err := e.Store.View(ctx, func(tx models.LedgerTx) error {
		var err error
		ids, err = tx.ListSkuIds()
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
