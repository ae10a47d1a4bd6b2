package workflow

import (
	"context"

	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type MaterialCapacity struct {
	MaterialId            int             `json:"material_id"`
	QuantityNeededPerUnit decimal.Decimal `json:"quantity_needed_per_unit"`
	AvailableQuantity     decimal.Decimal `json:"available_quantity"`
	ProducibleUnits       int64           `json:"producible_units"`
	Limiting              bool            `json:"limiting"`
}

// RestockCapacity is advisory: it is not a reservation, and RestockSku re-checks under lock.
type RestockCapacity struct {
	SkuId                int                `json:"sku_id"`
	ProducibleUnits      int64              `json:"producible_units"`
	BottleneckMaterialId *int               `json:"bottleneck_material_id"`
	Materials            []MaterialCapacity `json:"materials"`
}

func (c *RestockCapacity) MaterialIds() []int {
	ids := make([]int, 0, len(c.Materials))
	for _, m := range c.Materials {
		ids = append(ids, m.MaterialId)
	}
	return ids
}

// GetRestockCapacity reports how many more units the SKU's frozen recipe can make from current stock.
// It reads without locks and never writes.
func (e *LedgerEngine) GetRestockCapacity(ctx context.Context, skuId int) (capacity *RestockCapacity, err error) {
	ctx, span := e.startSpan(ctx, "GetRestockCapacity", attribute.Int("sku_id", skuId))
	defer func() { endSpan(span, err) }()

	if e.Cache != nil {
		if cached, ok := e.Cache.Get(ctx, skuId); ok {
			return cached, nil
		}
	}

	err = e.Store.View(ctx, func(tx models.LedgerTx) error {
		sku, err := tx.GetSku(skuId)
		if err != nil {
			return err
		}
		materials := make(map[int]*models.Material, len(sku.MaterialSignature))
		for _, entry := range sku.MaterialSignature {
			m, err := tx.GetMaterial(entry.MaterialId)
			if err != nil {
				return err
			}
			materials[m.ID] = m
		}
		capacity = ComputeRestockCapacity(sku.ID, sku.MaterialSignature, materials)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.Cache != nil {
		e.Cache.Put(ctx, capacity)
	}
	return capacity, nil
}

// ComputeRestockCapacity takes floor(remaining / quantity_per_unit) per signature entry; the
// minimum across entries is the producible count. Every entry reaching that minimum is limiting,
// and the lowest such material id is reported as the bottleneck.
func ComputeRestockCapacity(skuId int, signature models.MaterialSignature, materials map[int]*models.Material) *RestockCapacity {
	capacity := &RestockCapacity{SkuId: skuId, Materials: make([]MaterialCapacity, 0, len(signature))}
	if len(signature) == 0 {
		return capacity
	}

	minUnits := int64(-1)
	for _, entry := range signature {
		remaining := decimal.Zero
		if m, ok := materials[entry.MaterialId]; ok {
			remaining = m.RemainingQuantity
		}
		units := producibleUnits(remaining, entry.QuantityPerUnit)
		capacity.Materials = append(capacity.Materials, MaterialCapacity{
			MaterialId:            entry.MaterialId,
			QuantityNeededPerUnit: entry.QuantityPerUnit,
			AvailableQuantity:     remaining,
			ProducibleUnits:       units,
		})
		if minUnits < 0 || units < minUnits {
			minUnits = units
		}
	}

	capacity.ProducibleUnits = minUnits
	for i := range capacity.Materials {
		if capacity.Materials[i].ProducibleUnits != minUnits {
			continue
		}
		capacity.Materials[i].Limiting = true
		if capacity.BottleneckMaterialId == nil {
			id := capacity.Materials[i].MaterialId
			capacity.BottleneckMaterialId = &id
		}
	}
	return capacity
}

func producibleUnits(remaining, perUnit decimal.Decimal) int64 {
	if !perUnit.IsPositive() || !remaining.IsPositive() {
		return 0
	}
	q, _ := remaining.QuoRem(perUnit, 0)
	return q.IntPart()
}
