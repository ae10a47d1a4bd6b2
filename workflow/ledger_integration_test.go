package workflow

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/craftstock_backend/config"
	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/mmdatafocus/craftstock_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type recordingPublisher struct {
	mu       sync.Mutex
	failNext int
	sent     []config.LifecycleEventMessage
}

func (p *recordingPublisher) Publish(_ context.Context, msg config.LifecycleEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext > 0 {
		p.failNext--
		return "", errors.New("broker unavailable")
	}
	p.sent = append(p.sent, msg)
	return "msg-" + msg.BusinessOperationRef, nil
}

func TestLedgerOnMySQLAndRedis(t *testing.T) {
	requireIntegration(t)
	connectTestBackends(t)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	db := config.GetDB()

	e := NewLedgerEngine(models.NewGormLedgerStore(db), logger)
	e.BookProductionCost = true
	e.Cache = NewRedisCapacityCache(config.GetRedisDB(), time.Minute, logger)
	if e.Cache == nil {
		t.Fatalf("redis capacity cache was not created")
	}
	ctx := utils.SetActorInContext(context.Background(), "integration")

	purchase, err := e.CreatePurchase(ctx, models.NewPurchase{
		MaterialName: "seed beads",
		MaterialType: models.MaterialTypeBeads,
		Quantity:     decimal.NewFromInt(100),
		UnitPrice:    decimal.RequireFromString("0.5"),
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	created, err := e.CreateSku(ctx, CreateSkuInput{
		Name:          "anklet",
		Materials:     []models.BatchConsumption{{MaterialId: purchase.MaterialId, QuantityUsed: decimal.NewFromInt(40)}},
		UnitsProduced: 4,
	})
	if err != nil {
		t.Fatalf("CreateSku: %v", err)
	}

	capacity, err := e.GetRestockCapacity(ctx, created.SkuId)
	if err != nil || capacity.ProducibleUnits != 6 {
		t.Fatalf("capacity = %+v, %v; want 6", capacity, err)
	}
	if _, ok := e.Cache.Get(ctx, created.SkuId); !ok {
		t.Fatalf("capacity was not cached in redis")
	}

	// concurrent sells contend on the sku row lock
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.SellSku(ctx, created.SkuId, 1, decimal.NewFromInt(12))
		}()
	}
	wg.Wait()

	destroyed, err := e.DestroySku(ctx, DestroySkuInput{SkuId: created.SkuId, Quantity: 0})
	if !errors.Is(err, models.ErrInvalidQuantity) {
		t.Fatalf("destroy of 0 = %+v, %v; want InvalidQuantity", destroyed, err)
	}

	restocked, err := e.RestockSku(ctx, created.SkuId, 2)
	if err != nil {
		t.Fatalf("RestockSku: %v", err)
	}
	if restocked.AvailableQuantity != 2 || restocked.TotalQuantity != 6 {
		t.Fatalf("after restock %d/%d, want 2/6", restocked.AvailableQuantity, restocked.TotalQuantity)
	}
	if _, ok := e.Cache.Get(ctx, created.SkuId); ok {
		t.Fatalf("restock should have invalidated the cached capacity")
	}

	destroyed, err = e.DestroySku(ctx, DestroySkuInput{
		SkuId:            created.SkuId,
		Quantity:         2,
		ReturnToMaterial: true,
		ReturnQuantities: map[int]decimal.Decimal{purchase.MaterialId: decimal.NewFromInt(20)},
	})
	if err != nil {
		t.Fatalf("DestroySku: %v", err)
	}
	if destroyed.Status != models.SkuStatusDestroyed || destroyed.FinancialRecordId == nil {
		t.Fatalf("destroy = %+v, want DESTROYED with a REFUND", destroyed)
	}

	reconstruction, err := e.Reconstruct(ctx, created.SkuId)
	if err != nil || !reconstruction.Consistent {
		t.Fatalf("Reconstruct = %+v, %v", reconstruction, err)
	}
	report, err := e.CheckFinancialInvariant(ctx, created.SkuId)
	if err != nil || !report.Ok {
		t.Fatalf("CheckFinancialInvariant = %+v, %v", report, err)
	}

	var material models.Material
	if err := db.First(&material, purchase.MaterialId).Error; err != nil {
		t.Fatalf("load material: %v", err)
	}
	// 100 - 40 - 20 + 20
	if !material.RemainingQuantity.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("remaining = %s, want 60", material.RemainingQuantity)
	}

	publisher := &recordingPublisher{failNext: 1}
	dispatcher := NewOutboxDispatcher(db, logger, publisher)
	dispatcher.Locker = config.GetRedisLock()
	dispatcher.InitialBackoff = 0
	dispatcher.dispatchOnce(ctx)

	status, err := models.GetOutboxStatus(ctx, db, purchase.BusinessOperationRef)
	if err != nil {
		t.Fatalf("GetOutboxStatus: %v", err)
	}
	if status.PublishStatus != models.OutboxPublishStatusFailed || status.PublishAttempts != 1 {
		t.Fatalf("first event = %+v, want FAILED after one attempt", status)
	}

	dispatcher.dispatchOnce(ctx)
	var pending int64
	if err := db.Model(&models.LifecycleEvent{}).Where("publish_status <> ?", models.OutboxPublishStatusSent).Count(&pending).Error; err != nil {
		t.Fatalf("count unsent events: %v", err)
	}
	if pending != 0 {
		t.Fatalf("%d events still unsent", pending)
	}
	if _, err := models.ReprocessOutbox(ctx, db, purchase.BusinessOperationRef); !errors.Is(err, models.ErrRecordNotFound) {
		t.Fatalf("reprocessing a SENT event err = %v, want NotFound", err)
	}
}
