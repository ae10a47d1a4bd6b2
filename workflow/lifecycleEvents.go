package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmdatafocus/craftstock_backend/config"
	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/mmdatafocus/craftstock_backend/utils"
)

// enqueueLifecycleEvent writes the outbox row in the operation's own transaction.
// Publishing happens after commit via OutboxDispatcher.
func enqueueLifecycleEvent(ctx context.Context, tx models.LedgerTx, eventType models.LifecycleEventType, skuId *int, purchaseId *int, ref string, payload any, now time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	return tx.EnqueueLifecycleEvent(&models.LifecycleEvent{
		EventType:            eventType,
		SkuId:                skuId,
		PurchaseId:           purchaseId,
		BusinessOperationRef: ref,
		OccurredAt:           now,
		Payload:              body,
		CorrelationId:        correlationId,
		PublishStatus:        models.OutboxPublishStatusPending,
	})
}

// ConvertToLifecycleMessage maps an outbox row to its Pub/Sub payload.
func ConvertToLifecycleMessage(event models.LifecycleEvent) config.LifecycleEventMessage {
	return config.LifecycleEventMessage{
		ID:                   event.ID,
		EventType:            string(event.EventType),
		SkuId:                event.SkuId,
		PurchaseId:           event.PurchaseId,
		BusinessOperationRef: event.BusinessOperationRef,
		OccurredAt:           event.OccurredAt,
		Payload:              event.Payload,
		CorrelationId:        event.CorrelationId,
	}
}
