package models

import "time"

// OutboxStatus is an operator view of the outbox row written for one business operation.
type OutboxStatus struct {
	RecordId             int                `json:"record_id"`
	EventType            LifecycleEventType `json:"event_type"`
	BusinessOperationRef string             `json:"business_operation_ref"`
	SkuId                *int               `json:"sku_id"`
	PurchaseId           *int               `json:"purchase_id"`
	PublishStatus        string             `json:"publish_status"`
	PublishAttempts      int                `json:"publish_attempts"`
	NextAttemptAt        *time.Time         `json:"next_attempt_at"`
	LastPublishError     *string            `json:"last_publish_error"`
	PubSubMessageId      *string            `json:"pubsub_message_id"`
	CreatedAt            time.Time          `json:"created_at"`
	PublishedAt          *time.Time         `json:"published_at"`
}

func outboxStatusOf(rec LifecycleEvent) *OutboxStatus {
	return &OutboxStatus{
		RecordId:             rec.ID,
		EventType:            rec.EventType,
		BusinessOperationRef: rec.BusinessOperationRef,
		SkuId:                rec.SkuId,
		PurchaseId:           rec.PurchaseId,
		PublishStatus:        rec.PublishStatus,
		PublishAttempts:      rec.PublishAttempts,
		NextAttemptAt:        rec.NextAttemptAt,
		LastPublishError:     rec.LastPublishError,
		PubSubMessageId:      rec.PubSubMessageId,
		CreatedAt:            rec.CreatedAt,
		PublishedAt:          rec.PublishedAt,
	}
}
