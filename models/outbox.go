package models

import "time"

// Outbox publish statuses for LifecycleEvent.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// LifecycleEvent is the transactional outbox row written with every committed ledger operation.
// Publishing happens after commit via the outbox dispatcher.
type LifecycleEvent struct {
	ID                   int                `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	EventType            LifecycleEventType `gorm:"size:40;not null;index" json:"event_type"`
	SkuId                *int               `gorm:"index" json:"sku_id"`
	PurchaseId           *int               `gorm:"index" json:"purchase_id"`
	BusinessOperationRef string             `gorm:"size:100;not null;index" json:"business_operation_ref"`
	OccurredAt           time.Time          `gorm:"not null" json:"occurred_at"`
	Payload              []byte             `gorm:"type:text" json:"payload"`
	CorrelationId        string             `gorm:"size:64;index" json:"correlation_id"`
	// publish metadata
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
