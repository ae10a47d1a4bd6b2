package models

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

func GetOutboxStatus(ctx context.Context, db *gorm.DB, businessOperationRef string) (*OutboxStatus, error) {
	ref := strings.TrimSpace(businessOperationRef)
	var rec LifecycleEvent
	if err := db.WithContext(ctx).
		Where("business_operation_ref = ?", ref).
		Order("id DESC").
		First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("lifecycle event", ref)
		}
		return nil, err
	}
	return outboxStatusOf(rec), nil
}

// ReprocessOutbox puts FAILED or DEAD events of one operation back in the dispatch queue
// with a fresh attempt budget. SENT events are left alone.
func ReprocessOutbox(ctx context.Context, db *gorm.DB, businessOperationRef string) (*OutboxStatus, error) {
	ref := strings.TrimSpace(businessOperationRef)
	res := db.WithContext(ctx).
		Model(&LifecycleEvent{}).
		Where("business_operation_ref = ? AND publish_status IN ?", ref, []string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"publish_status":   OutboxPublishStatusPending,
			"publish_attempts": 0,
			"next_attempt_at":  nil,
			"locked_at":        nil,
			"locked_by":        nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, NewNotFoundError("failed lifecycle event", ref)
	}
	return GetOutboxStatus(ctx, db, ref)
}
