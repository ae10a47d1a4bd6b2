package models

import "time"

type IdempotencyStatus string

const (
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
)

// IdempotencyKey provides durable, DB-backed idempotency for mutating ledger operations.
// Unique constraint: (handler_name, request_key). The key row is written in the same
// transaction as the operation, so a stored key always has a committed response.
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	RequestKey  string            `gorm:"size:255;not null;index:uniq_idem,unique" json:"request_key"`
	RequestHash string            `gorm:"size:64;not null" json:"request_hash"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	Response    []byte            `gorm:"type:text" json:"response"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
}
