package models

import (
	"context"

	"github.com/shopspring/decimal"
)

// LedgerStore is the transactional persistent store the ledger engine runs on.
//
// Transaction runs fn in one atomic unit: every write is committed when fn returns nil
// and none is when it returns an error. Transient lock contention surfaces as an error
// matching ErrSerializationFailure.
//
// View runs fn without locks against committed state; writes through its LedgerTx fail.
type LedgerStore interface {
	Transaction(ctx context.Context, fn func(tx LedgerTx) error) error
	View(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the set of reads and writes one ledger transaction may issue.
// Lookups of a missing row return an error matching ErrRecordNotFound.
type LedgerTx interface {
	GetPurchase(id int) (*Purchase, error)
	CreatePurchase(purchase *Purchase) error

	GetMaterial(id int) (*Material, error)
	// LockMaterials row-locks the given materials one at a time in ascending id order.
	LockMaterials(ids []int) (map[int]*Material, error)
	CreateMaterial(material *Material) error
	UpdateMaterialRemaining(id int, remaining decimal.Decimal) error

	CreateProduct(product *Product) error
	CreateMaterialUsage(usage *MaterialUsage) error
	ListMaterialUsagesBySku(skuId int) ([]MaterialUsage, error)
	UpdateMaterialUsageReturned(id int, returned decimal.Decimal) error

	GetSku(id int) (*Sku, error)
	LockSku(id int) (*Sku, error)
	ListSkuIds() ([]int, error)
	CreateSku(sku *Sku) error
	UpdateSkuStock(sku *Sku) error

	AppendInventoryLog(entry *SkuInventoryLog) error
	ListInventoryLogs(skuId int) ([]SkuInventoryLog, error)

	AppendFinancialRecord(record *FinancialRecord) error
	GetFinancialRecordByRef(ref string) (*FinancialRecord, error)
	ListFinancialRecordsBySku(skuId int) ([]FinancialRecord, error)

	EnqueueLifecycleEvent(event *LifecycleEvent) error

	// FindIdempotencyKey returns nil, nil when no key has been stored.
	FindIdempotencyKey(handlerName, requestKey string) (*IdempotencyKey, error)
	SaveIdempotencyKey(key *IdempotencyKey) error
}
