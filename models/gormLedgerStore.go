package models

import (
	"context"
	"errors"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mmdatafocus/craftstock_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errReadOnlyTx = errors.New("write attempted in a read-only view")

// GormLedgerStore runs ledger transactions on MySQL or Postgres through gorm.
type GormLedgerStore struct {
	db *gorm.DB
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

func (s *GormLedgerStore) Transaction(ctx context.Context, fn func(tx LedgerTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLedgerTx{db: tx})
	})
	return classifyTxError(err)
}

func (s *GormLedgerStore) View(ctx context.Context, fn func(tx LedgerTx) error) error {
	return fn(&gormLedgerTx{db: s.db.WithContext(ctx), readOnly: true})
}

// classifyTxError maps lock contention and duplicate-key races to ErrSerializationFailure.
// Ledger errors raised inside the transaction pass through unchanged.
func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsLedgerError(err); ok {
		return err
	}
	if isSerializationErr(err) {
		return NewSerializationFailureError(err)
	}
	return err
}

// idempotencyIndex is the unique index two racing requests with the same Idempotency-Key collide on.
// The loser retries and then replays the winner's stored response.
const idempotencyIndex = "uniq_idem"

func isSerializationErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1213, // deadlock
			1205: // lock wait timeout
			return true
		case 1062: // duplicate key
			return strings.Contains(mysqlErr.Message, idempotencyIndex)
		}
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		case "23505":
			return pgErr.ConstraintName == idempotencyIndex
		}
	}
	return false
}

type gormLedgerTx struct {
	db       *gorm.DB
	readOnly bool
}

func (t *gormLedgerTx) writable() error {
	if t.readOnly {
		return errReadOnlyTx
	}
	return nil
}

func notFound(err error, entity string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewNotFoundError(entity, id)
	}
	return err
}

func (t *gormLedgerTx) GetPurchase(id int) (*Purchase, error) {
	var p Purchase
	if err := t.db.First(&p, id).Error; err != nil {
		return nil, notFound(err, "purchase", id)
	}
	return &p, nil
}

func (t *gormLedgerTx) CreatePurchase(purchase *Purchase) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(purchase).Error
}

func (t *gormLedgerTx) GetMaterial(id int) (*Material, error) {
	var m Material
	if err := t.db.First(&m, id).Error; err != nil {
		return nil, notFound(err, "material", id)
	}
	return &m, nil
}

func (t *gormLedgerTx) LockMaterials(ids []int) (map[int]*Material, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	out := make(map[int]*Material, len(ids))
	for _, id := range utils.SortedUniqueInts(ids) {
		var m Material
		if err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, id).Error; err != nil {
			return nil, notFound(err, "material", id)
		}
		out[id] = &m
	}
	return out, nil
}

func (t *gormLedgerTx) CreateMaterial(material *Material) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(material).Error
}

func (t *gormLedgerTx) UpdateMaterialRemaining(id int, remaining decimal.Decimal) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Model(&Material{}).Where("id = ?", id).Update("remaining_quantity", remaining).Error
}

func (t *gormLedgerTx) CreateProduct(product *Product) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(product).Error
}

func (t *gormLedgerTx) CreateMaterialUsage(usage *MaterialUsage) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(usage).Error
}

func (t *gormLedgerTx) ListMaterialUsagesBySku(skuId int) ([]MaterialUsage, error) {
	var usages []MaterialUsage
	err := t.db.Where("sku_id = ?", skuId).Order("id").Find(&usages).Error
	return usages, err
}

func (t *gormLedgerTx) UpdateMaterialUsageReturned(id int, returned decimal.Decimal) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Model(&MaterialUsage{}).Where("id = ?", id).Update("returned_quantity", returned).Error
}

func (t *gormLedgerTx) GetSku(id int) (*Sku, error) {
	var s Sku
	if err := t.db.First(&s, id).Error; err != nil {
		return nil, notFound(err, "sku", id)
	}
	return &s, nil
}

func (t *gormLedgerTx) LockSku(id int) (*Sku, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	var s Sku
	if err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error; err != nil {
		return nil, notFound(err, "sku", id)
	}
	return &s, nil
}

func (t *gormLedgerTx) ListSkuIds() ([]int, error) {
	var ids []int
	err := t.db.Model(&Sku{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (t *gormLedgerTx) CreateSku(sku *Sku) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(sku).Error
}

func (t *gormLedgerTx) UpdateSkuStock(sku *Sku) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Model(&Sku{}).Where("id = ?", sku.ID).Updates(map[string]interface{}{
		"available_quantity": sku.AvailableQuantity,
		"total_quantity":     sku.TotalQuantity,
		"status":             sku.Status,
	}).Error
}

func (t *gormLedgerTx) AppendInventoryLog(entry *SkuInventoryLog) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(entry).Error
}

func (t *gormLedgerTx) ListInventoryLogs(skuId int) ([]SkuInventoryLog, error) {
	var logs []SkuInventoryLog
	err := t.db.Where("sku_id = ?", skuId).Order("logged_at, id").Find(&logs).Error
	return logs, err
}

func (t *gormLedgerTx) AppendFinancialRecord(record *FinancialRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(record).Error
}

func (t *gormLedgerTx) GetFinancialRecordByRef(ref string) (*FinancialRecord, error) {
	var r FinancialRecord
	if err := t.db.Where("business_operation_ref = ?", ref).First(&r).Error; err != nil {
		return nil, notFound(err, "financial record", ref)
	}
	return &r, nil
}

func (t *gormLedgerTx) ListFinancialRecordsBySku(skuId int) ([]FinancialRecord, error) {
	var records []FinancialRecord
	err := t.db.Where("sku_id = ?", skuId).Order("recorded_at, id").Find(&records).Error
	return records, err
}

func (t *gormLedgerTx) EnqueueLifecycleEvent(event *LifecycleEvent) error {
	if err := t.writable(); err != nil {
		return err
	}
	if event.PublishStatus == "" {
		event.PublishStatus = OutboxPublishStatusPending
	}
	return t.db.Create(event).Error
}

func (t *gormLedgerTx) FindIdempotencyKey(handlerName, requestKey string) (*IdempotencyKey, error) {
	var key IdempotencyKey
	err := t.db.Where("handler_name = ? AND request_key = ?", handlerName, requestKey).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (t *gormLedgerTx) SaveIdempotencyKey(key *IdempotencyKey) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(key).Error
}
