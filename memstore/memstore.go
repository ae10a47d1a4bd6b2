// Package memstore is an in-memory models.LedgerStore.
//
// A transaction works on a cloned state under one store-wide mutex and swaps it in
// on success, so a failed transaction leaves nothing behind and concurrent
// transactions serialize exactly as row locks would make them.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/shopspring/decimal"
)

var errReadOnly = errors.New("memstore: write attempted in a read-only view")

type state struct {
	purchases   map[int]models.Purchase
	materials   map[int]models.Material
	usages      map[int]models.MaterialUsage
	products    map[int]models.Product
	skus        map[int]models.Sku
	logs        []models.SkuInventoryLog
	records     []models.FinancialRecord
	events      []models.LifecycleEvent
	idempotency []models.IdempotencyKey
	seq         map[string]int
}

func newState() state {
	return state{
		purchases: map[int]models.Purchase{},
		materials: map[int]models.Material{},
		usages:    map[int]models.MaterialUsage{},
		products:  map[int]models.Product{},
		skus:      map[int]models.Sku{},
		seq:       map[string]int{},
	}
}

func (s state) clone() state {
	out := newState()
	for k, v := range s.purchases {
		out.purchases[k] = v
	}
	for k, v := range s.materials {
		out.materials[k] = v
	}
	for k, v := range s.usages {
		out.usages[k] = v
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.skus {
		out.skus[k] = cloneSku(v)
	}
	out.logs = append([]models.SkuInventoryLog(nil), s.logs...)
	out.records = append([]models.FinancialRecord(nil), s.records...)
	out.events = append([]models.LifecycleEvent(nil), s.events...)
	out.idempotency = append([]models.IdempotencyKey(nil), s.idempotency...)
	for k, v := range s.seq {
		out.seq[k] = v
	}
	return out
}

func cloneSku(s models.Sku) models.Sku {
	s.MaterialSignature = append(models.MaterialSignature(nil), s.MaterialSignature...)
	return s
}

func (s *state) next(table string) int {
	s.seq[table]++
	return s.seq[table]
}

type Store struct {
	mu        sync.RWMutex
	state     state
	nowFn     func() time.Time
	conflicts int
}

func New() *Store {
	return &Store{state: newState(), nowFn: time.Now}
}

// InjectConflicts makes the next n transactions fail with a serialization failure
// after running their body, discarding every write.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

func (s *Store) Transaction(_ context.Context, fn func(tx models.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &transaction{state: s.state.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return err
	}
	if s.conflicts > 0 {
		s.conflicts--
		return models.NewSerializationFailureError(errors.New("memstore: injected conflict"))
	}
	s.state = tx.state
	return nil
}

func (s *Store) View(_ context.Context, fn func(tx models.LedgerTx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx := &transaction{state: s.state.clone(), now: s.nowFn(), readOnly: true}
	return fn(tx)
}

// FinancialRecords returns every committed record in insertion order.
func (s *Store) FinancialRecords() []models.FinancialRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FinancialRecord(nil), s.state.records...)
}

// LifecycleEvents returns every committed outbox row in insertion order.
func (s *Store) LifecycleEvents() []models.LifecycleEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.LifecycleEvent(nil), s.state.events...)
}

type transaction struct {
	state    state
	now      time.Time
	readOnly bool
}

func (tx *transaction) writable() error {
	if tx.readOnly {
		return errReadOnly
	}
	return nil
}

func (tx *transaction) GetPurchase(id int) (*models.Purchase, error) {
	p, ok := tx.state.purchases[id]
	if !ok {
		return nil, models.NewNotFoundError("purchase", id)
	}
	return &p, nil
}

func (tx *transaction) CreatePurchase(purchase *models.Purchase) error {
	if err := tx.writable(); err != nil {
		return err
	}
	for _, p := range tx.state.purchases {
		if p.Code == purchase.Code {
			return errors.New("memstore: duplicate purchase code " + purchase.Code)
		}
	}
	purchase.ID = tx.state.next("purchases")
	purchase.CreatedAt = tx.now
	tx.state.purchases[purchase.ID] = *purchase
	return nil
}

func (tx *transaction) GetMaterial(id int) (*models.Material, error) {
	m, ok := tx.state.materials[id]
	if !ok {
		return nil, models.NewNotFoundError("material", id)
	}
	return &m, nil
}

func (tx *transaction) LockMaterials(ids []int) (map[int]*models.Material, error) {
	if err := tx.writable(); err != nil {
		return nil, err
	}
	out := make(map[int]*models.Material, len(ids))
	for _, id := range ids {
		m, err := tx.GetMaterial(id)
		if err != nil {
			return nil, err
		}
		out[id] = m
	}
	return out, nil
}

func (tx *transaction) CreateMaterial(material *models.Material) error {
	if err := tx.writable(); err != nil {
		return err
	}
	material.ID = tx.state.next("materials")
	material.CreatedAt = tx.now
	material.UpdatedAt = tx.now
	tx.state.materials[material.ID] = *material
	return nil
}

func (tx *transaction) UpdateMaterialRemaining(id int, remaining decimal.Decimal) error {
	if err := tx.writable(); err != nil {
		return err
	}
	m, ok := tx.state.materials[id]
	if !ok {
		return models.NewNotFoundError("material", id)
	}
	m.RemainingQuantity = remaining
	m.UpdatedAt = tx.now
	tx.state.materials[id] = m
	return nil
}

func (tx *transaction) CreateProduct(product *models.Product) error {
	if err := tx.writable(); err != nil {
		return err
	}
	product.ID = tx.state.next("products")
	product.CreatedAt = tx.now
	tx.state.products[product.ID] = *product
	return nil
}

func (tx *transaction) CreateMaterialUsage(usage *models.MaterialUsage) error {
	if err := tx.writable(); err != nil {
		return err
	}
	usage.ID = tx.state.next("material_usages")
	usage.CreatedAt = tx.now
	usage.UpdatedAt = tx.now
	tx.state.usages[usage.ID] = *usage
	return nil
}

func (tx *transaction) ListMaterialUsagesBySku(skuId int) ([]models.MaterialUsage, error) {
	var out []models.MaterialUsage
	for _, u := range tx.state.usages {
		if u.SkuId == skuId {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *transaction) UpdateMaterialUsageReturned(id int, returned decimal.Decimal) error {
	if err := tx.writable(); err != nil {
		return err
	}
	u, ok := tx.state.usages[id]
	if !ok {
		return models.NewNotFoundError("material usage", id)
	}
	u.ReturnedQuantity = returned
	u.UpdatedAt = tx.now
	tx.state.usages[id] = u
	return nil
}

func (tx *transaction) GetSku(id int) (*models.Sku, error) {
	s, ok := tx.state.skus[id]
	if !ok {
		return nil, models.NewNotFoundError("sku", id)
	}
	s = cloneSku(s)
	return &s, nil
}

func (tx *transaction) LockSku(id int) (*models.Sku, error) {
	if err := tx.writable(); err != nil {
		return nil, err
	}
	return tx.GetSku(id)
}

func (tx *transaction) ListSkuIds() ([]int, error) {
	ids := make([]int, 0, len(tx.state.skus))
	for id := range tx.state.skus {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (tx *transaction) CreateSku(sku *models.Sku) error {
	if err := tx.writable(); err != nil {
		return err
	}
	for _, s := range tx.state.skus {
		if s.Code == sku.Code {
			return errors.New("memstore: duplicate sku code " + sku.Code)
		}
	}
	sku.ID = tx.state.next("skus")
	sku.CreatedAt = tx.now
	sku.UpdatedAt = tx.now
	tx.state.skus[sku.ID] = cloneSku(*sku)
	return nil
}

func (tx *transaction) UpdateSkuStock(sku *models.Sku) error {
	if err := tx.writable(); err != nil {
		return err
	}
	s, ok := tx.state.skus[sku.ID]
	if !ok {
		return models.NewNotFoundError("sku", sku.ID)
	}
	s.AvailableQuantity = sku.AvailableQuantity
	s.TotalQuantity = sku.TotalQuantity
	s.Status = sku.Status
	s.UpdatedAt = tx.now
	tx.state.skus[sku.ID] = s
	return nil
}

func (tx *transaction) AppendInventoryLog(entry *models.SkuInventoryLog) error {
	if err := tx.writable(); err != nil {
		return err
	}
	entry.ID = tx.state.next("sku_inventory_logs")
	tx.state.logs = append(tx.state.logs, *entry)
	return nil
}

func (tx *transaction) ListInventoryLogs(skuId int) ([]models.SkuInventoryLog, error) {
	var out []models.SkuInventoryLog
	for _, l := range tx.state.logs {
		if l.SkuId == skuId {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LoggedAt.Equal(out[j].LoggedAt) {
			return out[i].LoggedAt.Before(out[j].LoggedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tx *transaction) AppendFinancialRecord(record *models.FinancialRecord) error {
	if err := tx.writable(); err != nil {
		return err
	}
	for _, r := range tx.state.records {
		if r.BusinessOperationRef == record.BusinessOperationRef {
			return errors.New("memstore: duplicate business operation ref " + record.BusinessOperationRef)
		}
	}
	record.ID = tx.state.next("financial_records")
	tx.state.records = append(tx.state.records, *record)
	return nil
}

func (tx *transaction) GetFinancialRecordByRef(ref string) (*models.FinancialRecord, error) {
	for _, r := range tx.state.records {
		if r.BusinessOperationRef == ref {
			return &r, nil
		}
	}
	return nil, models.NewNotFoundError("financial record", ref)
}

func (tx *transaction) ListFinancialRecordsBySku(skuId int) ([]models.FinancialRecord, error) {
	var out []models.FinancialRecord
	for _, r := range tx.state.records {
		if r.SkuId != nil && *r.SkuId == skuId {
			out = append(out, r)
		}
	}
	return out, nil
}

func (tx *transaction) EnqueueLifecycleEvent(event *models.LifecycleEvent) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if event.PublishStatus == "" {
		event.PublishStatus = models.OutboxPublishStatusPending
	}
	event.ID = tx.state.next("lifecycle_events")
	event.CreatedAt = tx.now
	event.UpdatedAt = tx.now
	tx.state.events = append(tx.state.events, *event)
	return nil
}

func (tx *transaction) FindIdempotencyKey(handlerName, requestKey string) (*models.IdempotencyKey, error) {
	for _, k := range tx.state.idempotency {
		if k.HandlerName == handlerName && k.RequestKey == requestKey {
			return &k, nil
		}
	}
	return nil, nil
}

func (tx *transaction) SaveIdempotencyKey(key *models.IdempotencyKey) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if existing, _ := tx.FindIdempotencyKey(key.HandlerName, key.RequestKey); existing != nil {
		return models.NewSerializationFailureError(errors.New("memstore: duplicate idempotency key"))
	}
	key.ID = tx.state.next("idempotency_keys")
	key.CreatedAt = tx.now
	tx.state.idempotency = append(tx.state.idempotency, *key)
	return nil
}
