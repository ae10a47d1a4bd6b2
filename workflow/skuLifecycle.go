package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/craftstock_backend/config"
	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/mmdatafocus/craftstock_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LedgerEngine owns every cross-entity mutation of the inventory ledger.
//
// Each lifecycle operation runs as one store transaction that locks the SKU row first and
// then the material rows in ascending id order, mutates material stock through Reserve/Release,
// appends to the inventory log and the financial ledger, and enqueues one outbox event.
// Nothing is written when any precondition fails.
type LedgerEngine struct {
	Store  models.LedgerStore
	Logger *logrus.Logger
	// Cache holds advisory restock-capacity answers; nil disables caching.
	Cache CapacityCache
	// BookProductionCost capitalizes production cost on CREATE/RESTOCK as EXPENSE records.
	BookProductionCost bool
	Retry              RetryPolicy
	Now                func() time.Time

	tracer trace.Tracer
}

func NewLedgerEngine(store models.LedgerStore, logger *logrus.Logger) *LedgerEngine {
	return &LedgerEngine{
		Store:              store,
		Logger:             logger,
		BookProductionCost: config.BookProductionCostOnCreate(),
		Retry:              DefaultRetryPolicy(),
		Now:                func() time.Time { return time.Now().UTC() },
		tracer:             otel.Tracer("craftstock/workflow"),
	}
}

func (e *LedgerEngine) log() *logrus.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return config.GetLogger()
}

func (e *LedgerEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *LedgerEngine) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := e.tracer
	if tracer == nil {
		tracer = otel.Tracer("craftstock/workflow")
	}
	return tracer.Start(ctx, "LedgerEngine."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// logRejection logs a failed operation. Integrity guards are bug signals and go out at Warn.
func (e *LedgerEngine) logRejection(op string, err error, fields logrus.Fields) {
	le, ok := models.AsLedgerError(err)
	if !ok {
		config.LogError(e.log(), "LedgerEngine", op, "transaction failed", fields, err)
		return
	}
	entry := e.log().WithFields(fields).WithField("kind", string(le.Kind))
	if le.SkuId != nil {
		entry = entry.WithField("sku_id", *le.SkuId)
	}
	if le.MaterialId != nil {
		entry = entry.WithField("material_id", *le.MaterialId)
	}
	if le.Requested != nil {
		entry = entry.WithField("requested", le.Requested.String())
	}
	if le.Available != nil {
		entry = entry.WithField("outstanding", le.Available.String())
	}
	if le.IntegrityGuard() {
		entry.Warn(op + " rejected by integrity guard: " + err.Error())
		return
	}
	entry.Debug(op + " rejected: " + err.Error())
}

func (e *LedgerEngine) logCommitted(op string, ref string, fields logrus.Fields) {
	e.log().WithFields(fields).WithFields(logrus.Fields{
		"op":                     op,
		"business_operation_ref": ref,
	}).Debug("ledger operation committed")
}

func (e *LedgerEngine) invalidateCapacity(ctx context.Context, materialIds []int) {
	if e.Cache == nil || len(materialIds) == 0 {
		return
	}
	e.Cache.InvalidateMaterials(ctx, materialIds)
}

func newSkuCode() string {
	return "SKU-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

type CreateSkuInput struct {
	Code          string                    `json:"code"`
	Name          string                    `json:"name"`
	Materials     []models.BatchConsumption `json:"materials"`
	UnitsProduced int                       `json:"units_produced"`
}

type CreateSkuResult struct {
	SkuId                int                      `json:"sku_id"`
	Code                 string                   `json:"code"`
	Signature            models.MaterialSignature `json:"signature"`
	ProductId            int                      `json:"product_id"`
	LogId                int                      `json:"log_id"`
	FinancialRecordId    *int                     `json:"financial_record_id,omitempty"`
	BusinessOperationRef string                   `json:"business_operation_ref"`
	Replayed             bool                     `json:"replayed"`
}

// CreateSku produces a new SKU from a batch of materials and freezes its recipe.
func (e *LedgerEngine) CreateSku(ctx context.Context, input CreateSkuInput) (result *CreateSkuResult, err error) {
	ctx, span := e.startSpan(ctx, HandlerCreateSku, attribute.Int("units_produced", input.UnitsProduced))
	defer func() { endSpan(span, err) }()

	signature, err := models.DeriveSignature(input.Materials, input.UnitsProduced)
	if err != nil {
		return nil, err
	}
	requirements, err := models.NormalizeBatch(input.Materials)
	if err != nil {
		return nil, err
	}

	var replayed bool
	err = e.runInTx(ctx, HandlerCreateSku, func(tx models.LedgerTx) error {
		res, rep, err := withIdempotency(ctx, tx, HandlerCreateSku, input, func() (*CreateSkuResult, error) {
			return e.createSkuTx(ctx, tx, input, signature, requirements)
		})
		if err != nil {
			return err
		}
		result, replayed = res, rep
		return nil
	})
	if err != nil {
		e.logRejection(HandlerCreateSku, err, logrus.Fields{"units_produced": input.UnitsProduced})
		return nil, err
	}
	if replayed {
		result.Replayed = true
		return result, nil
	}
	e.invalidateCapacity(ctx, signature.MaterialIds())
	e.logCommitted(HandlerCreateSku, result.BusinessOperationRef, logrus.Fields{"sku_id": result.SkuId})
	return result, nil
}

func (e *LedgerEngine) createSkuTx(ctx context.Context, tx models.LedgerTx, input CreateSkuInput, signature models.MaterialSignature, requirements []models.BatchConsumption) (*CreateSkuResult, error) {
	now := e.now()
	actor := utils.ActorOrSystem(ctx)
	ref := utils.NewOperationRef(string(models.FinancialOperationCreate))
	units := input.UnitsProduced

	materials, err := tx.LockMaterials(signature.MaterialIds())
	if err != nil {
		return nil, err
	}
	if err := checkReservable(materials, requirements); err != nil {
		return nil, err
	}

	code := strings.TrimSpace(input.Code)
	if code == "" {
		code = newSkuCode()
	}
	totalCost := batchCost(materials, requirements)
	sku := &models.Sku{
		Code:              code,
		Name:              input.Name,
		AvailableQuantity: units,
		TotalQuantity:     units,
		MaterialSignature: signature,
		UnitCost:          totalCost.DivRound(decimal.NewFromInt(int64(units)), models.MoneyScale),
		Status:            models.DeriveSkuStatus(units, units, models.InventoryActionCreate),
		CreatedBy:         actor,
	}
	if err := tx.CreateSku(sku); err != nil {
		return nil, err
	}

	product, err := produceBatch(tx, sku.ID, units, ref, actor, materials, requirements)
	if err != nil {
		return nil, err
	}
	recordId, err := e.capitalizeProduction(tx, models.FinancialOperationCreate, sku.ID, product, ref, actor, now)
	if err != nil {
		return nil, err
	}

	productId := product.ID
	entry := &models.SkuInventoryLog{
		SkuId:                sku.ID,
		Action:               models.InventoryActionCreate,
		ReferenceType:        models.InventoryReferenceTypeProduct,
		ReferenceId:          &productId,
		QuantityDelta:        units,
		BusinessOperationRef: ref,
		FinancialRecordId:    recordId,
		Reason:               utils.NilIfEmpty(ReasonProduction),
		Actor:                actor,
		LoggedAt:             now,
	}
	if err := tx.AppendInventoryLog(entry); err != nil {
		return nil, err
	}

	result := &CreateSkuResult{
		SkuId:                sku.ID,
		Code:                 sku.Code,
		Signature:            signature,
		ProductId:            product.ID,
		LogId:                entry.ID,
		FinancialRecordId:    recordId,
		BusinessOperationRef: ref,
	}
	skuId := sku.ID
	if err := enqueueLifecycleEvent(ctx, tx, models.LifecycleEventSkuCreated, &skuId, nil, ref, result, now); err != nil {
		return nil, err
	}
	return result, nil
}

type SellSkuResult struct {
	SkuId                int              `json:"sku_id"`
	LogId                int              `json:"log_id"`
	FinancialRecordId    int              `json:"financial_record_id"`
	BusinessOperationRef string           `json:"business_operation_ref"`
	AvailableQuantity    int              `json:"available_quantity"`
	Status               models.SkuStatus `json:"status"`
	Replayed             bool             `json:"replayed"`
}

type sellSkuRequest struct {
	SkuId     int             `json:"sku_id"`
	Quantity  int             `json:"quantity"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

// SellSku takes quantity units out of the SKU's available stock and books the sale as INCOME.
func (e *LedgerEngine) SellSku(ctx context.Context, skuId int, quantity int, salePrice decimal.Decimal) (result *SellSkuResult, err error) {
	ctx, span := e.startSpan(ctx, HandlerSellSku, attribute.Int("sku_id", skuId), attribute.Int("quantity", quantity))
	defer func() { endSpan(span, err) }()

	if quantity <= 0 {
		return nil, models.NewInvalidQuantityError(fmt.Sprintf("sell quantity must be positive, got %d", quantity))
	}
	if salePrice.IsNegative() {
		return nil, models.NewInvalidQuantityError("sale price must not be negative")
	}

	request := sellSkuRequest{SkuId: skuId, Quantity: quantity, SalePrice: salePrice}
	var replayed bool
	err = e.runInTx(ctx, HandlerSellSku, func(tx models.LedgerTx) error {
		res, rep, err := withIdempotency(ctx, tx, HandlerSellSku, request, func() (*SellSkuResult, error) {
			return e.sellSkuTx(ctx, tx, request)
		})
		if err != nil {
			return err
		}
		result, replayed = res, rep
		return nil
	})
	if err != nil {
		e.logRejection(HandlerSellSku, err, logrus.Fields{"sku_id": skuId, "quantity": quantity})
		return nil, err
	}
	if replayed {
		result.Replayed = true
		return result, nil
	}
	e.logCommitted(HandlerSellSku, result.BusinessOperationRef, logrus.Fields{"sku_id": skuId})
	return result, nil
}

func (e *LedgerEngine) sellSkuTx(ctx context.Context, tx models.LedgerTx, request sellSkuRequest) (*SellSkuResult, error) {
	now := e.now()
	actor := utils.ActorOrSystem(ctx)
	ref := utils.NewOperationRef(string(models.FinancialOperationSell))

	sku, err := tx.LockSku(request.SkuId)
	if err != nil {
		return nil, err
	}
	if request.Quantity > sku.AvailableQuantity {
		return nil, models.NewInsufficientAvailableError(sku.ID, request.Quantity, sku.AvailableQuantity)
	}

	sku.AvailableQuantity -= request.Quantity
	sku.Status = models.DeriveSkuStatus(sku.AvailableQuantity, sku.TotalQuantity, models.InventoryActionSell)
	if err := tx.UpdateSkuStock(sku); err != nil {
		return nil, err
	}

	skuId := sku.ID
	record := &models.FinancialRecord{
		Type:                 models.FinancialRecordTypeIncome,
		Amount:               models.RoundMoney(request.SalePrice),
		BusinessOperationRef: ref,
		Operation:            models.FinancialOperationSell,
		SkuId:                &skuId,
		Description:          fmt.Sprintf("%s of %d x %s", ReasonSale, request.Quantity, sku.Code),
		Actor:                actor,
		RecordedAt:           now,
	}
	if err := tx.AppendFinancialRecord(record); err != nil {
		return nil, err
	}
	recordId := record.ID

	entry := &models.SkuInventoryLog{
		SkuId:                sku.ID,
		Action:               models.InventoryActionSell,
		ReferenceType:        models.InventoryReferenceTypeSale,
		ReferenceId:          &recordId,
		QuantityDelta:        -request.Quantity,
		BusinessOperationRef: ref,
		FinancialRecordId:    &recordId,
		Reason:               utils.NilIfEmpty(ReasonSale),
		Actor:                actor,
		LoggedAt:             now,
	}
	if err := tx.AppendInventoryLog(entry); err != nil {
		return nil, err
	}

	result := &SellSkuResult{
		SkuId:                sku.ID,
		LogId:                entry.ID,
		FinancialRecordId:    record.ID,
		BusinessOperationRef: ref,
		AvailableQuantity:    sku.AvailableQuantity,
		Status:               sku.Status,
	}
	if err := enqueueLifecycleEvent(ctx, tx, models.LifecycleEventSkuSold, &skuId, nil, ref, result, now); err != nil {
		return nil, err
	}
	return result, nil
}

type DestroySkuInput struct {
	SkuId            int  `json:"sku_id"`
	Quantity         int  `json:"quantity"`
	ReturnToMaterial bool `json:"return_to_material"`
	// material id -> quantity to put back into that lot; ignored unless ReturnToMaterial
	ReturnQuantities map[int]decimal.Decimal `json:"return_quantities"`
	Reason           string                  `json:"reason"`
}

type MaterialReturn struct {
	MaterialId        int             `json:"material_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
}

type DestroySkuResult struct {
	SkuId                int              `json:"sku_id"`
	LogId                int              `json:"log_id"`
	FinancialRecordId    *int             `json:"financial_record_id,omitempty"`
	Returned             []MaterialReturn `json:"returned"`
	BusinessOperationRef string           `json:"business_operation_ref"`
	AvailableQuantity    int              `json:"available_quantity"`
	TotalQuantity        int              `json:"total_quantity"`
	Status               models.SkuStatus `json:"status"`
	Replayed             bool             `json:"replayed"`
}

// DestroySku removes quantity units from both available and total stock.
//
// With ReturnToMaterial the caller names how much of each material goes back to stock; the
// amounts are validated against what this SKU consumed and has not yet returned
// (ReturnExceedsConsumption) and then released through the stock ledger (OverRelease).
func (e *LedgerEngine) DestroySku(ctx context.Context, input DestroySkuInput) (result *DestroySkuResult, err error) {
	ctx, span := e.startSpan(ctx, HandlerDestroySku, attribute.Int("sku_id", input.SkuId), attribute.Int("quantity", input.Quantity))
	defer func() { endSpan(span, err) }()

	if input.Quantity <= 0 {
		return nil, models.NewInvalidQuantityError(fmt.Sprintf("destroy quantity must be positive, got %d", input.Quantity))
	}
	var returns []models.BatchConsumption
	if input.ReturnToMaterial {
		returns, err = normalizeReturns(input.ReturnQuantities)
		if err != nil {
			return nil, err
		}
	} else {
		input.ReturnQuantities = nil
	}

	var replayed bool
	err = e.runInTx(ctx, HandlerDestroySku, func(tx models.LedgerTx) error {
		res, rep, err := withIdempotency(ctx, tx, HandlerDestroySku, input, func() (*DestroySkuResult, error) {
			return e.destroySkuTx(ctx, tx, input, returns)
		})
		if err != nil {
			return err
		}
		result, replayed = res, rep
		return nil
	})
	if err != nil {
		e.logRejection(HandlerDestroySku, err, logrus.Fields{"sku_id": input.SkuId, "quantity": input.Quantity})
		return nil, err
	}
	if replayed {
		result.Replayed = true
		return result, nil
	}
	returnedIds := make([]int, 0, len(returns))
	for _, r := range returns {
		returnedIds = append(returnedIds, r.MaterialId)
	}
	e.invalidateCapacity(ctx, returnedIds)
	e.logCommitted(HandlerDestroySku, result.BusinessOperationRef, logrus.Fields{"sku_id": input.SkuId})
	return result, nil
}

func (e *LedgerEngine) destroySkuTx(ctx context.Context, tx models.LedgerTx, input DestroySkuInput, returns []models.BatchConsumption) (*DestroySkuResult, error) {
	now := e.now()
	actor := utils.ActorOrSystem(ctx)
	ref := utils.NewOperationRef(string(models.FinancialOperationDestroy))

	sku, err := tx.LockSku(input.SkuId)
	if err != nil {
		return nil, err
	}
	if input.Quantity > sku.AvailableQuantity {
		return nil, models.NewInsufficientAvailableError(sku.ID, input.Quantity, sku.AvailableQuantity)
	}

	var usages []models.MaterialUsage
	var materials map[int]*models.Material
	if len(returns) > 0 {
		usages, err = tx.ListMaterialUsagesBySku(sku.ID)
		if err != nil {
			return nil, err
		}
		outstanding := outstandingByMaterial(usages)
		for _, r := range returns {
			if r.QuantityUsed.GreaterThan(outstanding[r.MaterialId]) {
				return nil, models.NewReturnExceedsConsumptionError(sku.ID, r.MaterialId, r.QuantityUsed, outstanding[r.MaterialId])
			}
		}

		ids := make([]int, 0, len(returns))
		for _, r := range returns {
			ids = append(ids, r.MaterialId)
		}
		materials, err = tx.LockMaterials(ids)
		if err != nil {
			return nil, err
		}
		for _, r := range returns {
			m := materials[r.MaterialId]
			if headroom := releaseHeadroom(m); r.QuantityUsed.GreaterThan(headroom) {
				return nil, models.NewOverReleaseError(m.ID, r.QuantityUsed, headroom)
			}
		}
	}

	sku.AvailableQuantity -= input.Quantity
	sku.TotalQuantity -= input.Quantity
	sku.Status = models.DeriveSkuStatus(sku.AvailableQuantity, sku.TotalQuantity, models.InventoryActionDestroy)
	if err := tx.UpdateSkuStock(sku); err != nil {
		return nil, err
	}

	returned := make([]MaterialReturn, 0, len(returns))
	for _, r := range returns {
		if err := allocateReturn(tx, usages, sku.ID, r.MaterialId, r.QuantityUsed); err != nil {
			return nil, err
		}
		m := materials[r.MaterialId]
		if err := Release(tx, m, r.QuantityUsed); err != nil {
			return nil, err
		}
		returned = append(returned, MaterialReturn{MaterialId: m.ID, Quantity: r.QuantityUsed, RemainingQuantity: m.RemainingQuantity})
	}

	recordId, err := e.reverseCapitalizedCost(tx, sku, input.Quantity, ref, actor, now)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = ReasonDestroy
		if len(returned) > 0 {
			reason = ReasonDestroyWithReturn
		}
	}
	entry := &models.SkuInventoryLog{
		SkuId:                sku.ID,
		Action:               models.InventoryActionDestroy,
		ReferenceType:        models.InventoryReferenceTypeDestroy,
		QuantityDelta:        -input.Quantity,
		BusinessOperationRef: ref,
		FinancialRecordId:    recordId,
		Reason:               &reason,
		Actor:                actor,
		LoggedAt:             now,
	}
	if err := tx.AppendInventoryLog(entry); err != nil {
		return nil, err
	}

	result := &DestroySkuResult{
		SkuId:                sku.ID,
		LogId:                entry.ID,
		FinancialRecordId:    recordId,
		Returned:             returned,
		BusinessOperationRef: ref,
		AvailableQuantity:    sku.AvailableQuantity,
		TotalQuantity:        sku.TotalQuantity,
		Status:               sku.Status,
	}
	skuId := sku.ID
	if err := enqueueLifecycleEvent(ctx, tx, models.LifecycleEventSkuDestroyed, &skuId, nil, ref, result, now); err != nil {
		return nil, err
	}
	return result, nil
}

type RestockSkuResult struct {
	SkuId                int                       `json:"sku_id"`
	ProductId            int                       `json:"product_id"`
	LogId                int                       `json:"log_id"`
	FinancialRecordId    *int                      `json:"financial_record_id,omitempty"`
	Consumed             []models.BatchConsumption `json:"consumed"`
	BusinessOperationRef string                    `json:"business_operation_ref"`
	AvailableQuantity    int                       `json:"available_quantity"`
	TotalQuantity        int                       `json:"total_quantity"`
	Status               models.SkuStatus          `json:"status"`
	Replayed             bool                      `json:"replayed"`
}

type restockSkuRequest struct {
	SkuId int `json:"sku_id"`
	Units int `json:"units"`
}

// RestockSku produces units more of an existing SKU from its frozen recipe.
// Availability is re-checked under lock whatever a previous capacity query reported.
func (e *LedgerEngine) RestockSku(ctx context.Context, skuId int, units int) (result *RestockSkuResult, err error) {
	ctx, span := e.startSpan(ctx, HandlerRestockSku, attribute.Int("sku_id", skuId), attribute.Int("units", units))
	defer func() { endSpan(span, err) }()

	if units <= 0 {
		return nil, models.NewInvalidQuantityError(fmt.Sprintf("restock units must be positive, got %d", units))
	}

	request := restockSkuRequest{SkuId: skuId, Units: units}
	var replayed bool
	err = e.runInTx(ctx, HandlerRestockSku, func(tx models.LedgerTx) error {
		res, rep, err := withIdempotency(ctx, tx, HandlerRestockSku, request, func() (*RestockSkuResult, error) {
			return e.restockSkuTx(ctx, tx, request)
		})
		if err != nil {
			return err
		}
		result, replayed = res, rep
		return nil
	})
	if err != nil {
		e.logRejection(HandlerRestockSku, err, logrus.Fields{"sku_id": skuId, "units": units})
		return nil, err
	}
	if replayed {
		result.Replayed = true
		return result, nil
	}
	consumedIds := make([]int, 0, len(result.Consumed))
	for _, c := range result.Consumed {
		consumedIds = append(consumedIds, c.MaterialId)
	}
	e.invalidateCapacity(ctx, consumedIds)
	e.logCommitted(HandlerRestockSku, result.BusinessOperationRef, logrus.Fields{"sku_id": skuId})
	return result, nil
}

func (e *LedgerEngine) restockSkuTx(ctx context.Context, tx models.LedgerTx, request restockSkuRequest) (*RestockSkuResult, error) {
	now := e.now()
	actor := utils.ActorOrSystem(ctx)
	ref := utils.NewOperationRef(string(models.FinancialOperationRestock))

	sku, err := tx.LockSku(request.SkuId)
	if err != nil {
		return nil, err
	}
	if len(sku.MaterialSignature) == 0 {
		return nil, models.NewInvalidRecipeError(fmt.Sprintf("sku %d has no material signature", sku.ID))
	}

	requirementMap := sku.MaterialSignature.RequirementsFor(request.Units)
	requirements := make([]models.BatchConsumption, 0, len(requirementMap))
	for id, qty := range requirementMap {
		requirements = append(requirements, models.BatchConsumption{MaterialId: id, QuantityUsed: qty})
	}
	sort.Slice(requirements, func(i, j int) bool { return requirements[i].MaterialId < requirements[j].MaterialId })

	materials, err := tx.LockMaterials(sku.MaterialSignature.MaterialIds())
	if err != nil {
		return nil, err
	}
	if err := checkReservable(materials, requirements); err != nil {
		return nil, err
	}

	product, err := produceBatch(tx, sku.ID, request.Units, ref, actor, materials, requirements)
	if err != nil {
		return nil, err
	}

	sku.TotalQuantity += request.Units
	sku.AvailableQuantity += request.Units
	sku.Status = models.DeriveSkuStatus(sku.AvailableQuantity, sku.TotalQuantity, models.InventoryActionAdjust)
	if err := tx.UpdateSkuStock(sku); err != nil {
		return nil, err
	}

	recordId, err := e.capitalizeProduction(tx, models.FinancialOperationRestock, sku.ID, product, ref, actor, now)
	if err != nil {
		return nil, err
	}

	productId := product.ID
	entry := &models.SkuInventoryLog{
		SkuId:                sku.ID,
		Action:               models.InventoryActionAdjust,
		ReferenceType:        models.InventoryReferenceTypeProduct,
		ReferenceId:          &productId,
		QuantityDelta:        request.Units,
		BusinessOperationRef: ref,
		FinancialRecordId:    recordId,
		Reason:               utils.NilIfEmpty(ReasonRestock),
		Actor:                actor,
		LoggedAt:             now,
	}
	if err := tx.AppendInventoryLog(entry); err != nil {
		return nil, err
	}

	result := &RestockSkuResult{
		SkuId:                sku.ID,
		ProductId:            product.ID,
		LogId:                entry.ID,
		FinancialRecordId:    recordId,
		Consumed:             requirements,
		BusinessOperationRef: ref,
		AvailableQuantity:    sku.AvailableQuantity,
		TotalQuantity:        sku.TotalQuantity,
		Status:               sku.Status,
	}
	skuId := sku.ID
	if err := enqueueLifecycleEvent(ctx, tx, models.LifecycleEventSkuRestocked, &skuId, nil, ref, result, now); err != nil {
		return nil, err
	}
	return result, nil
}

// produceBatch writes one Product and its MaterialUsage rows, reserving each material.
// The materials must be locked by the caller and already checked with checkReservable.
func produceBatch(tx models.LedgerTx, skuId int, units int, ref string, actor string, materials map[int]*models.Material, requirements []models.BatchConsumption) (*models.Product, error) {
	product := &models.Product{
		SkuId:                skuId,
		UnitsProduced:        units,
		TotalCost:            batchCost(materials, requirements),
		BusinessOperationRef: ref,
		CreatedBy:            actor,
	}
	if err := tx.CreateProduct(product); err != nil {
		return nil, err
	}

	for _, req := range requirements {
		m := materials[req.MaterialId]
		if err := Reserve(tx, m, req.QuantityUsed); err != nil {
			return nil, err
		}
		usage := &models.MaterialUsage{
			MaterialId:       m.ID,
			ProductId:        product.ID,
			SkuId:            skuId,
			QuantityUsed:     req.QuantityUsed,
			UnitCostAtTime:   m.UnitCost,
			TotalCost:        models.RoundMoney(req.QuantityUsed.Mul(m.UnitCost)),
			ReturnedQuantity: decimal.Zero,
		}
		if err := tx.CreateMaterialUsage(usage); err != nil {
			return nil, err
		}
	}
	return product, nil
}

func batchCost(materials map[int]*models.Material, requirements []models.BatchConsumption) decimal.Decimal {
	total := decimal.Zero
	for _, req := range requirements {
		if m, ok := materials[req.MaterialId]; ok {
			total = total.Add(models.RoundMoney(req.QuantityUsed.Mul(m.UnitCost)))
		}
	}
	return total
}

func normalizeReturns(quantities map[int]decimal.Decimal) ([]models.BatchConsumption, error) {
	out := make([]models.BatchConsumption, 0, len(quantities))
	for id, qty := range quantities {
		if id <= 0 {
			return nil, models.NewInvalidQuantityError(fmt.Sprintf("invalid material id %d", id))
		}
		if qty.IsNegative() {
			return nil, models.NewInvalidQuantityError(fmt.Sprintf("return quantity for material %d must not be negative", id))
		}
		qty = models.RoundQuantity(qty)
		if qty.IsZero() {
			continue
		}
		out = append(out, models.BatchConsumption{MaterialId: id, QuantityUsed: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialId < out[j].MaterialId })
	return out, nil
}

func outstandingByMaterial(usages []models.MaterialUsage) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal)
	for _, u := range usages {
		out[u.MaterialId] = out[u.MaterialId].Add(u.Outstanding())
	}
	return out
}

// allocateReturn marks qty of materialId as returned across the SKU's usages, oldest first.
func allocateReturn(tx models.LedgerTx, usages []models.MaterialUsage, skuId int, materialId int, qty decimal.Decimal) error {
	left := qty
	for i := range usages {
		u := &usages[i]
		if u.MaterialId != materialId || !left.IsPositive() {
			continue
		}
		take := decimal.Min(left, u.Outstanding())
		if !take.IsPositive() {
			continue
		}
		u.ReturnedQuantity = models.RoundQuantity(u.ReturnedQuantity.Add(take))
		if err := tx.UpdateMaterialUsageReturned(u.ID, u.ReturnedQuantity); err != nil {
			return err
		}
		left = left.Sub(take)
	}
	if left.IsPositive() {
		return models.NewReturnExceedsConsumptionError(skuId, materialId, qty, qty.Sub(left))
	}
	return nil
}

// capitalizeProduction books the batch cost as EXPENSE when production cost is capitalized.
func (e *LedgerEngine) capitalizeProduction(tx models.LedgerTx, op models.FinancialOperation, skuId int, product *models.Product, ref string, actor string, now time.Time) (*int, error) {
	if !e.BookProductionCost || !product.TotalCost.IsPositive() {
		return nil, nil
	}
	record := &models.FinancialRecord{
		Type:                 models.FinancialRecordTypeExpense,
		Amount:               product.TotalCost,
		BusinessOperationRef: ref,
		Operation:            op,
		SkuId:                &skuId,
		Description:          fmt.Sprintf("%s (%d units)", ReasonCapitalizedProduction, product.UnitsProduced),
		Actor:                actor,
		RecordedAt:           now,
	}
	if err := tx.AppendFinancialRecord(record); err != nil {
		return nil, err
	}
	id := record.ID
	return &id, nil
}

// reverseCapitalizedCost appends a REFUND for the destroyed share of capitalized production cost.
// Nothing is booked for a SKU whose production cost was never capitalized, and refunds never
// exceed what is still capitalized.
func (e *LedgerEngine) reverseCapitalizedCost(tx models.LedgerTx, sku *models.Sku, quantity int, ref string, actor string, now time.Time) (*int, error) {
	records, err := tx.ListFinancialRecordsBySku(sku.ID)
	if err != nil {
		return nil, err
	}
	capitalized, refunded := decimal.Zero, decimal.Zero
	var reverses *int
	for _, r := range records {
		switch {
		case r.Type == models.FinancialRecordTypeExpense && (r.Operation == models.FinancialOperationCreate || r.Operation == models.FinancialOperationRestock):
			capitalized = capitalized.Add(r.Amount)
			if reverses == nil || r.Operation == models.FinancialOperationCreate {
				id := r.ID
				reverses = &id
			}
		case r.Type == models.FinancialRecordTypeRefund:
			refunded = refunded.Add(r.Amount)
		}
	}
	if !capitalized.IsPositive() {
		return nil, nil
	}

	amount := models.RoundMoney(sku.UnitCost.Mul(decimal.NewFromInt(int64(quantity))))
	if open := capitalized.Sub(refunded); amount.GreaterThan(open) {
		amount = open
	}
	if !amount.IsPositive() {
		return nil, nil
	}

	skuId := sku.ID
	record := &models.FinancialRecord{
		Type:                 models.FinancialRecordTypeRefund,
		Amount:               amount,
		BusinessOperationRef: ref,
		Operation:            models.FinancialOperationDestroy,
		SkuId:                &skuId,
		ReversesRecordId:     reverses,
		Description:          fmt.Sprintf("%s (%d units)", ReasonProductionCostReverse, quantity),
		Actor:                actor,
		RecordedAt:           now,
	}
	if err := tx.AppendFinancialRecord(record); err != nil {
		return nil, err
	}
	id := record.ID
	return &id, nil
}
