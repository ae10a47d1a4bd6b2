package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/mmdatafocus/craftstock_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type CreatePurchaseResult struct {
	PurchaseId           int    `json:"purchase_id"`
	MaterialId           int    `json:"material_id"`
	Code                 string `json:"code"`
	FinancialRecordId    int    `json:"financial_record_id"`
	BusinessOperationRef string `json:"business_operation_ref"`
	Replayed             bool   `json:"replayed"`
}

// CreatePurchase records a purchase, opens its material lot and books the purchase cost
// as EXPENSE, all in one transaction.
func (e *LedgerEngine) CreatePurchase(ctx context.Context, input models.NewPurchase) (result *CreatePurchaseResult, err error) {
	ctx, span := e.startSpan(ctx, HandlerCreatePurchase, attribute.String("material_type", string(input.MaterialType)))
	defer func() { endSpan(span, err) }()

	if err := input.Validate(); err != nil {
		return nil, err
	}

	var replayed bool
	err = e.runInTx(ctx, HandlerCreatePurchase, func(tx models.LedgerTx) error {
		res, rep, err := withIdempotency(ctx, tx, HandlerCreatePurchase, input, func() (*CreatePurchaseResult, error) {
			return e.createPurchaseTx(ctx, tx, input)
		})
		if err != nil {
			return err
		}
		result, replayed = res, rep
		return nil
	})
	if err != nil {
		e.logRejection(HandlerCreatePurchase, err, logrus.Fields{"material_name": input.MaterialName})
		return nil, err
	}
	if replayed {
		result.Replayed = true
		return result, nil
	}
	e.logCommitted(HandlerCreatePurchase, result.BusinessOperationRef, logrus.Fields{"purchase_id": result.PurchaseId})
	return result, nil
}

func (e *LedgerEngine) createPurchaseTx(ctx context.Context, tx models.LedgerTx, input models.NewPurchase) (*CreatePurchaseResult, error) {
	now := e.now()
	actor := utils.ActorOrSystem(ctx)
	ref := utils.NewOperationRef(string(models.FinancialOperationPurchase))

	code := strings.TrimSpace(input.Code)
	if code == "" {
		code = "PUR-" + strings.ToUpper(uuid.NewString()[:8])
	}
	purchasedAt := now
	if input.PurchasedAt != nil {
		purchasedAt = input.PurchasedAt.UTC()
	}
	quantity := models.RoundQuantity(input.Quantity)
	purchase := &models.Purchase{
		Code:         code,
		MaterialName: input.MaterialName,
		MaterialType: input.MaterialType,
		Quantity:     quantity,
		UnitPrice:    input.UnitPrice,
		TotalPrice:   input.TotalPrice(),
		Supplier:     input.Supplier,
		PurchasedAt:  purchasedAt,
		CreatedBy:    actor,
	}
	if err := tx.CreatePurchase(purchase); err != nil {
		return nil, err
	}

	material := &models.Material{
		PurchaseId:        purchase.ID,
		Name:              input.MaterialName,
		MaterialType:      input.MaterialType,
		OriginalQuantity:  quantity,
		RemainingQuantity: quantity,
		UnitCost:          input.UnitPrice,
	}
	if err := tx.CreateMaterial(material); err != nil {
		return nil, err
	}

	purchaseId := purchase.ID
	record := &models.FinancialRecord{
		Type:                 models.FinancialRecordTypeExpense,
		Amount:               purchase.TotalPrice,
		BusinessOperationRef: ref,
		Operation:            models.FinancialOperationPurchase,
		PurchaseId:           &purchaseId,
		Description:          fmt.Sprintf("%s %s (%s %s)", ReasonPurchase, code, quantity.String(), input.MaterialType),
		Actor:                actor,
		RecordedAt:           now,
	}
	if err := tx.AppendFinancialRecord(record); err != nil {
		return nil, err
	}

	result := &CreatePurchaseResult{
		PurchaseId:           purchase.ID,
		MaterialId:           material.ID,
		Code:                 code,
		FinancialRecordId:    record.ID,
		BusinessOperationRef: ref,
	}
	if err := enqueueLifecycleEvent(ctx, tx, models.LifecycleEventPurchaseCreated, nil, &purchaseId, ref, result, now); err != nil {
		return nil, err
	}
	return result, nil
}
