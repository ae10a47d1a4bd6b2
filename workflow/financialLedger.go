package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/craftstock_backend/models"
	"go.opentelemetry.io/otel/attribute"
)

// RecordFor returns the financial record booked for one business operation.
func (e *LedgerEngine) RecordFor(ctx context.Context, businessOperationRef string) (record *models.FinancialRecord, err error) {
	ctx, span := e.startSpan(ctx, "RecordFor", attribute.String("business_operation_ref", businessOperationRef))
	defer func() { endSpan(span, err) }()

	err = e.Store.View(ctx, func(tx models.LedgerTx) error {
		record, err = tx.GetFinancialRecordByRef(businessOperationRef)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

type FinancialInvariantReport struct {
	SkuId      int      `json:"sku_id"`
	LogEntries int      `json:"log_entries"`
	Records    int      `json:"records"`
	Ok         bool     `json:"ok"`
	Violations []string `json:"violations,omitempty"`
}

// CheckFinancialInvariant verifies a SKU's ledger rows against its inventory log.
func (e *LedgerEngine) CheckFinancialInvariant(ctx context.Context, skuId int) (report *FinancialInvariantReport, err error) {
	ctx, span := e.startSpan(ctx, "CheckFinancialInvariant", attribute.Int("sku_id", skuId))
	defer func() { endSpan(span, err) }()

	err = e.Store.View(ctx, func(tx models.LedgerTx) error {
		if _, err := tx.GetSku(skuId); err != nil {
			return err
		}
		logs, err := tx.ListInventoryLogs(skuId)
		if err != nil {
			return err
		}
		records, err := tx.ListFinancialRecordsBySku(skuId)
		if err != nil {
			return err
		}
		report = CheckFinancialRows(skuId, logs, records)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// expectedRecordType is the record type a log entry may point at; ok is false for none.
func expectedRecordType(action models.InventoryAction) (models.FinancialRecordType, bool) {
	switch action {
	case models.InventoryActionSell:
		return models.FinancialRecordTypeIncome, true
	case models.InventoryActionCreate, models.InventoryActionAdjust:
		return models.FinancialRecordTypeExpense, true
	case models.InventoryActionDestroy:
		return models.FinancialRecordTypeRefund, true
	}
	return "", false
}

// CheckFinancialRows checks that
//   - every SELL has exactly one INCOME record under its operation ref, linked from the log,
//   - every log that points at a record points at one of the matching type and operation ref,
//   - every SKU-linked record is referenced by exactly one log entry,
//   - no operation ref is booked twice,
//   - every REFUND reverses an EXPENSE of the same SKU.
func CheckFinancialRows(skuId int, logs []models.SkuInventoryLog, records []models.FinancialRecord) *FinancialInvariantReport {
	report := &FinancialInvariantReport{SkuId: skuId, LogEntries: len(logs), Records: len(records)}
	violate := func(format string, args ...any) {
		report.Violations = append(report.Violations, fmt.Sprintf(format, args...))
	}

	byId := make(map[int]models.FinancialRecord, len(records))
	byRef := make(map[string][]models.FinancialRecord, len(records))
	for _, r := range records {
		byId[r.ID] = r
		byRef[r.BusinessOperationRef] = append(byRef[r.BusinessOperationRef], r)
	}
	for ref, rs := range byRef {
		if len(rs) > 1 {
			violate("operation %s has %d financial records", ref, len(rs))
		}
	}

	referenced := make(map[int]int, len(records))
	for _, entry := range logs {
		if entry.Action == models.InventoryActionSell {
			income := 0
			for _, r := range byRef[entry.BusinessOperationRef] {
				if r.Type == models.FinancialRecordTypeIncome {
					income++
				}
			}
			if income != 1 {
				violate("sell log %d (%s) has %d INCOME records", entry.ID, entry.BusinessOperationRef, income)
			}
			if entry.FinancialRecordId == nil {
				violate("sell log %d has no financial record id", entry.ID)
			}
		}

		if entry.FinancialRecordId == nil {
			continue
		}
		referenced[*entry.FinancialRecordId]++
		r, ok := byId[*entry.FinancialRecordId]
		if !ok {
			violate("log %d points at missing financial record %d", entry.ID, *entry.FinancialRecordId)
			continue
		}
		if want, ok := expectedRecordType(entry.Action); !ok || r.Type != want {
			violate("log %d (%s) points at %s record %d", entry.ID, entry.Action, r.Type, r.ID)
		}
		if r.BusinessOperationRef != entry.BusinessOperationRef {
			violate("log %d ref %s != record %d ref %s", entry.ID, entry.BusinessOperationRef, r.ID, r.BusinessOperationRef)
		}
	}

	for _, r := range records {
		if n := referenced[r.ID]; n != 1 {
			violate("financial record %d is referenced by %d log entries", r.ID, n)
		}
		if r.Type != models.FinancialRecordTypeRefund {
			continue
		}
		if r.ReversesRecordId == nil {
			violate("refund %d reverses nothing", r.ID)
			continue
		}
		if reversed, ok := byId[*r.ReversesRecordId]; !ok || reversed.Type != models.FinancialRecordTypeExpense {
			violate("refund %d reverses %d, which is not an EXPENSE of sku %d", r.ID, *r.ReversesRecordId, skuId)
		}
	}

	report.Ok = len(report.Violations) == 0
	return report
}
