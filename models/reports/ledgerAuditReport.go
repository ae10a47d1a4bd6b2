package reports

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/mmdatafocus/craftstock_backend/config"
	"github.com/mmdatafocus/craftstock_backend/utils"
	"github.com/mmdatafocus/craftstock_backend/workflow"
	"github.com/sirupsen/logrus"
)

// LedgerAuditRow is the integrity result for one SKU.
type LedgerAuditRow struct {
	SkuId          int                                `json:"sku_id"`
	Reconstruction *workflow.Reconstruction           `json:"reconstruction"`
	Financial      *workflow.FinancialInvariantReport `json:"financial"`
}

func (r LedgerAuditRow) Ok() bool {
	return r.Reconstruction.Consistent && r.Financial.Ok
}

func (r LedgerAuditRow) GetCellValues() []interface{} {
	return []interface{}{
		r.SkuId,
		r.Reconstruction.Entries,
		r.Reconstruction.RecordedTotal,
		r.Reconstruction.TotalQuantity,
		r.Reconstruction.RecordedAvailable,
		r.Reconstruction.AvailableQuantity,
		r.Reconstruction.Consistent,
		r.Financial.Records,
		r.Financial.Ok,
	}
}

type ledgerViolationRow struct {
	skuId     int
	check     string
	violation string
}

func (r ledgerViolationRow) GetCellValues() []interface{} {
	return []interface{}{r.skuId, r.check, r.violation}
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra logrus.Fields) {
	d := time.Since(started)
	if d < time.Second {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	fields := logrus.Fields{"report": name, "ms": d.Milliseconds(), "correlation_id": cid}
	for k, v := range extra {
		fields[k] = v
	}
	config.GetLogger().WithFields(fields).Warn("slow report")
}

// BuildLedgerAudit runs Reconstruct and CheckFinancialInvariant for each SKU.
// An empty skuIds audits every SKU.
func BuildLedgerAudit(ctx context.Context, engine *workflow.LedgerEngine, skuIds []int) ([]LedgerAuditRow, error) {
	started := time.Now()
	if len(skuIds) == 0 {
		ids, err := engine.SkuIds(ctx)
		if err != nil {
			return nil, err
		}
		skuIds = ids
	}

	rows := make([]LedgerAuditRow, 0, len(skuIds))
	for _, skuId := range skuIds {
		reconstruction, err := engine.Reconstruct(ctx, skuId)
		if err != nil {
			return nil, err
		}
		financial, err := engine.CheckFinancialInvariant(ctx, skuId)
		if err != nil {
			return nil, err
		}
		rows = append(rows, LedgerAuditRow{SkuId: skuId, Reconstruction: reconstruction, Financial: financial})
	}
	logSlowReport(ctx, "LedgerAudit", started, logrus.Fields{"skus": len(rows)})
	return rows, nil
}

var ledgerAuditHeadings = []string{
	"SkuId", "LogEntries", "RecordedTotal", "TotalFromLog", "RecordedAvailable", "AvailableFromLog",
	"StockConsistent", "FinancialRecords", "FinancialOk",
}

func ledgerAuditSheets(rows []LedgerAuditRow) []excelSheet {
	summary := excelSheet{name: "Summary", headings: ledgerAuditHeadings}
	violations := excelSheet{name: "Violations", headings: []string{"SkuId", "Check", "Violation"}}
	for _, row := range rows {
		summary.rows = append(summary.rows, row)
		for _, v := range row.Reconstruction.Violations {
			violations.rows = append(violations.rows, ledgerViolationRow{row.SkuId, "inventory_log", v})
		}
		for _, v := range row.Financial.Violations {
			violations.rows = append(violations.rows, ledgerViolationRow{row.SkuId, "financial", v})
		}
	}
	return []excelSheet{summary, violations}
}

func WriteLedgerAudit(w io.Writer, rows []LedgerAuditRow) error {
	return writeWorkbook(w, ledgerAuditSheets(rows)...)
}

func SaveLedgerAudit(filename string, rows []LedgerAuditRow) error {
	if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		filename += ".xlsx"
	}
	return saveWorkbook(filename, ledgerAuditSheets(rows)...)
}
