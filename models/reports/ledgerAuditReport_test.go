package reports

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/mmdatafocus/craftstock_backend/memstore"
	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/mmdatafocus/craftstock_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

func auditedEngine(t *testing.T) (*workflow.LedgerEngine, int) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	e := workflow.NewLedgerEngine(memstore.New(), logger)
	e.BookProductionCost = false
	ctx := context.Background()

	purchase, err := e.CreatePurchase(ctx, models.NewPurchase{
		MaterialName: "pearls",
		MaterialType: models.MaterialTypePieces,
		Quantity:     decimal.NewFromInt(30),
		UnitPrice:    decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	created, err := e.CreateSku(ctx, workflow.CreateSkuInput{
		Name:          "earrings",
		Materials:     []models.BatchConsumption{{MaterialId: purchase.MaterialId, QuantityUsed: decimal.NewFromInt(12)}},
		UnitsProduced: 6,
	})
	if err != nil {
		t.Fatalf("CreateSku: %v", err)
	}
	if _, err := e.SellSku(ctx, created.SkuId, 2, decimal.NewFromInt(30)); err != nil {
		t.Fatalf("SellSku: %v", err)
	}
	return e, created.SkuId
}

func TestBuildLedgerAudit_AllSkus(t *testing.T) {
	e, skuId := auditedEngine(t)

	rows, err := BuildLedgerAudit(context.Background(), e, nil)
	if err != nil {
		t.Fatalf("BuildLedgerAudit: %v", err)
	}
	if len(rows) != 1 || rows[0].SkuId != skuId {
		t.Fatalf("rows = %+v, want one row for sku %d", rows, skuId)
	}
	if !rows[0].Ok() {
		t.Fatalf("clean ledger failed the audit: %+v %+v", rows[0].Reconstruction, rows[0].Financial)
	}
	if rows[0].Reconstruction.TotalQuantity != 6 || rows[0].Reconstruction.AvailableQuantity != 4 {
		t.Fatalf("reconstruction = %+v, want 6/4", rows[0].Reconstruction)
	}
}

func TestSaveLedgerAudit_WritesSummaryAndViolations(t *testing.T) {
	e, skuId := auditedEngine(t)
	rows, err := BuildLedgerAudit(context.Background(), e, []int{skuId})
	if err != nil {
		t.Fatalf("BuildLedgerAudit: %v", err)
	}
	rows[0].Financial.Violations = append(rows[0].Financial.Violations, "injected")
	rows[0].Financial.Ok = false

	path := filepath.Join(t.TempDir(), "audit")
	if err := SaveLedgerAudit(path, rows); err != nil {
		t.Fatalf("SaveLedgerAudit: %v", err)
	}

	f, err := excelize.OpenFile(path + ".xlsx")
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); len(got) != 2 || got[0] != "Summary" || got[1] != "Violations" {
		t.Fatalf("sheets = %v", got)
	}
	heading, err := f.GetCellValue("Summary", "A1")
	if err != nil || heading != "SkuId" {
		t.Fatalf("Summary!A1 = %q, %v", heading, err)
	}
	ok, err := f.GetCellValue("Summary", "I2")
	if err != nil || ok != "FALSE" {
		t.Fatalf("Summary!I2 = %q, %v; want FALSE", ok, err)
	}
	violation, err := f.GetCellValue("Violations", "C2")
	if err != nil || violation != "injected" {
		t.Fatalf("Violations!C2 = %q, %v", violation, err)
	}
}

func TestWriteLedgerAudit_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLedgerAudit(&buf, nil); err != nil {
		t.Fatalf("WriteLedgerAudit: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("empty audit produced no workbook bytes")
	}
}
