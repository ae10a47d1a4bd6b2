package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mmdatafocus/craftstock_backend/config"
	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/mmdatafocus/craftstock_backend/models/reports"
	"github.com/mmdatafocus/craftstock_backend/utils"
	"github.com/mmdatafocus/craftstock_backend/workflow"
)

func parseSkuIds(raw string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid sku id %q", part)
		}
		ids = append(ids, id)
	}
	return utils.SortedUniqueInts(ids), nil
}

func main() {
	skuIdsStr := flag.String("sku-ids", "", "Optional: comma separated sku ids (default: all skus)")
	xlsxPath := flag.String("xlsx", "", "Optional: write the audit workbook to this path")
	failOnViolation := flag.Bool("fail-on-violation", true, "Exit 2 when any sku fails a check")
	flag.Parse()

	skuIds, err := parseSkuIds(*skuIdsStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetCorrelationIdInContext(context.Background(), utils.NewOperationRef("AUDIT"))
	engine := workflow.NewLedgerEngine(models.NewGormLedgerStore(db), config.GetLogger())

	rows, err := reports.BuildLedgerAudit(ctx, engine, skuIds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit failed: %v\n", err)
		os.Exit(1)
	}

	failed := 0
	for _, row := range rows {
		if row.Ok() {
			continue
		}
		failed++
		for _, v := range row.Reconstruction.Violations {
			fmt.Printf("sku=%d inventory_log: %s\n", row.SkuId, v)
		}
		for _, v := range row.Financial.Violations {
			fmt.Printf("sku=%d financial: %s\n", row.SkuId, v)
		}
	}
	fmt.Printf("audited %d skus, %d with violations\n", len(rows), failed)

	if strings.TrimSpace(*xlsxPath) != "" {
		if err := reports.SaveLedgerAudit(strings.TrimSpace(*xlsxPath), rows); err != nil {
			fmt.Fprintf(os.Stderr, "write workbook: %v\n", err)
			os.Exit(1)
		}
	}

	if failed > 0 && *failOnViolation {
		os.Exit(2)
	}
}
