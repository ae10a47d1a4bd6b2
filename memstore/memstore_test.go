package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/shopspring/decimal"
)

func seedMaterial(t *testing.T, s *Store, qty int64) int {
	t.Helper()
	var id int
	err := s.Transaction(context.Background(), func(tx models.LedgerTx) error {
		m := &models.Material{PurchaseId: 1, Name: "beads", OriginalQuantity: decimal.NewFromInt(qty), RemainingQuantity: decimal.NewFromInt(qty)}
		if err := tx.CreateMaterial(m); err != nil {
			return err
		}
		id = m.ID
		return nil
	})
	if err != nil {
		t.Fatalf("seed material: %v", err)
	}
	return id
}

func remaining(t *testing.T, s *Store, id int) decimal.Decimal {
	t.Helper()
	var out decimal.Decimal
	err := s.View(context.Background(), func(tx models.LedgerTx) error {
		m, err := tx.GetMaterial(id)
		if err != nil {
			return err
		}
		out = m.RemainingQuantity
		return nil
	})
	if err != nil {
		t.Fatalf("GetMaterial: %v", err)
	}
	return out
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := New()
	id := seedMaterial(t, s, 10)

	boom := errors.New("boom")
	err := s.Transaction(context.Background(), func(tx models.LedgerTx) error {
		if err := tx.UpdateMaterialRemaining(id, decimal.NewFromInt(3)); err != nil {
			return err
		}
		if err := tx.AppendFinancialRecord(&models.FinancialRecord{BusinessOperationRef: "x"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if got := remaining(t, s, id); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("remaining = %s after rollback, want 10", got)
	}
	if len(s.FinancialRecords()) != 0 {
		t.Fatalf("rolled back record is visible")
	}
}

func TestInjectedConflictDiscardsWrites(t *testing.T) {
	s := New()
	id := seedMaterial(t, s, 10)

	s.InjectConflicts(1)
	err := s.Transaction(context.Background(), func(tx models.LedgerTx) error {
		return tx.UpdateMaterialRemaining(id, decimal.NewFromInt(1))
	})
	if !errors.Is(err, models.ErrSerializationFailure) {
		t.Fatalf("err = %v, want SerializationFailure", err)
	}
	if got := remaining(t, s, id); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("remaining = %s, want 10", got)
	}

	if err := s.Transaction(context.Background(), func(tx models.LedgerTx) error {
		return tx.UpdateMaterialRemaining(id, decimal.NewFromInt(1))
	}); err != nil {
		t.Fatalf("second transaction: %v", err)
	}
	if got := remaining(t, s, id); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("remaining = %s, want 1", got)
	}
}

func TestViewIsReadOnly(t *testing.T) {
	s := New()
	id := seedMaterial(t, s, 10)
	err := s.View(context.Background(), func(tx models.LedgerTx) error {
		return tx.UpdateMaterialRemaining(id, decimal.Zero)
	})
	if err == nil {
		t.Fatalf("write inside View should fail")
	}
	err = s.View(context.Background(), func(tx models.LedgerTx) error {
		_, err := tx.LockSku(1)
		return err
	})
	if err == nil {
		t.Fatalf("LockSku inside View should fail")
	}
}

func TestLookupsReportNotFound(t *testing.T) {
	s := New()
	err := s.View(context.Background(), func(tx models.LedgerTx) error {
		_, err := tx.GetSku(12)
		return err
	})
	if !errors.Is(err, models.ErrRecordNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestSkuSignatureIsCopied(t *testing.T) {
	s := New()
	sig := models.MaterialSignature{{MaterialId: 1, QuantityPerUnit: decimal.NewFromInt(2)}}
	var skuId int
	if err := s.Transaction(context.Background(), func(tx models.LedgerTx) error {
		sku := &models.Sku{Code: "A", MaterialSignature: sig}
		if err := tx.CreateSku(sku); err != nil {
			return err
		}
		skuId = sku.ID
		return nil
	}); err != nil {
		t.Fatalf("CreateSku: %v", err)
	}
	sig[0].QuantityPerUnit = decimal.NewFromInt(99)

	_ = s.View(context.Background(), func(tx models.LedgerTx) error {
		sku, err := tx.GetSku(skuId)
		if err != nil {
			t.Fatalf("GetSku: %v", err)
		}
		if !sku.MaterialSignature[0].QuantityPerUnit.Equal(decimal.NewFromInt(2)) {
			t.Fatalf("stored signature was mutated through the caller's slice")
		}
		return nil
	})
}
