package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Sku struct {
	ID                int               `gorm:"primary_key" json:"id"`
	Code              string            `gorm:"size:64;not null;uniqueIndex" json:"code"`
	Name              string            `gorm:"size:100" json:"name"`
	AvailableQuantity int               `gorm:"not null;default:0" json:"available_quantity"`
	TotalQuantity     int               `gorm:"not null;default:0" json:"total_quantity"`
	MaterialSignature MaterialSignature `gorm:"type:text;not null" json:"material_signature"`
	// production cost per unit, frozen with the signature
	UnitCost  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"unit_cost"`
	Status    SkuStatus       `gorm:"size:20;not null;index" json:"status"`
	CreatedBy string          `gorm:"size:100" json:"created_by"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsDirectConversion reports a one-material recipe.
func (s *Sku) IsDirectConversion() bool {
	return len(s.MaterialSignature) == 1
}

// DeriveSkuStatus maps quantities to the lifecycle state.
// An empty SKU is DESTROYED when the last quantity-affecting action was a destroy, SOLD_OUT otherwise.
func DeriveSkuStatus(available, total int, lastAction InventoryAction) SkuStatus {
	switch {
	case available <= 0 && (total <= 0 || lastAction == InventoryActionDestroy):
		return SkuStatusDestroyed
	case available <= 0:
		return SkuStatusSoldOut
	case available >= total:
		return SkuStatusCreated
	default:
		return SkuStatusPartiallySold
	}
}

// Value stores the frozen signature as JSON text.
func (s MaterialSignature) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]SignatureEntry(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *MaterialSignature) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New(fmt.Sprint("unsupported material signature value: ", value))
	}
	var entries []SignatureEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}
	*s = entries
	return nil
}
