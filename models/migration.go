package models

import (
	"log"

	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) {
	err := db.AutoMigrate(
		&Purchase{}, &Material{}, &MaterialUsage{}, &Product{},
		&Sku{}, &SkuInventoryLog{},
		&FinancialRecord{},
		&IdempotencyKey{},
		&LifecycleEvent{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
