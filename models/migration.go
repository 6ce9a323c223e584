package models

import (
	"log"

	"github.com/mmdatafocus/stockcount_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &Product{}, &StockLevel{},
		&StockCount{}, &StockCountEntry{},
		&Variance{}, &VarianceAuditEntry{},
		&ReconciliationRecord{}, &ReconciliationAttempt{},
		&CountEventRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
