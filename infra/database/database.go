// Package database opens the Postgres connection and keeps the schema in
// sync with the models.
package database

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	infrarepo "github.com/stellarpay/starbridge/infra/repository"
)

// Connect opens the database and runs auto-migration for all tables.
func Connect(url string, log *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(
		&infrarepo.Payment{},
		&infrarepo.Conversion{},
		&infrarepo.StarsOrder{},
		&infrarepo.AtomicSwap{},
		&infrarepo.PlatformFee{},
		&infrarepo.Settlement{},
		&infrarepo.ManualDeposit{},
		&infrarepo.PlatformConfig{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	log.Info("database connected and migrated")
	return db, nil
}
