package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	affiliatedomain "github.com/smallbiznis/payout/internal/affiliate/domain"
	earningdomain "github.com/smallbiznis/payout/internal/earning/domain"
	paymentdomain "github.com/smallbiznis/payout/internal/payment/domain"
	schedulerdomain "github.com/smallbiznis/payout/internal/scheduler/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table the service reads or writes.
func Models() []any {
	return []any{
		&paymentdomain.Payment{},
		&paymentdomain.Refund{},
		&affiliatedomain.DiscountUsage{},
		&earningdomain.InstructorEarning{},
		&affiliatedomain.AffiliatePayout{},
		&schedulerdomain.JobRun{},
	}
}

// AutoMigrate creates the schema from the models on dialects without SQL migrations.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
