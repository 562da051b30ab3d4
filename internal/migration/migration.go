package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	apikeydomain "github.com/Johanhagos/mijn-api/internal/apikey/domain"
	invoicedomain "github.com/Johanhagos/mijn-api/internal/invoice/domain"
	merchantdomain "github.com/Johanhagos/mijn-api/internal/merchant/domain"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	provisioningdomain "github.com/Johanhagos/mijn-api/internal/provisioning/domain"
	sessiondomain "github.com/Johanhagos/mijn-api/internal/session/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Models lists every table the service owns, in dependency order.
func Models() []any {
	return []any{
		&merchantdomain.Merchant{},
		&sessiondomain.Session{},
		&paymentdomain.EventRecord{},
		&invoicedomain.Invoice{},
		&apikeydomain.APIKey{},
		&provisioningdomain.Job{},
	}
}

// Run applies the schema: versioned SQL on postgres, gorm AutoMigrate on the
// embedded dialects.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(Models()...)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

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

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// migrator.Close would close the shared *sql.DB.
	return nil
}
