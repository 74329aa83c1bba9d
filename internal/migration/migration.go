package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	catalogdomain "github.com/smallbiznis/quicksearch/internal/catalog/domain"
	settingsdomain "github.com/smallbiznis/quicksearch/internal/settings/domain"
	"github.com/smallbiznis/quicksearch/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// trigramStatements are optional: managed databases may refuse the extension.
var trigramStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
	`CREATE INDEX IF NOT EXISTS idx_products_normalized_name_trgm ON products USING GIN (normalized_name gin_trgm_ops)`,
}

// Models are the tables created by AutoMigrate on dialects without SQL migrations.
func Models() []any {
	return []any{
		&catalogdomain.Upload{},
		&catalogdomain.Product{},
		&catalogdomain.ProductPrice{},
		&settingsdomain.Settings{},
	}
}

// Run brings the schema up to date. Postgres uses the embedded SQL
// migrations; sqlite and mysql use AutoMigrate.
func Run(conn *gorm.DB, log *zap.Logger) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("migration")

	if !db.IsPostgres(conn) {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("schema auto-migrated", zap.String("dialect", conn.Dialector.Name()))
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB); err != nil {
		return err
	}
	for _, stmt := range trigramStatements {
		if err := conn.Exec(stmt).Error; err != nil {
			log.Warn("trigram index unavailable", zap.Error(err))
			break
		}
	}
	log.Info("schema migrated", zap.String("dialect", "postgres"))
	return nil
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

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
