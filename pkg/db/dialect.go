package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/quicksearch/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case DialectMySQL:
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case DialectPostgres, "postgresql":
		if dsn := strings.TrimSpace(cfg.DBURL); dsn != "" {
			return postgres.Open(normalizePostgresURL(dsn)), nil
		}
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case DialectSQLite, "":
		path := strings.TrimSpace(cfg.DBPath)
		if path == "" {
			path = "quicksearch.db"
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

// normalizePostgresURL accepts the "postgresql+driver://" scheme some hosting
// providers hand out.
func normalizePostgresURL(dsn string) string {
	if idx := strings.Index(dsn, "://"); idx > 0 {
		scheme := dsn[:idx]
		if strings.HasPrefix(scheme, "postgresql+") || strings.HasPrefix(scheme, "postgres+") {
			return "postgres" + dsn[idx:]
		}
	}
	return dsn
}

// IsPostgres reports whether db talks to PostgreSQL.
func IsPostgres(db *gorm.DB) bool {
	return db != nil && db.Dialector != nil && strings.EqualFold(db.Dialector.Name(), DialectPostgres)
}
