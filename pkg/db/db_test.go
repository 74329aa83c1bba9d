package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/quicksearch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestDialect(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{name: "default sqlite", cfg: config.Config{}, want: "sqlite"},
		{name: "postgres", cfg: config.Config{DBType: "postgres", DBHost: "localhost", DBPort: "5432"}, want: "postgres"},
		{name: "postgres url", cfg: config.Config{DBType: "postgresql", DBURL: "postgresql+psycopg://u:p@h/db"}, want: "postgres"},
		{name: "mysql", cfg: config.Config{DBType: "mysql"}, want: "mysql"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Dialect(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Name())
		})
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestNormalizePostgresURL(t *testing.T) {
	assert.Equal(t, "postgres://u:p@h/db", normalizePostgresURL("postgresql+psycopg://u:p@h/db"))
	assert.Equal(t, "postgres://u:p@h/db", normalizePostgresURL("postgres://u:p@h/db"))
	assert.Equal(t, "host=h", normalizePostgresURL("host=h"))
}

func TestNewOpensSQLite(t *testing.T) {
	conn, err := New(nil, config.Config{DBType: "sqlite", DBPath: "file::memory:"}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, IsPostgres(conn))
	assert.Equal(t, "sqlite", conn.Dialector.Name())
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: products.canonical_key")))
	assert.True(t, IsDuplicateKeyErr(errors.New(`ERROR: duplicate key value violates unique constraint "ux"`)))
	assert.False(t, IsDuplicateKeyErr(errors.New("boom")))

	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("create product: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsDuplicateKeyErr(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.False(t, IsDuplicateKeyErr(&mysql.MySQLError{Number: 1452}))
}
