package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	sqliteUniqueFragment = "UNIQUE constraint failed"
)

// IsDuplicateKeyErr reports a unique violation from any supported dialect.
// Catalog writers use it to detect a concurrent insert of the same normalized
// name, canonical key or settings row and reread instead of failing.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	// glebarez/sqlite and untranslated wrappers only expose the message.
	msg := err.Error()
	return strings.Contains(msg, sqliteUniqueFragment) ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
