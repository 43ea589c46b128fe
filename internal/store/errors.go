package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/sijms/go-ora/v2/network"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when a requested record does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
// The concrete error is a *DuplicateError naming the conflicting field.
var ErrDuplicate = errors.New("duplicate record")

// DuplicateError reports which unique field an insert collided on. Field is
// empty when the constraint could not be attributed.
type DuplicateError struct {
	Field string
	Err   error
}

func (e *DuplicateError) Error() string {
	if e.Field == "" {
		return ErrDuplicate.Error()
	}
	return fmt.Sprintf("duplicate %s", e.Field)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

func (e *DuplicateError) Unwrap() error { return e.Err }

const (
	pgUniqueViolation     = "23505"
	mysqlDuplicateEntry   = 1062
	mssqlUniqueConstraint = 2627
	mssqlUniqueIndex      = 2601
	oracleUniqueViolation = 1 // ORA-00001
)

// isUniqueViolation inspects the driver-specific error types of every
// supported backend and falls back to message matching for wrapped errors.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number == mssqlUniqueConstraint || msErr.Number == mssqlUniqueIndex
	}

	var oraErr *network.OracleError
	if errors.As(err, &oraErr) {
		return oraErr.ErrCode == oracleUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry") ||
		strings.Contains(lower, "violation of unique") ||
		strings.Contains(lower, "ora-00001")
}

// duplicateField attributes a uniqueness violation on admins to one of the
// given columns. Only the constraint or key name is matched, never the
// duplicate value, which is user input.
func duplicateField(err error, columns ...string) string {
	lower := strings.ToLower(constraintText(err))
	for _, c := range columns {
		if strings.Contains(lower, "uq_admins_"+c) || strings.Contains(lower, "admins."+c) {
			return c
		}
	}
	return ""
}

// constraintText narrows a driver error to the part naming the violated
// constraint.
//
//	postgres: ConstraintName
//	mysql:    Duplicate entry '<value>' for key 'admins.uq_admins_email'
//	mssql:    ... constraint 'uq_admins_email'. ... The duplicate key value is (<value>).
//	sqlite:   UNIQUE constraint failed: admins.email
//	oracle:   ORA-00001: unique constraint (SCHEMA.UQ_ADMINS_EMAIL) violated
func constraintText(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	if i := strings.LastIndex(lower, "for key"); i >= 0 {
		return msg[i:]
	}
	if i := strings.Index(lower, "the duplicate key value is"); i >= 0 {
		return msg[:i]
	}
	return msg
}
