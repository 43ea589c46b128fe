package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/sijms/go-ora/v2"
	_ "modernc.org/sqlite"
)

// Dialect describes one supported storage backend: the database/sql driver
// it opens, the DDL that brings a fresh database up to date, and how a
// user-supplied DSN is adjusted before connecting.
type Dialect struct {
	Name       string
	DriverName string
	Migrations []string

	// SingleWriter limits the pool to one connection (SQLite).
	SingleWriter bool

	prepareDSN func(dsn, dataDir string) (string, error)
}

// PrepareDSN returns the DSN the driver should be opened with.
func (d *Dialect) PrepareDSN(dsn, dataDir string) (string, error) {
	if d.prepareDSN == nil {
		if dsn == "" {
			return "", fmt.Errorf("%s: dsn is required", d.Name)
		}
		return dsn, nil
	}
	return d.prepareDSN(dsn, dataDir)
}

var (
	dialects = map[string]*Dialect{}
	aliases  = map[string]string{
		"sqlite3":    "sqlite",
		"postgresql": "postgres",
		"pgx":        "postgres",
		"sqlserver":  "mssql",
		"ora":        "oracle",
	}
)

func registerDialect(d *Dialect) {
	dialects[d.Name] = d
}

// LookupDialect returns the dialect registered under name or one of its
// aliases.
func LookupDialect(name string) (*Dialect, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "sqlite"
	}
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("unsupported store driver: %s (available: %v)", name, Dialects())
	}
	return d, nil
}

// Dialects lists the registered backend names in sorted order.
func Dialects() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	registerDialect(&Dialect{
		Name:         "sqlite",
		DriverName:   "sqlite",
		SingleWriter: true,
		prepareDSN: func(dsn, dataDir string) (string, error) {
			if dsn != "" {
				return dsn, nil
			}
			if dataDir == "" {
				return ":memory:?_journal_mode=WAL", nil
			}
			return filepath.Join(dataDir, "pressroom.db") + "?_journal_mode=WAL&_busy_timeout=5000", nil
		},
		Migrations: []string{
			`CREATE TABLE IF NOT EXISTS admins (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL CONSTRAINT uq_admins_username UNIQUE,
				email TEXT NOT NULL CONSTRAINT uq_admins_email UNIQUE,
				password_hash TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS blacklisted_tokens (
				token_hash TEXT PRIMARY KEY,
				token TEXT NOT NULL,
				expires_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_blacklisted_tokens_expires_at ON blacklisted_tokens(expires_at)`,
		},
	})

	registerDialect(&Dialect{
		Name:       "postgres",
		DriverName: "pgx",
		Migrations: []string{
			`CREATE TABLE IF NOT EXISTS admins (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL CONSTRAINT uq_admins_username UNIQUE,
				email TEXT NOT NULL CONSTRAINT uq_admins_email UNIQUE,
				password_hash TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE TABLE IF NOT EXISTS blacklisted_tokens (
				token_hash TEXT PRIMARY KEY,
				token TEXT NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_blacklisted_tokens_expires_at ON blacklisted_tokens(expires_at)`,
		},
	})

	registerDialect(&Dialect{
		Name:       "mysql",
		DriverName: "mysql",
		prepareDSN: func(dsn, _ string) (string, error) {
			if dsn == "" {
				return "", fmt.Errorf("mysql: dsn is required")
			}
			cfg, err := mysql.ParseDSN(dsn)
			if err != nil {
				return "", fmt.Errorf("mysql: parse dsn: %w", err)
			}
			// DATETIME columns must scan into time.Time.
			cfg.ParseTime = true
			cfg.Loc = time.UTC
			return cfg.FormatDSN(), nil
		},
		Migrations: []string{
			`CREATE TABLE IF NOT EXISTS admins (
				id CHAR(36) NOT NULL PRIMARY KEY,
				username VARCHAR(64) NOT NULL,
				email VARCHAR(255) NOT NULL,
				password_hash VARCHAR(255) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				CONSTRAINT uq_admins_username UNIQUE (username),
				CONSTRAINT uq_admins_email UNIQUE (email)
			)`,
			`CREATE TABLE IF NOT EXISTS blacklisted_tokens (
				token_hash CHAR(64) NOT NULL PRIMARY KEY,
				token TEXT NOT NULL,
				expires_at DATETIME(6) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				INDEX idx_blacklisted_tokens_expires_at (expires_at)
			)`,
		},
	})

	registerDialect(&Dialect{
		Name:       "mssql",
		DriverName: "sqlserver",
		Migrations: []string{
			`IF OBJECT_ID(N'admins', N'U') IS NULL
			CREATE TABLE admins (
				id NVARCHAR(36) NOT NULL PRIMARY KEY,
				username NVARCHAR(64) NOT NULL CONSTRAINT uq_admins_username UNIQUE,
				email NVARCHAR(255) NOT NULL CONSTRAINT uq_admins_email UNIQUE,
				password_hash NVARCHAR(255) NOT NULL,
				created_at DATETIME2 NOT NULL
			)`,
			`IF OBJECT_ID(N'blacklisted_tokens', N'U') IS NULL
			CREATE TABLE blacklisted_tokens (
				token_hash CHAR(64) NOT NULL PRIMARY KEY,
				token NVARCHAR(MAX) NOT NULL,
				expires_at DATETIME2 NOT NULL,
				created_at DATETIME2 NOT NULL,
				INDEX idx_blacklisted_tokens_expires_at NONCLUSTERED (expires_at)
			)`,
		},
	})

	// go-ora takes :name placeholders and binds them by position.
	sqlx.BindDriver("oracle", sqlx.NAMED)
	registerDialect(&Dialect{
		Name:       "oracle",
		DriverName: "oracle",
		Migrations: []string{
			oracleCreate(`CREATE TABLE admins (
				id VARCHAR2(36) NOT NULL PRIMARY KEY,
				username VARCHAR2(64) NOT NULL CONSTRAINT uq_admins_username UNIQUE,
				email VARCHAR2(255) NOT NULL CONSTRAINT uq_admins_email UNIQUE,
				password_hash VARCHAR2(255) NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`),
			oracleCreate(`CREATE TABLE blacklisted_tokens (
				token_hash CHAR(64) NOT NULL PRIMARY KEY,
				token CLOB NOT NULL,
				expires_at TIMESTAMP NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`),
			oracleCreate(`CREATE INDEX idx_blacklisted_tokens_expires_at ON blacklisted_tokens(expires_at)`),
		},
	})
}

// oracleCreate wraps DDL so that re-running it against an existing object
// (ORA-00955) succeeds. Oracle has no IF NOT EXISTS before 23c.
func oracleCreate(ddl string) string {
	return "BEGIN\n" +
		"  EXECUTE IMMEDIATE '" + strings.ReplaceAll(ddl, "'", "''") + "';\n" +
		"EXCEPTION\n" +
		"  WHEN OTHERS THEN\n" +
		"    IF SQLCODE != -955 THEN RAISE; END IF;\n" +
		"END;"
}
