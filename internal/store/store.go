package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pressroomhq/pressroom/internal/model"
)

// Options selects and configures the storage backend.
type Options struct {
	Driver  string // sqlite (default), postgres, mysql, mssql
	DSN     string // required for everything but sqlite
	DataDir string // sqlite only; empty means in-memory
}

// Store persists admin accounts and the token blacklist.
type Store struct {
	db      *sqlx.DB
	dialect *Dialect
	now     func() time.Time
}

// NewStore opens a SQLite store in dataDir. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	return Open(Options{Driver: "sqlite", DataDir: dataDir})
}

// Open connects to the configured backend and applies its migrations.
func Open(opts Options) (*Store, error) {
	d, err := LookupDialect(opts.Driver)
	if err != nil {
		return nil, err
	}

	if d.Name == "sqlite" && opts.DataDir != "" && opts.DSN == "" {
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn, err := d.PrepareDSN(opts.DSN, opts.DataDir)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(d.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", d.Name, err)
	}

	if d.SingleWriter {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	}

	s := newStore(db, d)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s store: %w", d.Name, err)
	}
	return s, nil
}

func newStore(db *sqlx.DB, d *Dialect) *Store {
	return &Store{db: db, dialect: d, now: func() time.Time { return time.Now().UTC() }}
}

// Driver returns the name of the backend this store talks to.
func (s *Store) Driver() string {
	return s.dialect.Name
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	for _, m := range s.dialect.Migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// timestamp normalises times to whole UTC seconds so they compare the same
// way on every backend, including SQLite's text representation.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// ---------------------------------------------------------------------------
// Admins
// ---------------------------------------------------------------------------

const adminColumns = "id, username, email, password_hash, created_at"

// CreateAdmin inserts a new admin account. ID and CreatedAt are populated on
// success. Collisions on username or email return a *DuplicateError.
func (s *Store) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate admin id: %w", err)
	}
	created := timestamp(s.now())
	email := normalizeEmail(admin.Email)

	q := s.db.Rebind(`INSERT INTO admins (` + adminColumns + `) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, id.String(), admin.Username, email, admin.PasswordHash, created); err != nil {
		if isUniqueViolation(err) {
			return &DuplicateError{Field: duplicateField(err, "username", "email"), Err: err}
		}
		return fmt.Errorf("insert admin: %w", err)
	}

	admin.ID = id.String()
	admin.Email = email
	admin.CreatedAt = created
	return nil
}

// GetAdminByID returns an admin by its identifier.
func (s *Store) GetAdminByID(ctx context.Context, id string) (*model.Admin, error) {
	return s.getAdmin(ctx, "id", id)
}

// GetAdminByEmail returns an admin by email address. The match is
// case-insensitive.
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	return s.getAdmin(ctx, "email", normalizeEmail(email))
}

// GetAdminByUsername returns an admin by username.
func (s *Store) GetAdminByUsername(ctx context.Context, username string) (*model.Admin, error) {
	return s.getAdmin(ctx, "username", username)
}

func (s *Store) getAdmin(ctx context.Context, column, value string) (*model.Admin, error) {
	var admin model.Admin
	q := s.db.Rebind("SELECT " + adminColumns + " FROM admins WHERE " + column + " = ?")
	if err := s.db.GetContext(ctx, &admin, q, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin by %s: %w", column, err)
	}
	return &admin, nil
}

// ListAdmins returns all admin accounts ordered by username.
func (s *Store) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	admins := []model.Admin{}
	if err := s.db.SelectContext(ctx, &admins, "SELECT "+adminColumns+" FROM admins ORDER BY username"); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// CountAdmins returns the number of admin accounts. Used for first-run
// detection.
func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM admins"); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return count, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ---------------------------------------------------------------------------
// Token blacklist
// ---------------------------------------------------------------------------

// BlacklistToken records token as revoked until expiresAt. Blacklisting a
// token that is already present is not an error.
func (s *Store) BlacklistToken(ctx context.Context, token string, expiresAt time.Time) error {
	entry := model.BlacklistedToken{
		TokenHash: HashToken(token),
		Token:     token,
		ExpiresAt: timestamp(expiresAt),
		CreatedAt: timestamp(s.now()),
	}

	q := s.db.Rebind(`INSERT INTO blacklisted_tokens (token_hash, token, expires_at, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, entry.TokenHash, entry.Token, entry.ExpiresAt, entry.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("insert blacklisted token: %w", err)
	}
	return nil
}

// IsTokenBlacklisted reports whether the exact token string was revoked.
func (s *Store) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	var count int
	q := s.db.Rebind("SELECT COUNT(*) FROM blacklisted_tokens WHERE token_hash = ?")
	if err := s.db.GetContext(ctx, &count, q, HashToken(token)); err != nil {
		return false, fmt.Errorf("check blacklisted token: %w", err)
	}
	return count > 0, nil
}

// GetBlacklistedToken returns the blacklist entry for token.
func (s *Store) GetBlacklistedToken(ctx context.Context, token string) (*model.BlacklistedToken, error) {
	var entry model.BlacklistedToken
	q := s.db.Rebind("SELECT token_hash, token, expires_at, created_at FROM blacklisted_tokens WHERE token_hash = ?")
	if err := s.db.GetContext(ctx, &entry, q, HashToken(token)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get blacklisted token: %w", err)
	}
	return &entry, nil
}

// PruneBlacklist deletes entries whose token expired before the given time
// and returns how many rows were removed.
func (s *Store) PruneBlacklist(ctx context.Context, before time.Time) (int64, error) {
	q := s.db.Rebind("DELETE FROM blacklisted_tokens WHERE expires_at < ?")
	result, err := s.db.ExecContext(ctx, q, timestamp(before))
	if err != nil {
		return 0, fmt.Errorf("prune blacklist: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune blacklist rows affected: %w", err)
	}
	return n, nil
}

// CountBlacklisted returns the number of blacklist entries.
func (s *Store) CountBlacklisted(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM blacklisted_tokens"); err != nil {
		return 0, fmt.Errorf("count blacklisted tokens: %w", err)
	}
	return count, nil
}

// HashToken returns the hex-encoded SHA-256 of a raw token string. It is the
// blacklist key, so any byte difference in the presented token is a
// different entry.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
