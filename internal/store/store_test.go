package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pressroomhq/pressroom/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createAdmin(t *testing.T, s *Store, username, email string) *model.Admin {
	t.Helper()
	admin := &model.Admin{Username: username, Email: email, PasswordHash: "$2a$10$hash"}
	if err := s.CreateAdmin(context.Background(), admin); err != nil {
		t.Fatalf("CreateAdmin(%s): %v", username, err)
	}
	return admin
}

// ---------------------------------------------------------------------------
// Admins
// ---------------------------------------------------------------------------

func TestAdminCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	admin := createAdmin(t, s, "admin", "Admin@Example.com")
	if admin.ID == "" {
		t.Fatal("expected ID after create")
	}
	if admin.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt after create")
	}
	if admin.Email != "admin@example.com" {
		t.Errorf("email = %q, want lower-cased", admin.Email)
	}

	byID, err := s.GetAdminByID(ctx, admin.ID)
	if err != nil {
		t.Fatalf("GetAdminByID: %v", err)
	}
	if byID.Username != "admin" {
		t.Errorf("username = %q, want %q", byID.Username, "admin")
	}
	if byID.PasswordHash != "$2a$10$hash" {
		t.Errorf("password hash not persisted, got %q", byID.PasswordHash)
	}
	if !byID.CreatedAt.Equal(admin.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", byID.CreatedAt, admin.CreatedAt)
	}

	byEmail, err := s.GetAdminByEmail(ctx, "ADMIN@example.COM")
	if err != nil {
		t.Fatalf("GetAdminByEmail: %v", err)
	}
	if byEmail.ID != admin.ID {
		t.Errorf("GetAdminByEmail ID = %q, want %q", byEmail.ID, admin.ID)
	}

	byName, err := s.GetAdminByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetAdminByUsername: %v", err)
	}
	if byName.ID != admin.ID {
		t.Errorf("GetAdminByUsername ID = %q, want %q", byName.ID, admin.ID)
	}

	createAdmin(t, s, "editor", "editor@example.com")
	list, err := s.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d admins, want 2", len(list))
	}
	if list[0].Username != "admin" || list[1].Username != "editor" {
		t.Errorf("admins not ordered by username: %q, %q", list[0].Username, list[1].Username)
	}

	count, err := s.CountAdmins(ctx)
	if err != nil {
		t.Fatalf("CountAdmins: %v", err)
	}
	if count != 2 {
		t.Errorf("CountAdmins = %d, want 2", count)
	}
}

func TestAdminNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetAdminByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAdminByID: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetAdminByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAdminByEmail: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetAdminByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAdminByUsername: expected ErrNotFound, got %v", err)
	}
}

func TestListAdminsEmpty(t *testing.T) {
	s := newTestStore(t)
	list, err := s.ListAdmins(context.Background())
	if err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", list)
	}
}

func TestCreateAdminDuplicate(t *testing.T) {
	tests := []struct {
		name      string
		username  string
		email     string
		wantField string
	}{
		{"same username", "admin", "other@example.com", "username"},
		{"same email", "other", "admin@example.com", "email"},
		{"same email different case", "other", "ADMIN@example.com", "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			createAdmin(t, s, "admin", "admin@example.com")

			err := s.CreateAdmin(context.Background(), &model.Admin{
				Username:     tt.username,
				Email:        tt.email,
				PasswordHash: "x",
			})
			if !errors.Is(err, ErrDuplicate) {
				t.Fatalf("expected ErrDuplicate, got %v", err)
			}
			var dup *DuplicateError
			if !errors.As(err, &dup) {
				t.Fatalf("expected *DuplicateError, got %T", err)
			}
			if dup.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", dup.Field, tt.wantField)
			}
		})
	}
}

func TestCreateAdminConcurrentSameUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.CreateAdmin(ctx, &model.Admin{
				Username:     "racer",
				Email:        "racer" + string(rune('a'+i)) + "@example.com",
				PasswordHash: "x",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrDuplicate):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if duplicates != workers-1 {
		t.Errorf("duplicates = %d, want %d", duplicates, workers-1)
	}
}

// ---------------------------------------------------------------------------
// Token blacklist
// ---------------------------------------------------------------------------

func TestBlacklistToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	token := "eyJhbGciOiJIUzI1NiJ9.payload.signature"

	listed, err := s.IsTokenBlacklisted(ctx, token)
	if err != nil {
		t.Fatalf("IsTokenBlacklisted: %v", err)
	}
	if listed {
		t.Fatal("token should not be blacklisted yet")
	}

	expires := time.Now().Add(time.Hour)
	if err := s.BlacklistToken(ctx, token, expires); err != nil {
		t.Fatalf("BlacklistToken: %v", err)
	}

	listed, err = s.IsTokenBlacklisted(ctx, token)
	if err != nil {
		t.Fatalf("IsTokenBlacklisted: %v", err)
	}
	if !listed {
		t.Fatal("token should be blacklisted")
	}

	// A token differing by one byte is a different entry.
	listed, err = s.IsTokenBlacklisted(ctx, token+"x")
	if err != nil {
		t.Fatalf("IsTokenBlacklisted: %v", err)
	}
	if listed {
		t.Error("a different token string must not match the blacklist entry")
	}

	entry, err := s.GetBlacklistedToken(ctx, token)
	if err != nil {
		t.Fatalf("GetBlacklistedToken: %v", err)
	}
	if entry.Token != token {
		t.Errorf("Token = %q, want %q", entry.Token, token)
	}
	if entry.TokenHash != HashToken(token) {
		t.Errorf("TokenHash = %q, want %q", entry.TokenHash, HashToken(token))
	}
	if !entry.ExpiresAt.Equal(expires.UTC().Truncate(time.Second)) {
		t.Errorf("ExpiresAt = %v, want %v", entry.ExpiresAt, expires.UTC().Truncate(time.Second))
	}
}

func TestBlacklistTokenIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	token := "tok-123"

	for i := 0; i < 3; i++ {
		if err := s.BlacklistToken(ctx, token, time.Now().Add(time.Hour)); err != nil {
			t.Fatalf("BlacklistToken #%d: %v", i+1, err)
		}
	}

	count, err := s.CountBlacklisted(ctx)
	if err != nil {
		t.Fatalf("CountBlacklisted: %v", err)
	}
	if count != 1 {
		t.Errorf("CountBlacklisted = %d, want 1", count)
	}
}

func TestGetBlacklistedTokenNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetBlacklistedToken(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPruneBlacklist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.BlacklistToken(ctx, "expired-1", now.Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.BlacklistToken(ctx, "expired-2", now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := s.BlacklistToken(ctx, "live", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	n, err := s.PruneBlacklist(ctx, now)
	if err != nil {
		t.Fatalf("PruneBlacklist: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d rows, want 2", n)
	}

	listed, err := s.IsTokenBlacklisted(ctx, "live")
	if err != nil {
		t.Fatal(err)
	}
	if !listed {
		t.Error("unexpired entry must survive pruning")
	}
	listed, err = s.IsTokenBlacklisted(ctx, "expired-1")
	if err != nil {
		t.Fatal(err)
	}
	if listed {
		t.Error("expired entry should have been pruned")
	}

	n, err = s.PruneBlacklist(ctx, now)
	if err != nil {
		t.Fatalf("PruneBlacklist (second pass): %v", err)
	}
	if n != 0 {
		t.Errorf("second prune removed %d rows, want 0", n)
	}
}

func TestHashToken(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashToken("abc"); got != want {
		t.Errorf("HashToken(abc) = %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// Open / dialects
// ---------------------------------------------------------------------------

func TestOpenFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	createAdmin(t, s, "admin", "admin@example.com")
	s.Close()

	// Reopening must keep data and tolerate already-applied migrations.
	s2, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, err := s2.GetAdminByUsername(context.Background(), "admin"); err != nil {
		t.Fatalf("admin not persisted: %v", err)
	}
	if s2.Driver() != "sqlite" {
		t.Errorf("Driver() = %q, want sqlite", s2.Driver())
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestLookupDialect(t *testing.T) {
	tests := []struct {
		in         string
		wantName   string
		wantDriver string
	}{
		{"", "sqlite", "sqlite"},
		{"sqlite3", "sqlite", "sqlite"},
		{"Postgres", "postgres", "pgx"},
		{"postgresql", "postgres", "pgx"},
		{"pgx", "postgres", "pgx"},
		{"mysql", "mysql", "mysql"},
		{"mssql", "mssql", "sqlserver"},
		{"sqlserver", "mssql", "sqlserver"},
		{"oracle", "oracle", "oracle"},
		{"ora", "oracle", "oracle"},
	}
	for _, tt := range tests {
		d, err := LookupDialect(tt.in)
		if err != nil {
			t.Errorf("LookupDialect(%q): %v", tt.in, err)
			continue
		}
		if d.Name != tt.wantName || d.DriverName != tt.wantDriver {
			t.Errorf("LookupDialect(%q) = %s/%s, want %s/%s", tt.in, d.Name, d.DriverName, tt.wantName, tt.wantDriver)
		}
	}

	if _, err := LookupDialect("snowflake"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestPrepareDSN(t *testing.T) {
	mysqlDialect, _ := LookupDialect("mysql")
	dsn, err := mysqlDialect.PrepareDSN("user:pass@tcp(localhost:3306)/pressroom", "")
	if err != nil {
		t.Fatalf("mysql PrepareDSN: %v", err)
	}
	if want := "parseTime=true"; !strings.Contains(dsn, want) {
		t.Errorf("mysql dsn %q missing %q", dsn, want)
	}
	if _, err := mysqlDialect.PrepareDSN("", ""); err == nil {
		t.Error("expected error for empty mysql dsn")
	}

	pg, _ := LookupDialect("postgres")
	if _, err := pg.PrepareDSN("", ""); err == nil {
		t.Error("expected error for empty postgres dsn")
	}
	got, err := pg.PrepareDSN("postgres://localhost/pressroom", "")
	if err != nil || got != "postgres://localhost/pressroom" {
		t.Errorf("postgres PrepareDSN = %q, %v", got, err)
	}

	lite, _ := LookupDialect("sqlite")
	got, err = lite.PrepareDSN("", "")
	if err != nil || !strings.Contains(got, ":memory:") {
		t.Errorf("sqlite in-memory PrepareDSN = %q, %v", got, err)
	}
	got, err = lite.PrepareDSN("", "/var/lib/pressroom")
	if err != nil || !strings.Contains(got, "pressroom.db") {
		t.Errorf("sqlite file PrepareDSN = %q, %v", got, err)
	}
}
