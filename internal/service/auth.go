package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pressroomhq/pressroom/internal/metrics"
	"github.com/pressroomhq/pressroom/internal/model"
	"github.com/pressroomhq/pressroom/internal/store"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	DefaultIssuer   = "pressroom"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrMissingSecret      = errors.New("jwt secret is required")

	// Refinements of ErrUnauthenticated, so callers can tell rejection
	// reasons apart without leaking them to clients.
	ErrTokenRevoked = fmt.Errorf("%w: token revoked", ErrUnauthenticated)
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	ErrUnknownAdmin = fmt.Errorf("%w: admin not found", ErrUnauthenticated)
)

// DuplicateAccountError names the field an account creation collided on.
type DuplicateAccountError struct {
	Field string
}

func (e *DuplicateAccountError) Error() string {
	if e.Field == "" {
		return "an admin account with these details already exists"
	}
	return fmt.Sprintf("an admin with this %s already exists", e.Field)
}

func (e *DuplicateAccountError) Is(target error) bool { return target == ErrDuplicateAccount }

// Options configures an AuthService. Only Secret is required.
type Options struct {
	Secret     string
	TokenTTL   time.Duration // default 24h
	Issuer     string        // default "pressroom"
	BcryptCost int           // default bcrypt.DefaultCost
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Claims is the payload of a session token. The subject is the admin ID.
type Claims struct {
	jwt.RegisteredClaims
}

// AdminID returns the subject claim.
func (c *Claims) AdminID() string { return c.Subject }

// IssuedToken is a freshly signed session token and its expiry.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// AuthService owns admin accounts, session tokens and the revocation list.
type AuthService struct {
	store   *store.Store
	secret  []byte
	ttl     time.Duration
	issuer  string
	cost    int
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService builds the service. The secret is read once here and never
// again, so rotating it requires a restart.
func NewAuthService(st *store.Store, opts Options) (*AuthService, error) {
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, ErrMissingSecret
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Issuer == "" {
		opts.Issuer = DefaultIssuer
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", opts.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &AuthService{
		store:   st,
		secret:  []byte(opts.Secret),
		ttl:     opts.TokenTTL,
		issuer:  opts.Issuer,
		cost:    opts.BcryptCost,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     time.Now,
	}, nil
}

// TokenTTL is the lifetime of issued tokens.
func (s *AuthService) TokenTTL() time.Duration { return s.ttl }

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

// CreateAdmin validates the input, checks that neither the username nor the
// email is taken, and stores a new admin with a bcrypt password hash.
// Validation failures return ValidationErrors; collisions return a
// *DuplicateAccountError.
func (s *AuthService) CreateAdmin(ctx context.Context, username, email, password string) (*model.Admin, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if errs := ValidateNewAdmin(username, email, password); len(errs) > 0 {
		return nil, errs
	}

	if _, err := s.store.GetAdminByUsername(ctx, username); err == nil {
		return nil, &DuplicateAccountError{Field: "username"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.GetAdminByEmail(ctx, email); err == nil {
		return nil, &DuplicateAccountError{Field: "email"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return nil, err
	}

	admin := &model.Admin{Username: username, Email: email, PasswordHash: hash}
	if err := s.store.CreateAdmin(ctx, admin); err != nil {
		// Lost a race with a concurrent create; the constraint decides.
		var dup *store.DuplicateError
		if errors.As(err, &dup) {
			return nil, &DuplicateAccountError{Field: dup.Field}
		}
		return nil, err
	}

	s.logger.Info("admin created", "admin_id", admin.ID, "username", admin.Username)
	return admin, nil
}

// VerifyCredentials returns the admin matching the identifier and password.
// Unknown accounts and wrong passwords both return ErrInvalidCredentials and
// take the same bcrypt path.
func (s *AuthService) VerifyCredentials(ctx context.Context, id model.Identifier, password string) (*model.Admin, error) {
	if id.IsZero() {
		return nil, ErrInvalidCredentials
	}

	var (
		admin *model.Admin
		err   error
	)
	switch id.Kind() {
	case model.IdentifierEmail:
		admin, err = s.store.GetAdminByEmail(ctx, id.Value())
	case model.IdentifierUsername:
		admin, err = s.store.GetAdminByUsername(ctx, id.Value())
	default:
		return nil, ErrInvalidCredentials
	}

	if errors.Is(err, store.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		s.logger.Debug("login failed", "identifier_kind", id.Kind().String(), "reason", "unknown account")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !CheckPassword(admin.PasswordHash, password) {
		s.logger.Debug("login failed", "identifier_kind", id.Kind().String(), "reason", "password mismatch")
		return nil, ErrInvalidCredentials
	}
	return admin, nil
}

// dummy returns a hash at the configured cost for comparisons against
// accounts that do not exist.
func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("pressroom-no-such-account"), s.cost)
	})
	return s.dummyHash
}

// ListAdmins returns every admin account.
func (s *AuthService) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	return s.store.ListAdmins(ctx)
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// IssueToken signs a new HS256 session token for admin.
func (s *AuthService) IssueToken(admin *model.Admin) (*IssuedToken, error) {
	if admin == nil || admin.ID == "" {
		return nil, errors.New("issue token: admin has no id")
	}

	now := s.now().Truncate(time.Second)
	expires := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &IssuedToken{Token: signed, ExpiresAt: expires}, nil
}

// ValidateToken checks the signature, expiry, issuer and subject of a token.
// Every failure is reported as ErrInvalidToken.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.parse(token,
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts = append(opts, jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	}))

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RevokeToken adds token to the blacklist until the token's own expiry.
// Tokens whose signature does not verify, and tokens already past their
// expiry, are never stored: the signature and expiry check rejects them on
// its own. Revoking a token twice is not an error.
func (s *AuthService) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	claims, err := s.parse(token, jwt.WithoutClaimsValidation())
	if err != nil || claims.ExpiresAt == nil {
		s.logger.DebugContext(ctx, "revoke skipped for unverifiable token")
		return nil
	}
	expires := claims.ExpiresAt.Time
	if !expires.After(s.now()) {
		return nil
	}

	if err := s.store.BlacklistToken(ctx, token, expires); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.metrics.Revoked()
	s.logger.Info("token revoked", "admin_id", claims.AdminID(), "expires_at", expires.UTC().Format(time.RFC3339))
	return nil
}

// IsRevoked reports whether token is on the blacklist.
func (s *AuthService) IsRevoked(ctx context.Context, token string) (bool, error) {
	return s.store.IsTokenBlacklisted(ctx, token)
}

// Authenticate resolves a presented token to its admin. The blacklist is
// consulted first, then the signature and expiry, then the account itself.
// Rejections wrap ErrUnauthenticated; anything else is an internal error.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.Admin, *Claims, error) {
	if token == "" {
		return nil, nil, ErrInvalidToken
	}

	revoked, err := s.store.IsTokenBlacklisted(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, ErrTokenRevoked
	}

	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	admin, err := s.store.GetAdminByID(ctx, claims.AdminID())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrUnknownAdmin
	}
	if err != nil {
		return nil, nil, err
	}
	return admin, claims, nil
}

// PruneBlacklist removes blacklist entries whose token has already expired.
func (s *AuthService) PruneBlacklist(ctx context.Context) (int64, error) {
	n, err := s.store.PruneBlacklist(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.Pruned(n)
	if n > 0 {
		s.logger.Info("pruned token blacklist", "removed", n)
	}
	return n, nil
}
