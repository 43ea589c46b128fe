package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pressroomhq/pressroom/internal/metrics"
	"github.com/pressroomhq/pressroom/internal/model"
	"github.com/pressroomhq/pressroom/internal/server/middleware"
	"github.com/pressroomhq/pressroom/internal/service"
)

// AuthHandler serves admin account creation and session endpoints.
type AuthHandler struct {
	authSvc      *service.AuthService
	metrics      *metrics.Metrics
	logger       *slog.Logger
	cookieSecure bool
}

// AuthHandlerOptions holds the optional collaborators of an AuthHandler.
type AuthHandlerOptions struct {
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// CookieSecure forces the Secure attribute on the token cookie even for
	// plain-HTTP requests, as needed behind a TLS-terminating proxy.
	CookieSecure bool
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc *service.AuthService, opts AuthHandlerOptions) *AuthHandler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &AuthHandler{
		authSvc:      authSvc,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		cookieSecure: opts.CookieSecure,
	}
}

type createAdminRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createAdminResponse struct {
	Message string          `json:"message"`
	Admin   model.AdminView `json:"admin"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	TokenType string          `json:"token_type"`
	ExpiresAt time.Time       `json:"expires_at"`
	Admin     model.AdminView `json:"admin"`
}

type profileResponse struct {
	Admin model.AdminView `json:"admin"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

// CreateAdmin creates a new admin account.
// POST /api/v1/admin
func (h *AuthHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var body createAdminRequest
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	admin, err := h.authSvc.CreateAdmin(r.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		var verrs service.ValidationErrors
		var dup *service.DuplicateAccountError
		switch {
		case errors.As(err, &verrs):
			writeError(w, http.StatusUnprocessableEntity, "Validation failed", map[string]interface{}{
				"fields": map[string]string(verrs),
			})
		case errors.As(err, &dup):
			var ctx map[string]interface{}
			if dup.Field != "" {
				ctx = map[string]interface{}{"field": dup.Field}
			}
			writeError(w, http.StatusBadRequest, capitalize(dup.Error()), ctx)
		default:
			h.internalError(w, r, "create admin", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, createAdminResponse{
		Message: "Admin created successfully",
		Admin:   admin.Safe(),
	})
}

// ListAdmins returns all admin accounts.
// GET /api/v1/admin
func (h *AuthHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.authSvc.ListAdmins(r.Context())
	if err != nil {
		h.internalError(w, r, "list admins", err)
		return
	}

	resources := make([]model.AdminView, 0, len(admins))
	for i := range admins {
		resources = append(resources, admins[i].Safe())
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta: &model.ResponseMeta{
			Count: len(resources),
		},
	})
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// Login verifies credentials and issues a session token, returned both in
// the body and as the token cookie.
// POST /api/v1/admin/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := readJSON(w, r, &body); err != nil {
		h.metrics.Login(metrics.LoginRejected)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, msg := body.identifier()
	if msg == "" && body.Password == "" {
		msg = "Password is required"
	}
	if msg != "" {
		h.metrics.Login(metrics.LoginRejected)
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	admin, err := h.authSvc.VerifyCredentials(r.Context(), id, body.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.metrics.Login(metrics.LoginFailure)
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.internalError(w, r, "verify credentials", err)
		return
	}

	issued, err := h.authSvc.IssueToken(admin)
	if err != nil {
		h.internalError(w, r, "issue token", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    issued.Token,
		Path:     "/",
		MaxAge:   int(h.authSvc.TokenTTL().Seconds()),
		Expires:  issued.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure(r),
		SameSite: http.SameSiteLaxMode,
	})

	h.metrics.Login(metrics.LoginSuccess)
	h.logger.Info("admin logged in", "admin_id", admin.ID, "request_id", middleware.GetRequestID(r.Context()))

	writeJSON(w, http.StatusCreated, loginResponse{
		Token:     issued.Token,
		TokenType: "bearer",
		ExpiresAt: issued.ExpiresAt.UTC(),
		Admin:     admin.Safe(),
	})
}

// identifier resolves the login payload to exactly one lookup key. A
// non-empty message means the request is malformed.
func (b loginRequest) identifier() (model.Identifier, string) {
	email := strings.TrimSpace(b.Email)
	username := strings.TrimSpace(b.Username)
	switch {
	case email != "" && username != "":
		return model.Identifier{}, "Provide either email or username, not both"
	case email != "":
		return model.ByEmail(email), ""
	case username != "":
		return model.ByUsername(username), ""
	default:
		return model.Identifier{}, "Email or username is required"
	}
}

// Logout revokes the presented token and clears the cookie. Logging out with
// an already-revoked or expired token still succeeds.
// POST /api/v1/admin/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.authSvc.RevokeToken(r.Context(), token); err != nil {
		h.internalError(w, r, "revoke token", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secure(r),
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusCreated, messageResponse{Message: "Logged out successfully"})
}

// Profile returns the admin the request was authenticated as. Must be mounted
// behind middleware.Authenticate.
// GET /api/v1/admin/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil || p.Admin == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Admin: p.Admin.Safe()})
}

func (h *AuthHandler) secure(r *http.Request) bool {
	return h.cookieSecure || r.TLS != nil
}

// internalError logs err and answers with a generic 500; storage and crypto
// errors never reach the client.
func (h *AuthHandler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), op+" failed",
		"error", err,
		"request_id", middleware.GetRequestID(r.Context()),
	)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
