package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pressroomhq/pressroom/internal/metrics"
	"github.com/pressroomhq/pressroom/internal/model"
	"github.com/pressroomhq/pressroom/internal/server/middleware"
	"github.com/pressroomhq/pressroom/internal/service"
	"github.com/pressroomhq/pressroom/internal/store"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "admin123"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store   *store.Store
	authSvc *service.AuthService
	metrics *metrics.Metrics
	handler *AuthHandler
	router  chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory store and
// the admin routes mounted the way the server mounts them.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	authSvc, err := service.NewAuthService(st, service.Options{Secret: testJWTSecret, BcryptCost: bcrypt.MinCost, Metrics: m})
	if err != nil {
		t.Fatalf("service.NewAuthService: %v", err)
	}
	h := NewAuthHandler(authSvc, AuthHandlerOptions{Metrics: m})

	r := chi.NewRouter()
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Post("/", h.CreateAdmin)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(authSvc, m))
			r.Get("/", h.ListAdmins)
			r.Get("/profile", h.Profile)
		})
	})

	return &testEnv{
		store:   st,
		authSvc: authSvc,
		metrics: m,
		handler: h,
		router:  r,
	}
}

// seedAdmin creates the default admin account and returns it.
func (e *testEnv) seedAdmin(t *testing.T) *model.Admin {
	t.Helper()
	admin, err := e.authSvc.CreateAdmin(t.Context(), "admin", "admin@example.com", testPassword)
	if err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}
	return admin
}

// login performs a successful login and returns the issued token.
func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rr := e.do(t, "POST", "/api/v1/admin/login", toJSON(t, map[string]string{
		"email":    "admin@example.com",
		"password": testPassword,
	}))
	assertStatus(t, rr, http.StatusCreated)
	var resp loginResponse
	decodeJSON(t, rr, &resp)
	if resp.Token == "" {
		t.Fatal("login returned empty token")
	}
	return resp.Token
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	return e.doWith(t, method, path, body, nil)
}

// doAuth executes a request carrying token as a bearer credential.
func (e *testEnv) doAuth(t *testing.T, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	return e.doWith(t, method, path, body, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
}

func (e *testEnv) doWith(t *testing.T, method, path string, body io.Reader, setup func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if setup != nil {
		setup(req)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorDetail {
	t.Helper()
	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	return resp.Error
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
