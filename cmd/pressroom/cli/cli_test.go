package cli

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/pressroomhq/pressroom/internal/config"
	"github.com/pressroomhq/pressroom/internal/model"
)

// runCLI executes the root command with a fresh config in an isolated data
// directory and returns its stdout.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	cfgFile, dataDir, configErr = "", "", nil
	t.Setenv("HOME", dir)
	t.Setenv("PRESSROOM_AUTH_BCRYPT_COST", "4")

	cmd := newRootCmd("1.2.3", "abc123", "2026-01-01")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--data-dir", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionJSON(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if info["version"] != "1.2.3" || info["commit"] != "abc123" {
		t.Errorf("unexpected version info: %v", info)
	}
}

func TestAdminCreateAndList(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, dir, "admin", "create", "--username", "editor", "--email", "editor@example.com", "--password", "secret123")
	if err != nil {
		t.Fatalf("admin create: %v", err)
	}
	if !strings.Contains(out, `Created admin user "editor"`) {
		t.Errorf("unexpected output: %q", out)
	}

	out, err = runCLI(t, dir, "admin", "list", "--json")
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	var admins []model.AdminView
	if err := json.Unmarshal([]byte(out), &admins); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(admins) != 1 || admins[0].Username != "editor" || admins[0].Email != "editor@example.com" {
		t.Errorf("admins = %+v", admins)
	}
	if strings.Contains(out, "password") {
		t.Error("admin list must not expose password hashes")
	}
}

func TestAdminCreateRejectsDuplicate(t *testing.T) {
	dir := t.TempDir()
	args := []string{"admin", "create", "--username", "editor", "--email", "editor@example.com", "--password", "secret123"}
	if _, err := runCLI(t, dir, args...); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := runCLI(t, dir, args...)
	if err == nil || !strings.Contains(err.Error(), "username already exists") {
		t.Errorf("err = %v, want duplicate username", err)
	}
}

func TestAdminCreateValidates(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "admin", "create", "--username", "editor", "--email", "not-an-email", "--password", "secret123")
	if err == nil || !strings.Contains(err.Error(), "email") {
		t.Errorf("err = %v, want email validation error", err)
	}
}

func TestAdminListEmpty(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "admin", "list")
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if !strings.Contains(out, "No admin users configured") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestTokenPrune(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "token", "prune")
	if err != nil {
		t.Fatalf("token prune: %v", err)
	}
	if !strings.Contains(out, "Pruned 0 expired token(s); 0 still revoked.") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestOpenAPIToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openapi.json")

	if _, err := runCLI(t, dir, "openapi", "-o", path, "--base-url", "https://cms.example.com"); err != nil {
		t.Fatalf("openapi: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		OpenAPI string                     `json:"openapi"`
		Paths   map[string]json.RawMessage `json:"paths"`
		Servers []struct {
			URL string `json:"url"`
		} `json:"servers"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		t.Errorf("openapi = %q", doc.OpenAPI)
	}
	if _, ok := doc.Paths["/api/v1/admin/login"]; !ok {
		t.Errorf("missing login path, have %d paths", len(doc.Paths))
	}
	if len(doc.Servers) == 0 || doc.Servers[0].URL != "https://cms.example.com" {
		t.Errorf("servers = %+v", doc.Servers)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")

	if _, err := runCLI(t, dir, "config", "init", "-o", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if err := config.ReadConfigFile(viper.New(), path); err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}

	if _, err := runCLI(t, dir, "config", "init", "-o", path); err == nil {
		t.Error("expected error when file exists")
	}
	if _, err := runCLI(t, dir, "config", "init", "-o", path, "--force"); err != nil {
		t.Errorf("config init --force: %v", err)
	}
}

func TestConfigShowRedactsSecret(t *testing.T) {
	t.Setenv("PRESSROOM_AUTH_JWT_SECRET", "super-secret")
	out, err := runCLI(t, t.TempDir(), "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "super-secret") {
		t.Error("config show leaked the jwt secret")
	}
	if !strings.Contains(out, "jwt_secret: '********'") && !strings.Contains(out, `jwt_secret: "********"`) {
		t.Errorf("expected redacted secret in output:\n%s", out)
	}
}

func TestConfigFileExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	t.Setenv("PRESSROOM_TEST_DRIVER", "carrier-pigeon")
	if err := os.WriteFile(path, []byte("store:\n  driver: ${PRESSROOM_TEST_DRIVER}\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := runCLI(t, dir, "--config", path, "admin", "list")
	if err == nil || !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("err = %v, want the expanded driver name to reach the store", err)
	}
}

func TestExplicitConfigMustExist(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "--config", filepath.Join(dir, "missing.yaml"), "admin", "list")
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("err = %v, want read error for missing --config", err)
	}
}

func TestServeRequiresSecret(t *testing.T) {
	t.Setenv("PRESSROOM_AUTH_JWT_SECRET", "")
	_, err := runCLI(t, t.TempDir(), "serve")
	if err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("err = %v, want missing secret error", err)
	}
}

func TestStatusWithoutPIDFile(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "not running") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestStopWithoutPIDFile(t *testing.T) {
	if _, err := runCLI(t, t.TempDir(), "stop"); err == nil {
		t.Error("expected error without a PID file")
	}
}

func TestForegroundArgs(t *testing.T) {
	got := foregroundArgs([]string{"serve", "-d", "--port", "9090", "--background"})
	want := []string{"serve", "--port", "9090"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("foregroundArgs = %v, want %v", got, want)
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"}, false)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "shown" || entry["level"] != slog.LevelWarn.String() {
		t.Errorf("entry = %v", entry)
	}

	buf.Reset()
	newLogger(&buf, config.LoggingConfig{Level: "warn"}, true).Debug("dev")
	if !strings.Contains(buf.String(), "dev") {
		t.Error("--dev should force debug level")
	}
}

func TestVersionString(t *testing.T) {
	tests := map[string]string{"": "dev", "dev": "dev", "1.0.0": "v1.0.0", "v2.1.0": "v2.1.0"}
	for in, want := range tests {
		appVersion = in
		if got := versionString(); got != want {
			t.Errorf("versionString(%q) = %q, want %q", in, got, want)
		}
	}
	appVersion = ""
}
