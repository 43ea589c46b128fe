package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/pressroomhq/pressroom/internal/config"
	"github.com/pressroomhq/pressroom/internal/metrics"
	"github.com/pressroomhq/pressroom/internal/service"
	"github.com/pressroomhq/pressroom/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// PRESSROOM_DATA_DIR env var, or ~/.pressroom as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("PRESSROOM_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pressroom")
}

// loadConfig decodes and validates the effective configuration.
func loadConfig() (*config.YAMLConfig, error) {
	if configErr != nil {
		return nil, configErr
	}
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the configured store. SQLite files live in the data dir.
func openStore(cfg *config.YAMLConfig) (*store.Store, error) {
	st, err := store.Open(store.Options{
		Driver:  cfg.Store.Driver,
		DSN:     cfg.Store.DSN,
		DataDir: resolveDataDir(),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// newAuthService builds the auth service from cfg. Offline commands never
// issue tokens, so they get a throwaway secret when none is configured.
func newAuthService(cfg *config.YAMLConfig, st *store.Store, m *metrics.Metrics, logger *slog.Logger, offline bool) (*service.AuthService, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" && offline {
		secret = uuid.NewString()
	}
	ttl, err := cfg.Auth.TTL()
	if err != nil {
		return nil, err
	}
	return service.NewAuthService(st, service.Options{
		Secret:     secret,
		TokenTTL:   ttl,
		Issuer:     cfg.Auth.Issuer,
		BcryptCost: cfg.Auth.BcryptCost,
		Metrics:    m,
		Logger:     logger,
	})
}

// newLogger builds the process logger from the log.* settings.
func newLogger(w io.Writer, lc config.LoggingConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	if lc.Level != "" {
		if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
			level = slog.LevelInfo
		}
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "pressroom.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(), "pressroom.log")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
