package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pressroomhq/pressroom/internal/metrics"
	"github.com/pressroomhq/pressroom/internal/server"
	"github.com/pressroomhq/pressroom/internal/service"
)

const banner = `
 ___
| _ \_ _ ___ ______ _ _ ___  ___ _ __
|  _/ '_/ -_|_-<_-<| '_/ _ \/ _ \ '  \
|_| |_| \___/__/__/|_| \___/\___/_|_|_|
`

// devSecret signs tokens under --dev when no secret is configured.
const devSecret = "pressroom-dev-secret-change-me"

func newServeCmd() *cobra.Command {
	var (
		port       int
		host       string
		dev        bool
		background bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Pressroom admin API server",
		Long:  "Start the HTTP server exposing admin account creation, login, logout and profile endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if background {
				return startBackground(cmd.OutOrStdout())
			}
			return runServe(cmd.OutOrStdout(), dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, fallback JWT secret)")
	cmd.Flags().BoolVarP(&background, "background", "d", false, "Run the server detached, logging to the data directory")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(out io.Writer, dev bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.Logging, dev)

	if cfg.Auth.JWTSecret == "" {
		if !dev {
			return errors.New("auth.jwt_secret is not set (use PRESSROOM_AUTH_JWT_SECRET, or --dev for a development secret)")
		}
		logger.Warn("using the development JWT secret; tokens are forgeable by anyone who knows it")
		cfg.Auth.JWTSecret = devSecret
	}

	fmt.Fprint(out, banner)
	fmt.Fprintln(out)

	// 1. Open the account store
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store initialized", "driver", st.Driver(), "data_dir", resolveDataDir())

	// 2. Build the auth service
	m := metrics.New()
	authSvc, err := newAuthService(cfg, st, m, logger, false)
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}

	// 3. Check for first run (no admin exists)
	count, err := st.CountAdmins(context.Background())
	if err != nil {
		logger.Warn("failed to count admins", "error", err)
	}
	if count == 0 && err == nil {
		if cfg.Auth.OpenRegistration {
			logger.Warn("no admin account found - POST /api/v1/admin or run: pressroom admin create")
		} else {
			logger.Warn("no admin account found and registration is closed - run: pressroom admin create")
		}
	}

	// 4. Start the blacklist pruner
	every, _ := cfg.Auth.PruneEvery()
	pruner := service.NewPruner(authSvc, every, logger)
	pruner.Start()
	defer pruner.Stop()

	// 5. Build and start HTTP server
	shutdown, _ := cfg.Server.ShutdownTimeoutDuration()
	srvCfg := server.Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		ShutdownTimeout:  shutdown,
		CORSOrigins:      cfg.Server.CORSOrigins,
		OpenRegistration: cfg.Auth.OpenRegistration,
		LoginRateLimit:   cfg.Auth.LoginRateLimit,
		CookieSecure:     cfg.Auth.CookieSecure,
		Version:          versionString(),
	}
	srv := server.New(srvCfg, st, authSvc, m, logger)

	if err := writePID(os.Getpid()); err != nil {
		logger.Warn("failed to write PID file", "path", pidFilePath(), "error", err)
	}
	defer removePID()

	host := cfg.Server.Host
	fmt.Fprintf(out, "→ Pressroom %s\n", versionString())
	fmt.Fprintf(out, "→ Listening on http://%s:%d\n", host, cfg.Server.Port)
	fmt.Fprintf(out, "→ Admin API:  http://%s:%d/api/v1/admin\n", host, cfg.Server.Port)
	fmt.Fprintf(out, "→ OpenAPI:    http://%s:%d/openapi.json\n", host, cfg.Server.Port)
	fmt.Fprintf(out, "→ Health:     http://%s:%d/healthz\n", host, cfg.Server.Port)
	fmt.Fprintln(out)

	return srv.ListenAndServe()
}

// startBackground re-executes the current binary without the background
// flag, detached from the terminal, with output appended to the log file.
func startBackground(out io.Writer) error {
	if pid, err := readPID(); err == nil && isProcessRunning(pid) {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, foregroundArgs(os.Args[1:])...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.Env = append(os.Environ(), "PRESSROOM_DATA_DIR="+resolveDataDir())
	setSysProcAttr(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := writePID(child.Process.Pid); err != nil {
		return err
	}

	fmt.Fprintf(out, "Pressroom server started in background (PID %d)\n", child.Process.Pid)
	fmt.Fprintf(out, "  Logs: %s\n", logFilePath())
	fmt.Fprintln(out, "  Stop: pressroom stop")
	return child.Process.Release()
}

// foregroundArgs strips the background flag from args.
func foregroundArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch a {
		case "-d", "--background", "--background=true":
			continue
		}
		out = append(out, a)
	}
	return out
}
