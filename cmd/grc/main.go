package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	grchttp "github.com/grcplatform/grc/internal/adapter/http"
	"github.com/grcplatform/grc/internal/adapter/otel"
	"github.com/grcplatform/grc/internal/adapter/postgres"
	"github.com/grcplatform/grc/internal/adapter/ws"
	"github.com/grcplatform/grc/internal/config"
	"github.com/grcplatform/grc/internal/fieldcrypt"
	"github.com/grcplatform/grc/internal/logger"
	"github.com/grcplatform/grc/internal/middleware"
)

const (
	idempotencyTTL = 24 * time.Hour

	loginPerSecond = 1.0 / 6
	loginBurst     = 10
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "migrate":
		err = runMigrate(args)
	case "admin":
		err = runAdmin(args)
	case "keygen":
		err = runKeygen()
	case "help", "--help", "-h":
		printHelp()
	default:
		printHelp()
		err = fmt.Errorf("unknown command: %s", cmd)
	}
	if err != nil {
		slog.Error("fatal", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: grc <command> [options]

Commands:
  serve      Run the HTTP API (default)
  migrate    Apply or roll back schema migrations (up, down, version)
  admin      Tenant and user administration
  keygen     Print a new field encryption key

Server flags:
  -c, --config PATH   YAML config file (default %s)
  -p, --port PORT     HTTP listen port
  --log-level LEVEL   debug, info, warn, error
  --dsn DSN           PostgreSQL DSN
  --nats-url URL      NATS server URL
`, config.DefaultConfigFile)
}

// loadConfig parses server flags, loads the configuration and installs the
// configured logger as the default. The returned closer flushes the logger.
func loadConfig(args []string) (*config.Config, logger.Closer, error) {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return nil, nil, err
	}
	cfg, path, err := config.LoadWithCLI(flags)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log, closer := logger.New(cfg.Logging)
	slog.SetDefault(log)
	slog.Info("config loaded",
		"path", path,
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"log_level", cfg.Logging.Level,
		"tenant_strict", cfg.Tenant.Strict,
	)
	return cfg, closer, nil
}

func runServe(args []string) error {
	cfg, logCloser, err := loadConfig(args)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := otel.Init(ctx, cfg.Logging.Service, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	d, err := buildDeps(ctx, cfg, metrics, true)
	if err != nil {
		return err
	}
	defer d.Close()

	go reloadSecretsOnHangup(ctx, d)

	stopEvictions, err := d.tenants.ListenForEvictions(ctx)
	if err != nil {
		slog.Warn("tenant eviction listener unavailable, peers rely on cache ttl", "error", err)
	} else {
		defer stopEvictions()
	}

	hub := ws.NewHub(originPatterns(cfg.Server.CORSOrigin)...)
	d.actionLog.SetBroadcaster(hub)

	limiter := middleware.NewRateLimiter(loginPerSecond, loginBurst)
	go limiter.Run(ctx, time.Minute, 10*time.Minute)

	handlers := &grchttp.Handlers{
		Auth:       d.auth,
		Tenants:    d.tenants,
		Consent:    d.consent,
		ActionLog:  d.actionLog,
		Users:      d.users,
		Frameworks: d.frameworks,
		Vendors:    d.vendors,
		SLAs:       d.slas,
		Crypt:      d.crypt,
		Store:      d.store,
	}
	router := grchttp.NewRouter(handlers, grchttp.RouterConfig{
		ServiceName:      cfg.Logging.Service,
		CORSOrigin:       cfg.Server.CORSOrigin,
		TenantStrict:     cfg.Tenant.Strict,
		AutoFilter:       cfg.Tenant.AutoFilterEnabled,
		Metrics:          metrics,
		IdempotencyCache: d.cache,
		IdempotencyTTL:   idempotencyTTL,
		LoginLimiter:     limiter,
		ActionStream:     http.HandlerFunc(hub.HandleWS),
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// originPatterns turns the CORS origin into a WebSocket origin pattern.
func originPatterns(origin string) []string {
	if origin == "" {
		return nil
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return []string{u.Host}
	}
	return []string{origin}
}

// reloadSecretsOnHangup re-reads token secrets from the environment on SIGHUP.
func reloadSecretsOnHangup(ctx context.Context, d *deps) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := d.vault.Reload(); err != nil {
				slog.Error("secret reload failed", "error", err)
				continue
			}
			slog.Info("secrets reloaded")
		}
	}
}

func runMigrate(args []string) error {
	action := "up"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		action, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "migrations to roll back (down only)")
	configPath := fs.String("config", config.DefaultConfigFile, "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires the %s store driver, got %s", config.DriverPostgres, cfg.Store.Driver)
	}

	ctx := context.Background()
	switch action {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
	case "down":
		if *steps < 1 {
			return fmt.Errorf("--steps must be >= 1")
		}
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action: %s", action)
	}

	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d\n", v)
	return nil
}

func runKeygen() error {
	key, err := fieldcrypt.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}
