package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grcplatform/grc/internal/adapter/memory"
	grcnats "github.com/grcplatform/grc/internal/adapter/nats"
	"github.com/grcplatform/grc/internal/adapter/natskv"
	"github.com/grcplatform/grc/internal/adapter/otel"
	"github.com/grcplatform/grc/internal/adapter/postgres"
	"github.com/grcplatform/grc/internal/adapter/ristretto"
	"github.com/grcplatform/grc/internal/adapter/tiered"
	"github.com/grcplatform/grc/internal/config"
	"github.com/grcplatform/grc/internal/fieldcrypt"
	"github.com/grcplatform/grc/internal/modelhook"
	"github.com/grcplatform/grc/internal/port/cache"
	"github.com/grcplatform/grc/internal/port/database"
	"github.com/grcplatform/grc/internal/port/messagequeue"
	"github.com/grcplatform/grc/internal/secrets"
	"github.com/grcplatform/grc/internal/service"
)

// deps is the assembled service graph shared by the server and the admin commands.
type deps struct {
	cfg     *config.Config
	metrics *otel.Metrics
	vault   *secrets.Vault
	crypt   *fieldcrypt.Service
	store   database.Store
	cache   cache.Cache
	queue   *grcnats.Queue

	auth       *service.AuthService
	actionLog  *service.ActionLogService
	consent    *service.ConsentService
	tenants    *service.TenantService
	users      *service.UserService
	frameworks *service.FrameworkService
	vendors    *service.VendorService
	slas       *service.SLAService

	closers []func()
}

// buildDeps connects the configured backends and wires the services.
// migrate runs pending migrations before the store is used.
func buildDeps(ctx context.Context, cfg *config.Config, metrics *otel.Metrics, migrate bool) (*deps, error) {
	if metrics == nil {
		metrics = &otel.Metrics{}
	}
	d := &deps{cfg: cfg, metrics: metrics}

	// Configured secrets are the base layer; the environment (re-read on reload) wins.
	vault, err := secrets.NewVault(secrets.Layered(
		secrets.StaticLoader(map[string]string{
			"SECRET_KEY":     cfg.Auth.SecretKey,
			"JWT_SECRET_KEY": cfg.Auth.JWTSecretKey,
		}),
		secrets.EnvLoader("SECRET_KEY", "JWT_SECRET_KEY"),
	))
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	d.vault = vault

	crypt, err := fieldcrypt.New(cfg.Encryption.Key, fieldcrypt.DefaultRegistry(),
		fieldcrypt.WithFailureFunc(func(ctx context.Context, model, attr, op string) {
			otel.Inc(ctx, metrics.FieldCryptErrors, "model", model, "attr", attr, "op", op)
		}))
	if err != nil {
		return nil, fmt.Errorf("field encryption: %w", err)
	}
	d.crypt = crypt
	hooks := modelhook.New(crypt)

	switch cfg.Store.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory store, data is lost on exit")
		d.store = memory.NewStore(hooks)
	default:
		pool, err := openPostgres(ctx, cfg, migrate)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, pool.Close)
		d.store = postgres.NewStore(pool, hooks)
	}

	l1, err := ristretto.NewMB(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("l1 cache: %w", err)
	}
	d.closers = append(d.closers, l1.Close)
	d.cache = l1

	var queue messagequeue.Queue
	if cfg.NATS.URL != "" {
		q, err := grcnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		d.queue = q
		queue = q
		d.closers = append(d.closers, func() {
			if err := q.Drain(); err != nil {
				slog.Warn("nats drain failed", "error", err)
			}
		})

		kv, err := q.KeyValue(ctx, cfg.NATS.KVBucket, cfg.NATS.KVTTL)
		if err != nil {
			slog.Warn("shared cache unavailable, using local cache only", "bucket", cfg.NATS.KVBucket, "error", err)
		} else {
			d.cache = tiered.New(l1, natskv.New(kv), cfg.Tenant.CacheTTL)
			slog.Info("shared cache enabled", "bucket", cfg.NATS.KVBucket)
		}
	}

	d.auth = service.NewAuthService(d.store, &cfg.Auth, vault)
	d.actionLog = service.NewActionLogService(d.store, queue, metrics)
	d.consent = service.NewConsentService(d.store, d.actionLog, metrics,
		cfg.Consent.BreakerMaxFailures, cfg.Consent.BreakerTimeout)
	d.tenants = service.NewTenantService(d.store, d.cache, cfg.Tenant.CacheTTL)
	d.tenants.SetConsentSeeder(d.consent)
	if queue != nil {
		d.tenants.SetPeers(queue)
	}
	d.users = service.NewUserService(d.store, d.auth, d.actionLog)
	d.frameworks = service.NewFrameworkService(d.store, d.actionLog)
	d.vendors = service.NewVendorService(d.store, d.actionLog)
	d.slas = service.NewSLAService(d.store, d.actionLog)
	return d, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, migrate bool) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	slog.Info("postgres connected")

	if migrate {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")
	}
	return pool, nil
}

// Close releases backends in reverse order of acquisition.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
