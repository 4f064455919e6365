package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "grc.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	if err := loadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) error {
	setString(&cfg.Server.Port, "GRC_PORT")
	setString(&cfg.Server.CORSOrigin, "GRC_CORS_ORIGIN")
	setDuration(&cfg.Server.ReadTimeout, "GRC_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "GRC_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "GRC_SHUTDOWN_TIMEOUT")

	setString(&cfg.Store.Driver, "GRC_STORE_DRIVER")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "GRC_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "GRC_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "GRC_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "GRC_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "GRC_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.KVBucket, "GRC_NATS_KV_BUCKET")
	setDuration(&cfg.NATS.KVTTL, "GRC_NATS_KV_TTL")

	setString(&cfg.Logging.Level, "GRC_LOG_LEVEL")
	setString(&cfg.Logging.Service, "GRC_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "GRC_LOG_ASYNC")

	// Secrets accept a *_FILE variant pointing at a mounted file.
	for _, s := range []struct {
		dst *string
		key string
	}{
		{&cfg.Auth.SecretKey, "SECRET_KEY"},
		{&cfg.Auth.JWTSecretKey, "JWT_SECRET_KEY"},
		{&cfg.Encryption.Key, "GRC_ENCRYPTION_KEY"},
	} {
		if err := setSecret(s.dst, s.key); err != nil {
			return err
		}
	}
	setDuration(&cfg.Auth.AccessTokenExpiry, "GRC_ACCESS_TOKEN_EXPIRY")
	setInt(&cfg.Auth.BcryptCost, "GRC_BCRYPT_COST")

	setBool(&cfg.Tenant.Strict, "GRC_TENANT_STRICT")
	setBool(&cfg.Tenant.AutoFilterEnabled, "AUTO_TENANT_FILTER_ENABLED")
	setDuration(&cfg.Tenant.CacheTTL, "GRC_TENANT_CACHE_TTL")

	setInt(&cfg.Consent.BreakerMaxFailures, "GRC_CONSENT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Consent.BreakerTimeout, "GRC_CONSENT_BREAKER_TIMEOUT")

	setInt64(&cfg.Cache.L1MaxSizeMB, "GRC_CACHE_L1_SIZE_MB")

	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "GRC_OTEL_INSECURE")
	return nil
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Driver {
	case DriverPostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver %q is not one of %s, %s", cfg.Store.Driver, DriverPostgres, DriverMemory)
	}
	if cfg.Auth.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}
	if cfg.Encryption.Key == "" {
		return errors.New("GRC_ENCRYPTION_KEY is required")
	}
	if cfg.Auth.AccessTokenExpiry <= 0 {
		return errors.New("auth.access_token_expiry must be positive")
	}
	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if cfg.Consent.BreakerMaxFailures < 1 {
		return errors.New("consent.breaker_max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setSecret reads key, or the file named by key_FILE when key is unset.
func setSecret(dst *string, key string) error {
	if v := os.Getenv(key); v != "" {
		*dst = v
		return nil
	}
	path := os.Getenv(key + "_FILE")
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied secret path
	if err != nil {
		return fmt.Errorf("read %s_FILE: %w", key, err)
	}
	*dst = strings.TrimSpace(string(data))
	return nil
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
