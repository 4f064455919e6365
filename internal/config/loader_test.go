package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validDefaults returns Defaults with the required secrets filled in.
func validDefaults() Config {
	cfg := Defaults()
	cfg.Auth.SecretKey = "secret"
	cfg.Encryption.Key = "enc"
	return cfg
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("GRC_ENCRYPTION_KEY", "k3y")
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8000" {
		t.Errorf("expected port 8000, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("expected max_conns 15, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Consent.BreakerTimeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Consent.BreakerTimeout)
	}
	if cfg.Tenant.AutoFilterEnabled {
		t.Error("auto tenant filter must default to false")
	}
	if cfg.Tenant.Strict {
		t.Error("tenant enforcer must default to permissive")
	}
	if cfg.NATS.URL != "" {
		t.Errorf("expected fan-out disabled by default, got %s", cfg.NATS.URL)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
postgres:
  max_conns: 20
logging:
  level: "debug"
tenant:
  strict: true
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Postgres.MaxConns != 20 {
		t.Errorf("expected max_conns 20, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if !cfg.Tenant.Strict {
		t.Error("expected strict tenant mode from YAML")
	}
	// Unchanged fields keep defaults
	if cfg.Tenant.CacheTTL != 60*time.Second {
		t.Errorf("expected default cache ttl, got %v", cfg.Tenant.CacheTTL)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("GRC_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("GRC_PG_MAX_CONNS", "25")
	t.Setenv("GRC_LOG_LEVEL", "warn")
	t.Setenv("GRC_CONSENT_BREAKER_TIMEOUT", "1m")
	t.Setenv("AUTO_TENANT_FILTER_ENABLED", "true")
	t.Setenv("SECRET_KEY", "root")
	t.Setenv("GRC_ENCRYPTION_KEY", "enc")

	if err := loadEnv(&cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.Postgres.MaxConns != 25 {
		t.Errorf("expected max_conns 25, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Consent.BreakerTimeout != time.Minute {
		t.Errorf("expected breaker timeout 1m, got %v", cfg.Consent.BreakerTimeout)
	}
	if !cfg.Tenant.AutoFilterEnabled {
		t.Error("expected auto tenant filter enabled")
	}
	if cfg.Auth.SecretKey != "root" || cfg.Encryption.Key != "enc" {
		t.Error("expected secrets from env")
	}
}

func TestTokenSecretFallsBackToSecretKey(t *testing.T) {
	a := Auth{SecretKey: "root"}
	if got := a.TokenSecret(); got != "root" {
		t.Errorf("TokenSecret() = %q, want root", got)
	}
	a.JWTSecretKey = "jwt"
	if got := a.TokenSecret(); got != "jwt" {
		t.Errorf("TokenSecret() = %q, want jwt", got)
	}
}

func TestSecretFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key")
	if err := os.WriteFile(path, []byte("from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GRC_ENCRYPTION_KEY_FILE", path)

	cfg := Defaults()
	if err := loadEnv(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Encryption.Key != "from-file" {
		t.Errorf("expected key from file, got %q", cfg.Encryption.Key)
	}
}

func TestSecretFileMissing(t *testing.T) {
	t.Setenv("SECRET_KEY_FILE", "/nonexistent/secret")
	cfg := Defaults()
	if err := loadEnv(&cfg); err == nil {
		t.Error("expected error for missing secret file")
	}
}

func TestSecretEnvWinsOverFile(t *testing.T) {
	t.Setenv("SECRET_KEY", "direct")
	t.Setenv("SECRET_KEY_FILE", "/nonexistent/secret")
	cfg := Defaults()
	if err := loadEnv(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.SecretKey != "direct" {
		t.Errorf("expected direct secret, got %q", cfg.Auth.SecretKey)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "empty DSN",
			modify: func(c *Config) { c.Postgres.DSN = "" },
			errMsg: "postgres.dsn is required",
		},
		{
			name:   "unknown store driver",
			modify: func(c *Config) { c.Store.Driver = "sqlite" },
			errMsg: `store.driver "sqlite" is not one of postgres, memory`,
		},
		{
			name:   "zero max_conns",
			modify: func(c *Config) { c.Postgres.MaxConns = 0 },
			errMsg: "postgres.max_conns must be >= 1",
		},
		{
			name:   "missing secret key",
			modify: func(c *Config) { c.Auth.SecretKey = "" },
			errMsg: "SECRET_KEY is required",
		},
		{
			name:   "missing encryption key",
			modify: func(c *Config) { c.Encryption.Key = "" },
			errMsg: "GRC_ENCRYPTION_KEY is required",
		},
		{
			name:   "zero token expiry",
			modify: func(c *Config) { c.Auth.AccessTokenExpiry = 0 },
			errMsg: "auth.access_token_expiry must be positive",
		},
		{
			name:   "bcrypt cost too low",
			modify: func(c *Config) { c.Auth.BcryptCost = 1 },
			errMsg: "auth.bcrypt_cost must be between 4 and 31",
		},
		{
			name:   "zero breaker failures",
			modify: func(c *Config) { c.Consent.BreakerMaxFailures = 0 },
			errMsg: "consent.breaker_max_failures must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := validDefaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults with secrets should validate, got %v", err)
	}
}

func TestValidateMemoryDriverSkipsPostgres(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = DriverMemory
	cfg.Postgres.DSN = ""
	if err := validate(&cfg); err != nil {
		t.Errorf("memory driver should not require a DSN, got %v", err)
	}
}

func TestLoadEnvStoreDriver(t *testing.T) {
	t.Setenv("GRC_STORE_DRIVER", "memory")
	t.Setenv("GRC_NATS_KV_TTL", "90s")
	cfg := Defaults()
	if err := loadEnv(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("expected memory driver, got %s", cfg.Store.Driver)
	}
	if cfg.NATS.KVTTL != 90*time.Second {
		t.Errorf("expected 90s kv ttl, got %s", cfg.NATS.KVTTL)
	}
}

func TestLoadFromFailsWithoutEncryptionKey(t *testing.T) {
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("GRC_ENCRYPTION_KEY", "")
	if _, err := LoadFrom("/nonexistent/grc.yaml"); err == nil {
		t.Fatal("expected startup config to fail without encryption key")
	}
}

func TestParseFlags(t *testing.T) {
	flags, err := ParseFlags([]string{"--port", "9090", "--log-level", "debug"})
	if err != nil {
		t.Fatal(err)
	}

	if flags.Port == nil || *flags.Port != "9090" {
		t.Errorf("expected port 9090, got %v", flags.Port)
	}
	if flags.LogLevel == nil || *flags.LogLevel != "debug" {
		t.Errorf("expected log-level debug, got %v", flags.LogLevel)
	}
	// Unset flags remain nil
	if flags.DSN != nil {
		t.Errorf("expected nil DSN, got %v", *flags.DSN)
	}
	if flags.NatsURL != nil {
		t.Errorf("expected nil NatsURL, got %v", *flags.NatsURL)
	}
	if flags.ConfigPath != nil {
		t.Errorf("expected nil ConfigPath, got %v", *flags.ConfigPath)
	}
}

func TestParseFlagsShorthand(t *testing.T) {
	flags, err := ParseFlags([]string{"-p", "7070", "-c", "custom.yaml"})
	if err != nil {
		t.Fatal(err)
	}

	if flags.Port == nil || *flags.Port != "7070" {
		t.Errorf("expected port 7070, got %v", flags.Port)
	}
	if flags.ConfigPath == nil || *flags.ConfigPath != "custom.yaml" {
		t.Errorf("expected config custom.yaml, got %v", flags.ConfigPath)
	}
}

func TestParseFlagsInvalid(t *testing.T) {
	_, err := ParseFlags([]string{"--unknown-flag"})
	if err == nil {
		t.Error("expected error for unknown flag, got nil")
	}
}

func TestCLIOverridesEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GRC_PORT", "7070")
	t.Setenv("GRC_LOG_LEVEL", "warn")

	flags, err := ParseFlags([]string{"--port", "3333", "--log-level", "error", "-c", "/nonexistent/grc.yaml"})
	if err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadWithCLI(flags)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "3333" {
		t.Errorf("expected CLI port 3333 to override ENV 7070, got %s", cfg.Server.Port)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("expected CLI log-level error to override ENV warn, got %s", cfg.Logging.Level)
	}
}

func TestLoadWithCLICustomConfig(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "custom.yaml")
	content := `
server:
  port: "5555"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	flags, err := ParseFlags([]string{"--config", yamlPath})
	if err != nil {
		t.Fatal(err)
	}

	cfg, resolvedPath, err := LoadWithCLI(flags)
	if err != nil {
		t.Fatal(err)
	}

	if resolvedPath != yamlPath {
		t.Errorf("expected resolved path %s, got %s", yamlPath, resolvedPath)
	}
	if cfg.Server.Port != "5555" {
		t.Errorf("expected port 5555 from custom YAML, got %s", cfg.Server.Port)
	}
}
