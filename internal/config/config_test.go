package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/vwap-ticker/internal/exchange"
	"github.com/rickgao/vwap-ticker/internal/model"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-ticker
ingestion:
  tick_interval: 250ms
  channel_capacity: 16
subscriptions:
  - exchange: Binance
    symbol: BTCUSDT
  - exchange: coinbase
    symbol: ETH-USDT
database:
  driver: postgres
  postgres:
    host: localhost
    port: 5432
    name: test_db
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-ticker" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-ticker")
	}
	if cfg.Ingestion.TickInterval != 250*time.Millisecond {
		t.Errorf("Ingestion.TickInterval = %v, want 250ms", cfg.Ingestion.TickInterval)
	}
	if cfg.Ingestion.ChannelCapacity != 16 {
		t.Errorf("Ingestion.ChannelCapacity = %d, want 16", cfg.Ingestion.ChannelCapacity)
	}
	want := []Subscription{
		{Venue: model.Binance, Pair: model.BTCUSDT},
		{Venue: model.Coinbase, Pair: model.ETHUSDT},
	}
	if len(cfg.Subscriptions) != len(want) {
		t.Fatalf("Subscriptions = %v, want %v", cfg.Subscriptions, want)
	}
	for i := range want {
		if cfg.Subscriptions[i] != want[i] {
			t.Errorf("Subscriptions[%d] = %v, want %v", i, cfg.Subscriptions[i], want[i])
		}
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Database.Postgres.Host = %q, want %q", cfg.Database.Postgres.Host, "localhost")
	}
}

func TestLoadUnknownVenue(t *testing.T) {
	path := writeTempFile(t, `
subscriptions:
  - exchange: Kraken
    symbol: BTCUSDT
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown exchange")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
database:
  postgres:
    host: localhost
    name: test_db
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "secret123")
	}
}

func TestLoadWithDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
cache:
  url: ${TICKER_TEST_REDIS_URL}
`)
	writeFile(t, filepath.Join(dir, ".env"), "TICKER_TEST_REDIS_URL=redis://localhost:6379/1\n")
	t.Cleanup(func() { os.Unsetenv("TICKER_TEST_REDIS_URL") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cache.URL != "redis://localhost:6379/1" {
		t.Errorf("Cache.URL = %q, want value from .env", cfg.Cache.URL)
	}
	if !cfg.Cache.Enabled() {
		t.Error("expected cache to be enabled")
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	t.Setenv("TICKER_TEST_LEVEL", "debug")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "logging:\n  level: ${TICKER_TEST_LEVEL}\n")
	writeFile(t, filepath.Join(dir, ".env"), "TICKER_TEST_LEVEL=error\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "database:\n  driver: memory\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if !strings.HasPrefix(cfg.Instance.ID, "ticker-") {
		t.Errorf("Instance.ID = %q, want generated ticker- prefix", cfg.Instance.ID)
	}
	if cfg.Ingestion.TickInterval != 100*time.Millisecond {
		t.Errorf("Ingestion.TickInterval = %v, want 100ms", cfg.Ingestion.TickInterval)
	}
	if cfg.Ingestion.BufferSoftCap != 100000 {
		t.Errorf("Ingestion.BufferSoftCap = %d, want 100000", cfg.Ingestion.BufferSoftCap)
	}
	if cfg.Ingestion.ChannelCapacity != 1024 {
		t.Errorf("Ingestion.ChannelCapacity = %d, want 1024", cfg.Ingestion.ChannelCapacity)
	}
	if cfg.Server.Retention != 6000*time.Second {
		t.Errorf("Server.Retention = %v, want 6000s", cfg.Server.Retention)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, DefaultServerPort)
	}
	if cfg.Exchanges.Bybit.URL != exchange.DefaultBybitURL {
		t.Errorf("Exchanges.Bybit.URL = %q, want default", cfg.Exchanges.Bybit.URL)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("Database.Driver = %q, want memory", cfg.Database.Driver)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if len(cfg.Subscriptions) != 3 {
		t.Fatalf("Subscriptions = %v, want one per venue", cfg.Subscriptions)
	}
	for i, v := range model.Venues {
		if cfg.Subscriptions[i] != (Subscription{Venue: v, Pair: model.SOLUSDT}) {
			t.Errorf("Subscriptions[%d] = %v", i, cfg.Subscriptions[i])
		}
	}
	if cfg.Cache.Enabled() {
		t.Error("expected cache to be disabled by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults with memory driver should validate: %v", err)
	}
}

func TestExchangesVenue(t *testing.T) {
	cfg := Default()
	if got := cfg.Exchanges.Venue(model.Coinbase).URL; got != exchange.DefaultCoinbaseURL {
		t.Errorf("Venue(Coinbase).URL = %q", got)
	}
	if got := cfg.Exchanges.Venue(model.Venue(0)); got.URL != "" {
		t.Errorf("Venue(0) = %+v, want zero", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Database.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "zero tick interval",
			mutate:  func(c *Config) { c.Ingestion.TickInterval = 0 },
			wantErr: "ingestion.tick_interval must be > 0",
		},
		{
			name:    "no subscriptions",
			mutate:  func(c *Config) { c.Subscriptions = nil },
			wantErr: "subscriptions is required",
		},
		{
			name: "duplicate subscription",
			mutate: func(c *Config) {
				c.Subscriptions = append(c.Subscriptions, c.Subscriptions[0])
			},
			wantErr: "subscriptions[3] duplicates Binance SOLUSDT",
		},
		{
			name:    "missing symbol",
			mutate:  func(c *Config) { c.Subscriptions[1].Pair = 0 },
			wantErr: "subscriptions[1].symbol is required",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "missing postgres host",
			mutate:  func(c *Config) { c.Database.Postgres.Host = "" },
			wantErr: "database.postgres.host is required",
		},
		{
			name:    "missing postgres password",
			mutate:  func(c *Config) { c.Database.Postgres.Password = "" },
			wantErr: "database.postgres.password is required",
		},
		{
			name:    "min_conns exceeds max_conns",
			mutate:  func(c *Config) { c.Database.Postgres.MinConns = 20 },
			wantErr: "database.postgres.min_conns (20) cannot exceed max_conns (10)",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "sqlite" },
			wantErr: `database.driver must be "postgres" or "memory", got "sqlite"`,
		},
		{
			name: "memory driver skips postgres",
			mutate: func(c *Config) {
				c.Database.Driver = DriverMemory
				c.Database.Postgres = DBConfig{}
			},
		},
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestLoggingHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(LoggingConfig{Level: "warn", Format: "json"}.Handler(&buf))

	logger.Info("hidden")
	logger.Warn("shown", "venue", "Bybit")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"venue":"Bybit"`) {
		t.Errorf("expected json output, got %s", out)
	}

	if got := (LoggingConfig{Level: "bogus"}).SlogLevel(); got != slog.LevelInfo {
		t.Errorf("SlogLevel() = %v, want info", got)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
}
