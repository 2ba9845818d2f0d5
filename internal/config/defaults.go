package config

import (
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/vwap-ticker/internal/exchange"
	"github.com/rickgao/vwap-ticker/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultTickInterval      = 100 * time.Millisecond
	DefaultBufferSoftCap     = 100_000
	DefaultChannelCapacity   = 1024
	DefaultParallelThreshold = 4096
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultPingTimeout       = 60 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultWSBufferSize      = 10000
	DefaultServerPort        = 3000
	DefaultRetention         = 6000 * time.Second
	DefaultDBDriver          = DriverPostgres
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultCacheKeyPrefix    = "ticker:latest"
	DefaultCacheTTL          = time.Hour
	DefaultSinkWriteTimeout  = 5 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DefaultSubscriptions streams SOLUSDT from every venue.
func DefaultSubscriptions() []Subscription {
	subs := make([]Subscription, 0, len(model.Venues))
	for _, v := range model.Venues {
		subs = append(subs, Subscription{Venue: v, Pair: model.SOLUSDT})
	}
	return subs
}

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = "ticker-" + uuid.NewString()[:8]
	}

	// Ingestion defaults
	if c.Ingestion.TickInterval == 0 {
		c.Ingestion.TickInterval = DefaultTickInterval
	}
	if c.Ingestion.BufferSoftCap == 0 {
		c.Ingestion.BufferSoftCap = DefaultBufferSoftCap
	}
	if c.Ingestion.ChannelCapacity == 0 {
		c.Ingestion.ChannelCapacity = DefaultChannelCapacity
	}
	if c.Ingestion.ParallelThreshold == 0 {
		c.Ingestion.ParallelThreshold = DefaultParallelThreshold
	}

	// Exchange defaults
	if c.Exchanges.Binance.URL == "" {
		c.Exchanges.Binance.URL = exchange.DefaultBinanceURL
	}
	if c.Exchanges.Bybit.URL == "" {
		c.Exchanges.Bybit.URL = exchange.DefaultBybitURL
	}
	if c.Exchanges.Coinbase.URL == "" {
		c.Exchanges.Coinbase.URL = exchange.DefaultCoinbaseURL
	}
	if c.Exchanges.HandshakeTimeout == 0 {
		c.Exchanges.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Exchanges.PingTimeout == 0 {
		c.Exchanges.PingTimeout = DefaultPingTimeout
	}
	if c.Exchanges.WriteTimeout == 0 {
		c.Exchanges.WriteTimeout = DefaultWriteTimeout
	}
	if c.Exchanges.BufferSize == 0 {
		c.Exchanges.BufferSize = DefaultWSBufferSize
	}

	if len(c.Subscriptions) == 0 {
		c.Subscriptions = DefaultSubscriptions()
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.Retention == 0 {
		c.Server.Retention = DefaultRetention
	}

	// Database defaults
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDBDriver
	}
	applyDBDefaults(&c.Database.Postgres)

	// Cache defaults
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = DefaultCacheKeyPrefix
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}

	if c.Sink.WriteTimeout == 0 {
		c.Sink.WriteTimeout = DefaultSinkWriteTimeout
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
