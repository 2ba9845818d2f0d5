package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Ingestion.TickInterval <= 0 {
		return errors.New("ingestion.tick_interval must be > 0")
	}
	if c.Ingestion.BufferSoftCap < 1 {
		return errors.New("ingestion.buffer_soft_cap must be >= 1")
	}
	if c.Ingestion.ChannelCapacity < 1 {
		return errors.New("ingestion.channel_capacity must be >= 1")
	}
	if c.Ingestion.ParallelThreshold < 1 {
		return errors.New("ingestion.parallel_threshold must be >= 1")
	}

	if len(c.Subscriptions) == 0 {
		return errors.New("subscriptions is required")
	}
	seen := make(map[Subscription]bool, len(c.Subscriptions))
	for i, sub := range c.Subscriptions {
		if sub.Venue == 0 {
			return fmt.Errorf("subscriptions[%d].exchange is required", i)
		}
		if sub.Pair == 0 {
			return fmt.Errorf("subscriptions[%d].symbol is required", i)
		}
		if seen[sub] {
			return fmt.Errorf("subscriptions[%d] duplicates %s %s", i, sub.Venue, sub.Pair)
		}
		seen[sub] = true
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Retention <= 0 {
		return errors.New("server.retention must be > 0")
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Database.Driver)
	}

	if c.Sink.WriteTimeout <= 0 {
		return errors.New("sink.write_timeout must be > 0")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
