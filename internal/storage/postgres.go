package storage

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/vwap-ticker/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// Postgres stores samples in the price_ticks table.
type Postgres struct {
	db     DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgres creates a Postgres store on db.
func NewPostgres(db DB, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Migrate creates the price_ticks table and index if missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	p.logger.Debug("schema applied")
	return nil
}

// Append inserts one sample.
func (p *Postgres) Append(ctx context.Context, s model.Sample) error {
	r := toRow(s)
	_, err := p.db.Exec(ctx, `
		INSERT INTO price_ticks (exchange, symbol, price, size, ts)
		VALUES ($1, $2, $3, $4, $5)
	`, r.Exchange, r.Symbol, r.Price, r.Size, r.Ts)
	if err != nil {
		return fmt.Errorf("insert price tick: %w", err)
	}
	return nil
}

// QueryAfter returns samples from the last d, oldest first.
func (p *Postgres) QueryAfter(ctx context.Context, d time.Duration) ([]model.Sample, error) {
	cutoff := p.now().Add(-d).UTC()

	rows, err := p.db.Query(ctx, `
		SELECT exchange, symbol, price, size, ts
		FROM price_ticks
		WHERE ts >= $1
		ORDER BY ts ASC, id ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query price ticks: %w", err)
	}
	defer rows.Close()

	samples := make([]model.Sample, 0)
	for rows.Next() {
		var r tickRow
		if err := rows.Scan(&r.Exchange, &r.Symbol, &r.Price, &r.Size, &r.Ts); err != nil {
			return nil, fmt.Errorf("scan price tick: %w", err)
		}
		s, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price ticks: %w", err)
	}

	return samples, nil
}

// Ping verifies the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}
