package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/vwap-ticker/internal/model"
)

// ErrInvalidRow is returned when a stored row cannot be mapped back to a sample.
var ErrInvalidRow = errors.New("invalid stored row")

// Store is the persistence collaborator for samples.
type Store interface {
	// Append persists one sample.
	Append(ctx context.Context, s model.Sample) error

	// QueryAfter returns samples with WindowEnd >= now-d, oldest first.
	QueryAfter(ctx context.Context, d time.Duration) ([]model.Sample, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)

// tickRow is the storage representation of a sample.
type tickRow struct {
	Exchange string
	Symbol   string
	Price    string
	Size     string
	Ts       time.Time
}

func toRow(s model.Sample) tickRow {
	return tickRow{
		Exchange: s.Venue.String(),
		Symbol:   s.Pair.String(),
		Price:    decimal.NewFromFloat(s.Price).String(),
		Size:     decimal.NewFromFloat(s.Size).String(),
		Ts:       s.WindowEnd.UTC(),
	}
}

func fromRow(r tickRow) (model.Sample, error) {
	venue, err := model.ParseVenue(r.Exchange)
	if err != nil {
		return model.Sample{}, fmt.Errorf("%w: %w", ErrInvalidRow, err)
	}
	pair, err := model.ParsePair(r.Symbol)
	if err != nil {
		return model.Sample{}, fmt.Errorf("%w: %w", ErrInvalidRow, err)
	}
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return model.Sample{}, fmt.Errorf("%w: price %q: %w", ErrInvalidRow, r.Price, err)
	}
	size, err := decimal.NewFromString(r.Size)
	if err != nil {
		return model.Sample{}, fmt.Errorf("%w: size %q: %w", ErrInvalidRow, r.Size, err)
	}
	return model.Sample{
		Venue:     venue,
		Pair:      pair,
		Price:     price.InexactFloat64(),
		Size:      size.InexactFloat64(),
		WindowEnd: r.Ts.UTC(),
	}, nil
}
