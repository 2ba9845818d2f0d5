package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/vwap-ticker/internal/connection"
	"github.com/rickgao/vwap-ticker/internal/model"
)

// ErrConnection is wrapped by every dial or subscribe failure.
var ErrConnection = errors.New("exchange connection failed")

// ErrUnsupportedVenue is returned by NewSource for venues without an adapter.
var ErrUnsupportedVenue = errors.New("unsupported venue")

// Source is a venue stream adapter.
type Source interface {
	Venue() model.Venue
	Subscribe(ctx context.Context, pair model.Pair) (<-chan model.RawEvent, error)
}

// NewSource returns the adapter for venue.
func NewSource(venue model.Venue, cfg Config, logger *slog.Logger) (Source, error) {
	switch venue {
	case model.Binance:
		return NewBinance(cfg, logger), nil
	case model.Bybit:
		return NewBybit(cfg, logger), nil
	case model.Coinbase:
		return NewCoinbase(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedVenue, venue)
	}
}

// Config configures a venue adapter.
type Config struct {
	URL    string                  // Venue stream endpoint; empty uses the venue default
	Client connection.ClientConfig // Transport settings; URL is set per subscription
}

// decodeFunc turns one frame into zero or more events.
type decodeFunc func(msg connection.TimestampedMessage) []model.RawEvent

// keepalive is an application-level heartbeat some venues require.
type keepalive struct {
	interval time.Duration
	ping     func(connection.Client) error
}

// base holds what every adapter shares.
type base struct {
	venue     model.Venue
	cfg       Config
	logger    *slog.Logger
	newClient func(connection.ClientConfig, *slog.Logger) connection.Client
}

func newBase(venue model.Venue, cfg Config, defaultURL string, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	return base{
		venue:     venue,
		cfg:       cfg,
		logger:    logger.With("venue", venue),
		newClient: connection.NewClient,
	}
}

// Venue returns the adapter's venue.
func (b *base) Venue() model.Venue {
	return b.venue
}

// dial connects to url, wrapping failures with ErrConnection.
func (b *base) dial(ctx context.Context, url string) (connection.Client, error) {
	cfg := b.cfg.Client
	cfg.URL = url

	client := b.newClient(cfg, b.logger)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, b.venue, err)
	}
	return client, nil
}

// stream pumps decoded frames from client into a new channel until the
// connection ends or ctx is cancelled. The client is closed on exit.
func (b *base) stream(ctx context.Context, client connection.Client, pair model.Pair, decode decodeFunc, ka *keepalive) <-chan model.RawEvent {
	out := make(chan model.RawEvent, 64)
	logger := b.logger.With("pair", pair)

	go func() {
		defer close(out)
		defer client.Close()

		var heartbeat <-chan time.Time
		if ka != nil {
			ticker := time.NewTicker(ka.interval)
			defer ticker.Stop()
			heartbeat = ticker.C
		}

		emit := func(ev model.RawEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case <-heartbeat:
				if err := ka.ping(client); err != nil {
					logger.Debug("keepalive failed", "error", err)
				}

			case msg, ok := <-client.Messages():
				if !ok {
					var err error
					select {
					case err = <-client.Errors():
					default:
					}
					if err == nil {
						err = errors.New("connection closed")
					}
					logger.Warn("venue stream closed", "error", err)
					emit(model.ErrorEvent(fmt.Sprintf("stream error: %v", err)))
					return
				}
				for _, ev := range decode(msg) {
					if !emit(ev) {
						return
					}
				}
			}
		}
	}()

	return out
}

// parseDecimal parses a venue decimal string.
func parseDecimal(field, s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return d.InexactFloat64(), nil
}

// tradeEvent builds a trade event from decimal strings, or an error event
// describing why they could not be parsed.
func tradeEvent(price, size string, observedAt time.Time) model.RawEvent {
	p, err := parseDecimal("price", price)
	if err != nil {
		return model.ErrorEvent(fmt.Sprintf("failed to parse trade: %v", err))
	}
	s, err := parseDecimal("size", size)
	if err != nil {
		return model.ErrorEvent(fmt.Sprintf("failed to parse trade: %v", err))
	}
	return model.TradeEvent(p, s, observedAt)
}
