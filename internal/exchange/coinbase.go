package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/vwap-ticker/internal/connection"
	"github.com/rickgao/vwap-ticker/internal/model"
)

// DefaultCoinbaseURL is the Coinbase Exchange market data feed.
const DefaultCoinbaseURL = "wss://ws-feed.exchange.coinbase.com"

// Coinbase streams ticker updates from Coinbase.
type Coinbase struct {
	base
}

// NewCoinbase creates a Coinbase adapter.
func NewCoinbase(cfg Config, logger *slog.Logger) *Coinbase {
	return &Coinbase{base: newBase(model.Coinbase, cfg, DefaultCoinbaseURL, logger)}
}

type coinbaseSubscribe struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// Subscribe connects and subscribes to the ticker channel for pair.
func (c *Coinbase) Subscribe(ctx context.Context, pair model.Pair) (<-chan model.RawEvent, error) {
	client, err := c.dial(ctx, c.cfg.URL)
	if err != nil {
		return nil, err
	}

	product := pair.Format(model.UpperWithDash)
	req := coinbaseSubscribe{
		Type:       "subscribe",
		ProductIDs: []string{product},
		Channels:   []string{"ticker"},
	}
	if err := client.SendJSON(req); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: subscribe %s: %w", ErrConnection, c.venue, product, err)
	}

	c.logger.Info("subscribed", "pair", pair, "product_id", product)
	return c.stream(ctx, client, pair, decodeCoinbase, nil), nil
}

type coinbaseMessage struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	LastSize  string `json:"last_size"`
	Time      string `json:"time"`
	Message   string `json:"message"`
	Reason    string `json:"reason"`
}

func decodeCoinbase(msg connection.TimestampedMessage) []model.RawEvent {
	var m coinbaseMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return []model.RawEvent{model.ErrorEvent(fmt.Sprintf("failed to decode frame: %v", err))}
	}

	switch m.Type {
	case "ticker":
		ts, err := time.Parse(time.RFC3339Nano, m.Time)
		if err != nil {
			return []model.RawEvent{model.ErrorEvent(fmt.Sprintf("failed to parse trade: invalid timestamp: %v", err))}
		}
		return []model.RawEvent{tradeEvent(m.Price, m.LastSize, ts.UTC())}
	case "error":
		return []model.RawEvent{model.ErrorEvent(fmt.Sprintf("%s: %s", m.Message, m.Reason))}
	default:
		return []model.RawEvent{model.UnsupportedEvent()}
	}
}
