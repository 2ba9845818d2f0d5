package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/vwap-ticker/internal/connection"
	"github.com/rickgao/vwap-ticker/internal/model"
)

const (
	// DefaultBybitURL is the Bybit v5 public spot endpoint.
	DefaultBybitURL = "wss://stream.bybit.com/v5/public/spot"

	bybitPingInterval = 20 * time.Second
)

// Bybit streams spot trades from Bybit.
type Bybit struct {
	base
	pingInterval time.Duration
}

// NewBybit creates a Bybit adapter.
func NewBybit(cfg Config, logger *slog.Logger) *Bybit {
	return &Bybit{
		base:         newBase(model.Bybit, cfg, DefaultBybitURL, logger),
		pingInterval: bybitPingInterval,
	}
}

type bybitRequest struct {
	ReqID string   `json:"req_id"`
	Op    string   `json:"op"`
	Args  []string `json:"args,omitempty"`
}

// Subscribe connects and subscribes to publicTrade.<PAIR>.
func (b *Bybit) Subscribe(ctx context.Context, pair model.Pair) (<-chan model.RawEvent, error) {
	client, err := b.dial(ctx, b.cfg.URL)
	if err != nil {
		return nil, err
	}

	topic := "publicTrade." + pair.Format(model.Upper)
	req := bybitRequest{ReqID: uuid.NewString(), Op: "subscribe", Args: []string{topic}}
	if err := client.SendJSON(req); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: subscribe %s: %w", ErrConnection, b.venue, topic, err)
	}

	b.logger.Info("subscribed", "pair", pair, "topic", topic)

	ka := &keepalive{
		interval: b.pingInterval,
		ping: func(c connection.Client) error {
			return c.SendJSON(bybitRequest{ReqID: uuid.NewString(), Op: "ping"})
		},
	}
	return b.stream(ctx, client, pair, decodeBybit, ka), nil
}

// bybitFrame covers both topic pushes and op responses.
type bybitFrame struct {
	Topic   string       `json:"topic"`
	Type    string       `json:"type"`
	Data    []bybitTrade `json:"data"`
	Op      string       `json:"op"`
	Success *bool        `json:"success"`
	RetMsg  string       `json:"ret_msg"`
}

type bybitTrade struct {
	Timestamp int64  `json:"T"`
	Symbol    string `json:"s"`
	Side      string `json:"S"`
	Size      string `json:"v"`
	Price     string `json:"p"`
	TradeID   string `json:"i"`
}

func decodeBybit(msg connection.TimestampedMessage) []model.RawEvent {
	var frame bybitFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		return []model.RawEvent{model.ErrorEvent(fmt.Sprintf("failed to decode frame: %v", err))}
	}

	if frame.Op != "" {
		if frame.Success != nil && !*frame.Success {
			return []model.RawEvent{model.ErrorEvent(fmt.Sprintf("%s rejected: %s", frame.Op, frame.RetMsg))}
		}
		return []model.RawEvent{model.UnsupportedEvent()}
	}

	if !strings.HasPrefix(frame.Topic, "publicTrade.") {
		return []model.RawEvent{model.UnsupportedEvent()}
	}

	// One push may carry several trades.
	events := make([]model.RawEvent, 0, len(frame.Data))
	for _, t := range frame.Data {
		if t.Timestamp <= 0 {
			events = append(events, model.ErrorEvent("failed to parse trade: invalid timestamp"))
			continue
		}
		events = append(events, tradeEvent(t.Price, t.Size, time.UnixMilli(t.Timestamp).UTC()))
	}
	return events
}
