package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/vwap-ticker/internal/connection"
	"github.com/rickgao/vwap-ticker/internal/model"
)

// DefaultBinanceURL is the Binance raw stream base.
const DefaultBinanceURL = "wss://stream.binance.com:9443/ws"

// Binance streams spot trades from Binance.
type Binance struct {
	base
}

// NewBinance creates a Binance adapter.
func NewBinance(cfg Config, logger *slog.Logger) *Binance {
	return &Binance{base: newBase(model.Binance, cfg, DefaultBinanceURL, logger)}
}

// Subscribe connects to the <pair>@trade stream.
func (b *Binance) Subscribe(ctx context.Context, pair model.Pair) (<-chan model.RawEvent, error) {
	url := strings.TrimRight(b.cfg.URL, "/") + "/" + pair.Format(model.Lower) + "@trade"

	client, err := b.dial(ctx, url)
	if err != nil {
		return nil, err
	}

	b.logger.Info("subscribed", "pair", pair, "url", url)
	return b.stream(ctx, client, pair, decodeBinance, nil), nil
}

// binanceTrade is the raw trade payload.
type binanceTrade struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

func decodeBinance(msg connection.TimestampedMessage) []model.RawEvent {
	var trade binanceTrade
	if err := json.Unmarshal(msg.Data, &trade); err != nil {
		return []model.RawEvent{model.ErrorEvent(fmt.Sprintf("failed to decode frame: %v", err))}
	}
	if trade.EventType != "trade" {
		return []model.RawEvent{model.UnsupportedEvent()}
	}
	if trade.TradeTime <= 0 {
		return []model.RawEvent{model.ErrorEvent("failed to parse trade: invalid timestamp")}
	}
	return []model.RawEvent{tradeEvent(trade.Price, trade.Quantity, time.UnixMilli(trade.TradeTime).UTC())}
}
