package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownVenue and ErrUnknownPair are returned by the parse functions.
var (
	ErrUnknownVenue = errors.New("unknown venue")
	ErrUnknownPair  = errors.New("unknown pair")
)

// -----------------------------------------------------------------------------
// Venue
// -----------------------------------------------------------------------------

// Venue identifies a trading venue.
type Venue uint8

const (
	Binance Venue = iota + 1
	Bybit
	Coinbase
)

// Venues lists every supported venue.
var Venues = []Venue{Binance, Bybit, Coinbase}

func (v Venue) String() string {
	switch v {
	case Binance:
		return "Binance"
	case Bybit:
		return "Bybit"
	case Coinbase:
		return "Coinbase"
	default:
		return fmt.Sprintf("Venue(%d)", uint8(v))
	}
}

// ParseVenue parses a venue name, ignoring case.
func ParseVenue(s string) (Venue, error) {
	for _, v := range Venues {
		if strings.EqualFold(s, v.String()) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVenue, s)
}

// MarshalText implements encoding.TextMarshaler.
func (v Venue) MarshalText() ([]byte, error) {
	if v < Binance || v > Coinbase {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVenue, uint8(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Venue) UnmarshalText(text []byte) error {
	parsed, err := ParseVenue(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// -----------------------------------------------------------------------------
// Pair
// -----------------------------------------------------------------------------

// Pair identifies a traded instrument.
type Pair uint8

const (
	BTCUSDT Pair = iota + 1
	ETHUSDT
	SOLUSDT
)

// Pairs lists every supported pair.
var Pairs = []Pair{BTCUSDT, ETHUSDT, SOLUSDT}

// PairFormat selects how a pair is spelled on a venue's wire protocol.
type PairFormat uint8

const (
	Upper         PairFormat = iota // BTCUSDT
	Lower                           // btcusdt
	UpperWithDash                   // BTC-USDT
	LowerWithDash                   // btc-usdt
)

// PairFormats lists every rendering style.
var PairFormats = []PairFormat{Upper, Lower, UpperWithDash, LowerWithDash}

// Legs returns the base and quote assets.
func (p Pair) Legs() (base, quote string) {
	switch p {
	case BTCUSDT:
		return "BTC", "USDT"
	case ETHUSDT:
		return "ETH", "USDT"
	case SOLUSDT:
		return "SOL", "USDT"
	default:
		return "", ""
	}
}

// Format renders the pair in the given style.
func (p Pair) Format(f PairFormat) string {
	base, quote := p.Legs()
	if base == "" {
		return ""
	}
	switch f {
	case Lower:
		return strings.ToLower(base + quote)
	case UpperWithDash:
		return base + "-" + quote
	case LowerWithDash:
		return strings.ToLower(base + "-" + quote)
	default:
		return base + quote
	}
}

func (p Pair) String() string {
	if s := p.Format(Upper); s != "" {
		return s
	}
	return fmt.Sprintf("Pair(%d)", uint8(p))
}

// ParsePair parses a pair spelled in any PairFormat.
func ParsePair(s string) (Pair, error) {
	norm := strings.ToUpper(strings.ReplaceAll(s, "-", ""))
	for _, p := range Pairs {
		if norm == p.Format(Upper) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPair, s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Pair) MarshalText() ([]byte, error) {
	if p < BTCUSDT || p > SOLUSDT {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPair, uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pair) UnmarshalText(text []byte) error {
	parsed, err := ParsePair(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// -----------------------------------------------------------------------------
// Raw events
// -----------------------------------------------------------------------------

// EventKind discriminates RawEvent variants.
type EventKind uint8

const (
	EventUnsupported EventKind = iota
	EventTrade
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventTrade:
		return "trade"
	case EventError:
		return "error"
	default:
		return "unsupported"
	}
}

// Trade is a single decoded trade print.
type Trade struct {
	Price      float64
	Size       float64
	ObservedAt time.Time // Venue timestamp of the trade
}

// RawEvent is one decoded item from a venue stream. Only the field matching
// Kind is meaningful.
type RawEvent struct {
	Kind    EventKind
	Trade   Trade
	Message string // EventError only
}

// TradeEvent builds a trade event.
func TradeEvent(price, size float64, observedAt time.Time) RawEvent {
	return RawEvent{
		Kind:  EventTrade,
		Trade: Trade{Price: price, Size: size, ObservedAt: observedAt},
	}
}

// ErrorEvent builds an error event.
func ErrorEvent(msg string) RawEvent {
	return RawEvent{Kind: EventError, Message: msg}
}

// UnsupportedEvent builds an event for frames that carry no trade.
func UnsupportedEvent() RawEvent {
	return RawEvent{Kind: EventUnsupported}
}

// -----------------------------------------------------------------------------
// Aggregated samples
// -----------------------------------------------------------------------------

// Sample is the volume-weighted average price of one venue/pair over one window.
// Size is always > 0 for a sample that leaves the aggregator.
type Sample struct {
	Venue     Venue     `json:"exchange"`
	Pair      Pair      `json:"symbol"`
	Price     float64   `json:"price"`     // VWAP over the window
	Size      float64   `json:"size"`      // Total traded volume in the window
	WindowEnd time.Time `json:"timestamp"` // Tick that closed the window
}
