package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/vwap-ticker/internal/fanin"
	"github.com/rickgao/vwap-ticker/internal/model"
)

// ErrStreamEnded is returned when the venue stream closes while the worker is running.
var ErrStreamEnded = errors.New("event stream ended")

// Source yields a live stream of raw events for one pair on one venue.
// The returned channel is closed when the stream ends or ctx is cancelled.
type Source interface {
	Venue() model.Venue
	Subscribe(ctx context.Context, pair model.Pair) (<-chan model.RawEvent, error)
}

// Outbox accepts aggregated samples. Send blocks while the downstream queue
// is full and returns fanin.ErrClosed once the receiver has gone.
type Outbox interface {
	Send(ctx context.Context, s model.Sample) error
}

// Aggregator reduces one window of events into at most one sample.
type Aggregator interface {
	Aggregate(venue model.Venue, pair model.Pair, windowEnd time.Time, events []model.RawEvent) (model.Sample, bool)
}

// Config holds worker settings.
type Config struct {
	TickInterval  time.Duration // Window length (default: 100ms)
	BufferSoftCap int           // Advisory buffer length; exceeding it only logs (default: 100000)
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:  100 * time.Millisecond,
		BufferSoftCap: 100_000,
	}
}

// Stats contains worker statistics.
type Stats struct {
	EventsReceived  int64
	TradeEvents     int64
	ErrorEvents     int64
	Windows         int64 // Ticks processed
	SamplesSent     int64
	EmptyWindows    int64 // Ticks that produced no sample
	OverflowWindows int64 // Windows whose buffer exceeded the soft cap
}

// Worker bridges one venue stream to fixed-cadence samples.
type Worker struct {
	cfg    Config
	source Source
	pair   model.Pair
	agg    Aggregator
	logger *slog.Logger

	eventsReceived  atomic.Int64
	tradeEvents     atomic.Int64
	errorEvents     atomic.Int64
	windows         atomic.Int64
	samplesSent     atomic.Int64
	emptyWindows    atomic.Int64
	overflowWindows atomic.Int64
}

// NewWorker creates a worker for pair on source.
func NewWorker(cfg Config, source Source, pair model.Pair, agg Aggregator, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.BufferSoftCap <= 0 {
		cfg.BufferSoftCap = def.BufferSoftCap
	}
	return &Worker{
		cfg:    cfg,
		source: source,
		pair:   pair,
		agg:    agg,
		logger: logger.With("venue", source.Venue(), "pair", pair),
	}
}

// Venue returns the worker's venue.
func (w *Worker) Venue() model.Venue {
	return w.source.Venue()
}

// Pair returns the worker's pair.
func (w *Worker) Pair() model.Pair {
	return w.pair
}

// Stats returns current worker statistics.
func (w *Worker) Stats() Stats {
	return Stats{
		EventsReceived:  w.eventsReceived.Load(),
		TradeEvents:     w.tradeEvents.Load(),
		ErrorEvents:     w.errorEvents.Load(),
		Windows:         w.windows.Load(),
		SamplesSent:     w.samplesSent.Load(),
		EmptyWindows:    w.emptyWindows.Load(),
		OverflowWindows: w.overflowWindows.Load(),
	}
}

// Run subscribes and processes events until the stream ends, the outbox
// closes, or ctx is cancelled. Only subscribe failures and stream end are
// reported as errors.
func (w *Worker) Run(ctx context.Context, out Outbox) error {
	events, err := w.source.Subscribe(ctx, w.pair)
	if err != nil {
		w.logger.Error("failed to subscribe", "error", err)
		return fmt.Errorf("subscribe %s %s: %w", w.source.Venue(), w.pair, err)
	}

	w.logger.Info("ingestion worker started",
		"tick_interval", w.cfg.TickInterval,
		"buffer_soft_cap", w.cfg.BufferSoftCap,
	)

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	var (
		buffer     []model.RawEvent
		overflowed bool
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ingestion worker cancelled", "discarded_events", len(buffer))
			return nil

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Warn("event stream ended", "pending_events", len(buffer))
				if w.flush(ctx, out, buffer, time.Now().UTC()) {
					return nil
				}
				return fmt.Errorf("%s %s: %w", w.source.Venue(), w.pair, ErrStreamEnded)
			}
			buffer = append(buffer, ev)
			w.countEvent(ev)

			if len(buffer) > w.cfg.BufferSoftCap && !overflowed {
				overflowed = true
				w.overflowWindows.Add(1)
				w.logger.Warn("window buffer exceeded soft cap",
					"len", len(buffer),
					"soft_cap", w.cfg.BufferSoftCap,
				)
			}

		case tick := <-ticker.C:
			// Hand the current buffer to the aggregator and start a new one.
			batch := buffer
			buffer = nil
			overflowed = false

			if w.flush(ctx, out, batch, tick.UTC()) {
				return nil
			}
		}
	}
}

// flush aggregates batch and sends the sample. It reports whether the worker
// must stop; receiver loss and cancellation are clean shutdowns.
func (w *Worker) flush(ctx context.Context, out Outbox, batch []model.RawEvent, windowEnd time.Time) bool {
	w.windows.Add(1)

	sample, ok := w.agg.Aggregate(w.source.Venue(), w.pair, windowEnd, batch)
	if !ok {
		w.emptyWindows.Add(1)
		return false
	}

	if err := out.Send(ctx, sample); err != nil {
		switch {
		case errors.Is(err, fanin.ErrClosed):
			w.logger.Info("receiver gone, stopping ingestion worker")
		case ctx.Err() != nil:
			w.logger.Info("ingestion worker cancelled during send")
		default:
			w.logger.Warn("send failed, stopping ingestion worker", "error", err)
		}
		return true
	}

	w.samplesSent.Add(1)
	return false
}

func (w *Worker) countEvent(ev model.RawEvent) {
	w.eventsReceived.Add(1)
	switch ev.Kind {
	case model.EventTrade:
		w.tradeEvents.Add(1)
	case model.EventError:
		w.errorEvents.Add(1)
	case model.EventUnsupported:
	}
}
