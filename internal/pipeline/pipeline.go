package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/vwap-ticker/internal/fanin"
	"github.com/rickgao/vwap-ticker/internal/ingest"
	"github.com/rickgao/vwap-ticker/internal/model"
)

// ErrNoSubscriptions is returned by Run when there is nothing to ingest.
var ErrNoSubscriptions = errors.New("no subscriptions configured")

// Sink consumes samples until the channel is closed.
type Sink interface {
	Run(ctx context.Context, in <-chan model.Sample)
}

// Subscription pairs a venue source with the pair to ingest from it.
type Subscription struct {
	Source ingest.Source
	Pair   model.Pair
}

// Config holds pipeline settings.
type Config struct {
	Ingest          ingest.Config
	ChannelCapacity int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Ingest:          ingest.DefaultConfig(),
		ChannelCapacity: 1024,
	}
}

// WorkerStats is one worker's statistics.
type WorkerStats struct {
	Venue model.Venue `json:"exchange"`
	Pair  model.Pair  `json:"symbol"`
	ingest.Stats
}

// Stats contains pipeline statistics.
type Stats struct {
	Workers []WorkerStats `json:"workers"`
	Channel fanin.Stats   `json:"channel"`
}

// Pipeline runs workers into a sink.
type Pipeline struct {
	cfg     Config
	logger  *slog.Logger
	workers []*ingest.Worker
	channel *fanin.Channel
	sink    Sink
}

// New builds a pipeline with one worker per subscription.
func New(cfg Config, subs []Subscription, agg ingest.Aggregator, sink Sink, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = DefaultConfig().ChannelCapacity
	}

	workers := make([]*ingest.Worker, 0, len(subs))
	for _, sub := range subs {
		workers = append(workers, ingest.NewWorker(cfg.Ingest, sub.Source, sub.Pair, agg, logger))
	}

	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		workers: workers,
		channel: fanin.New(cfg.ChannelCapacity),
		sink:    sink,
	}
}

// Run starts every worker and the sink. It returns after all workers have
// stopped and the sink has drained the channel. The result joins the
// failures of individual workers; cancellation alone is not a failure.
func (p *Pipeline) Run(ctx context.Context) error {
	if len(p.workers) == 0 {
		return ErrNoSubscriptions
	}

	// Register every producer before any worker can finish.
	producers := make([]*fanin.Producer, len(p.workers))
	for i := range p.workers {
		producers[i] = p.channel.Producer()
	}

	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		p.sink.Run(ctx, p.channel.Samples())
	}()

	p.logger.Info("pipeline started",
		"workers", len(p.workers),
		"channel_capacity", p.cfg.ChannelCapacity,
	)

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for i, w := range p.workers {
		prod := producers[i]
		g.Go(func() error {
			defer prod.Close()
			if err := w.Run(ctx, prod); err != nil {
				p.logger.Error("ingestion worker failed",
					"venue", w.Venue(),
					"pair", w.Pair(),
					"error", err,
				)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			// Never fail the group; the other workers keep running.
			return nil
		})
	}
	g.Wait()

	<-sinkDone

	p.logger.Info("pipeline stopped", "failed_workers", len(errs))
	return errors.Join(errs...)
}

// Stats returns current worker and channel statistics.
func (p *Pipeline) Stats() Stats {
	stats := Stats{
		Workers: make([]WorkerStats, 0, len(p.workers)),
		Channel: p.channel.Stats(),
	}
	for _, w := range p.workers {
		stats.Workers = append(stats.Workers, WorkerStats{
			Venue: w.Venue(),
			Pair:  w.Pair(),
			Stats: w.Stats(),
		})
	}
	return stats
}
