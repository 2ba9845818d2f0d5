package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/vwap-ticker/internal/model"
)

// SampleWriter drains samples into the store.
type SampleWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	store Appender
	cache Publisher // nil when no cache is configured

	mu      sync.Mutex
	metrics WriterMetrics
}

// NewSampleWriter creates a sink. cache may be nil.
func NewSampleWriter(cfg WriterConfig, store Appender, cache Publisher, logger *slog.Logger) *SampleWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriterConfig().WriteTimeout
	}
	return &SampleWriter{
		cfg:    cfg,
		logger: logger,
		store:  store,
		cache:  cache,
	}
}

// Run writes every sample from in until in is closed and drained.
// ctx cancellation does not stop the loop; the producers closing in does.
func (w *SampleWriter) Run(ctx context.Context, in <-chan model.Sample) {
	writeCtx := context.WithoutCancel(ctx)

	w.logger.Info("sample writer started", "write_timeout", w.cfg.WriteTimeout)

	for s := range in {
		w.write(writeCtx, s)
	}

	m := w.Stats()
	w.logger.Info("sample writer stopped",
		"inserts", m.Inserts,
		"errors", m.Errors,
		"cache_errors", m.CacheErrors,
	)
}

// Stats returns current metrics.
func (w *SampleWriter) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *SampleWriter) write(ctx context.Context, s model.Sample) {
	start := time.Now()

	appendCtx, cancel := context.WithTimeout(ctx, w.cfg.WriteTimeout)
	err := w.store.Append(appendCtx, s)
	cancel()

	if err != nil {
		w.logger.Error("append sample failed",
			"error", err,
			"venue", s.Venue,
			"pair", s.Pair,
			"window_end", s.WindowEnd,
		)
		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.metrics.Inserts++
	w.mu.Unlock()

	w.logger.Debug("stored sample",
		"venue", s.Venue,
		"pair", s.Pair,
		"price", s.Price,
		"size", s.Size,
		"duration", time.Since(start),
	)

	if w.cache == nil {
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, w.cfg.WriteTimeout)
	err = w.cache.Publish(publishCtx, s)
	cancel()

	if err != nil {
		w.logger.Warn("publish latest sample failed", "error", err, "venue", s.Venue, "pair", s.Pair)
		w.mu.Lock()
		w.metrics.CacheErrors++
		w.mu.Unlock()
	}
}
