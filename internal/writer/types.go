package writer

import (
	"context"
	"time"

	"github.com/rickgao/vwap-ticker/internal/model"
)

// WriterConfig holds sink settings.
type WriterConfig struct {
	// WriteTimeout bounds each store append and cache publish.
	WriteTimeout time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		WriteTimeout: 5 * time.Second,
	}
}

// WriterMetrics contains sink statistics.
type WriterMetrics struct {
	Inserts     int64
	Errors      int64
	CacheErrors int64
}

// Appender persists one sample.
type Appender interface {
	Append(ctx context.Context, s model.Sample) error
}

// Publisher receives each persisted sample.
type Publisher interface {
	Publish(ctx context.Context, s model.Sample) error
}
