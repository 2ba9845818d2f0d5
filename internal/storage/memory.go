package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/vwap-ticker/internal/model"
)

// Memory keeps samples in process. Samples are stored through the same
// decimal row encoding as Postgres so reads match across backends.
type Memory struct {
	mu   sync.RWMutex
	rows []tickRow
	now  func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// Append stores one sample.
func (m *Memory) Append(ctx context.Context, s model.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.rows = append(m.rows, toRow(s))
	m.mu.Unlock()
	return nil
}

// QueryAfter returns samples from the last d, oldest first. Samples with
// equal timestamps keep insertion order.
func (m *Memory) QueryAfter(ctx context.Context, d time.Duration) ([]model.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cutoff := m.now().Add(-d)

	m.mu.RLock()
	matched := make([]tickRow, 0, len(m.rows))
	for _, r := range m.rows {
		if !r.Ts.Before(cutoff) {
			matched = append(matched, r)
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b tickRow) int {
		return a.Ts.Compare(b.Ts)
	})

	samples := make([]model.Sample, 0, len(matched))
	for _, r := range matched {
		s, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// Len returns the number of stored samples.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}
