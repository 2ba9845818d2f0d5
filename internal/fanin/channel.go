package fanin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rickgao/vwap-ticker/internal/model"
)

// ErrClosed is returned by Send once the receiver has gone or the producer
// has been closed.
var ErrClosed = errors.New("fan-in channel closed")

// Channel is a bounded multi-producer, single-consumer queue of samples.
type Channel struct {
	samples chan model.Sample
	done    chan struct{} // closed when the receiver goes away

	mu        sync.Mutex
	producers int
	sealed    bool // samples channel closed

	receiverOnce sync.Once

	// Stats
	totalSent    atomic.Int64
	blockedSends atomic.Int64
}

// Stats contains channel statistics.
type Stats struct {
	Count         int
	Capacity      int
	Producers     int
	TotalSent     int64 // Samples accepted from producers
	TotalReceived int64 // Samples taken by the consumer
	BlockedSends  int64 // Sends that found the queue full
}

// New creates a Channel with the given capacity.
func New(capacity int) *Channel {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel{
		samples: make(chan model.Sample, capacity),
		done:    make(chan struct{}),
	}
}

// Producer registers a new producer. It must be called before the existing
// producers have all closed, otherwise the returned producer is already closed.
func (c *Channel) Producer() *Producer {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := &Producer{ch: c}
	if c.sealed {
		p.closed.Store(true)
		return p
	}
	c.producers++
	return p
}

// Samples returns the receive side. It is closed after the last producer closes.
func (c *Channel) Samples() <-chan model.Sample {
	return c.samples
}

// CloseReceiver signals that nothing will read from the channel any more.
// Blocked and future sends return ErrClosed.
func (c *Channel) CloseReceiver() {
	c.receiverOnce.Do(func() {
		close(c.done)
	})
}

// Len returns the number of queued samples.
func (c *Channel) Len() int {
	return len(c.samples)
}

// Cap returns the channel capacity.
func (c *Channel) Cap() int {
	return cap(c.samples)
}

// Stats returns channel statistics.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	producers := c.producers
	c.mu.Unlock()

	count := len(c.samples)
	sent := c.totalSent.Load()
	return Stats{
		Count:         count,
		Capacity:      cap(c.samples),
		Producers:     producers,
		TotalSent:     sent,
		TotalReceived: max(sent-int64(count), 0),
		BlockedSends:  c.blockedSends.Load(),
	}
}

// release drops one producer reference and closes the queue on the last one.
func (c *Channel) release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.producers--
	if c.producers == 0 && !c.sealed {
		c.sealed = true
		close(c.samples)
	}
}

// Producer is one sending handle on a Channel.
type Producer struct {
	ch     *Channel
	closed atomic.Bool
	once   sync.Once
}

// Send enqueues a sample, blocking while the queue is full. It returns
// ErrClosed if the receiver has gone or the producer is closed, and ctx.Err()
// if ctx ends first.
func (p *Producer) Send(ctx context.Context, s model.Sample) error {
	if p.closed.Load() {
		return ErrClosed
	}

	c := p.ch
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	// Fast path
	select {
	case c.samples <- s:
		c.totalSent.Add(1)
		return nil
	default:
	}

	c.blockedSends.Add(1)
	select {
	case c.samples <- s:
		c.totalSent.Add(1)
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the producer. Send must not be called concurrently with Close.
func (p *Producer) Close() {
	p.once.Do(func() {
		if p.closed.Swap(true) {
			// Created after the channel was sealed; never counted.
			return
		}
		p.ch.release()
	})
}
