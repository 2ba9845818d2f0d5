package aggregate

import (
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/rickgao/vwap-ticker/internal/model"
)

// DefaultParallelThreshold is the batch length at which Aggregate starts
// partitioning work across goroutines.
const DefaultParallelThreshold = 4096

// Aggregator computes VWAP samples. It holds no per-window state and is safe
// for concurrent use.
type Aggregator struct {
	logger            *slog.Logger
	parallelThreshold int
	partitions        int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithParallelThreshold sets the batch length at which reduction goes parallel.
// A value < 1 disables parallel reduction.
func WithParallelThreshold(n int) Option {
	return func(a *Aggregator) {
		a.parallelThreshold = n
	}
}

// WithPartitions caps the number of goroutines used for one batch.
func WithPartitions(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.partitions = n
		}
	}
}

// New creates an Aggregator.
func New(logger *slog.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		logger:            logger,
		parallelThreshold: DefaultParallelThreshold,
		partitions:        runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// sums is a partial reduction over part of a window.
type sums struct {
	priceVolume float64
	volume      float64
}

func (s sums) add(o sums) sums {
	return sums{priceVolume: s.priceVolume + o.priceVolume, volume: s.volume + o.volume}
}

// Aggregate reduces events into a sample closing at windowEnd. It returns
// false when the window holds no positive volume.
func (a *Aggregator) Aggregate(venue model.Venue, pair model.Pair, windowEnd time.Time, events []model.RawEvent) (model.Sample, bool) {
	var total sums
	if a.parallelThreshold > 0 && len(events) >= a.parallelThreshold && a.partitions > 1 {
		total = a.reduceParallel(venue, pair, events)
	} else {
		total = a.reduce(venue, pair, events)
	}

	if !(total.volume > 0) {
		return model.Sample{}, false
	}
	price := total.priceVolume / total.volume
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return model.Sample{}, false
	}

	return model.Sample{
		Venue:     venue,
		Pair:      pair,
		Price:     price,
		Size:      total.volume,
		WindowEnd: windowEnd,
	}, true
}

// reduce folds events sequentially.
func (a *Aggregator) reduce(venue model.Venue, pair model.Pair, events []model.RawEvent) sums {
	var s sums
	for i := range events {
		ev := &events[i]
		switch ev.Kind {
		case model.EventTrade:
			if valid(ev.Trade) {
				s.priceVolume += ev.Trade.Price * ev.Trade.Size
				s.volume += ev.Trade.Size
			}
		case model.EventError:
			a.logger.Warn("error event from venue",
				"venue", venue,
				"pair", pair,
				"message", ev.Message,
			)
		case model.EventUnsupported:
		}
	}
	return s
}

// reduceParallel splits events into contiguous partitions and sums them concurrently.
func (a *Aggregator) reduceParallel(venue model.Venue, pair model.Pair, events []model.RawEvent) sums {
	n := a.partitions
	chunk := (len(events) + n - 1) / n
	partials := make([]sums, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		start := i * chunk
		if start >= len(events) {
			break
		}
		end := min(start+chunk, len(events))

		wg.Add(1)
		go func(i int, part []model.RawEvent) {
			defer wg.Done()
			partials[i] = a.reduce(venue, pair, part)
		}(i, events[start:end])
	}
	wg.Wait()

	var total sums
	for _, p := range partials {
		total = total.add(p)
	}
	return total
}

// valid reports whether a trade contributes to the reduction. Non-positive
// and non-finite values are treated as malformed.
func valid(t model.Trade) bool {
	return t.Price > 0 && t.Size > 0 && !math.IsInf(t.Price, 0) && !math.IsInf(t.Size, 0)
}
