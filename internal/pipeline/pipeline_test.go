package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/vwap-ticker/internal/aggregate"
	"github.com/rickgao/vwap-ticker/internal/ingest"
	"github.com/rickgao/vwap-ticker/internal/model"
	"github.com/rickgao/vwap-ticker/internal/storage"
	"github.com/rickgao/vwap-ticker/internal/writer"
)

// scriptedSource emits events and then either closes or stays open until ctx ends.
type scriptedSource struct {
	venue        model.Venue
	events       []model.RawEvent
	closeAtEnd   bool
	subscribeErr error
}

func (s *scriptedSource) Venue() model.Venue { return s.venue }

func (s *scriptedSource) Subscribe(ctx context.Context, pair model.Pair) (<-chan model.RawEvent, error) {
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	out := make(chan model.RawEvent)
	go func() {
		defer close(out)
		for _, ev := range s.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if s.closeAtEnd {
			return
		}
		<-ctx.Done()
	}()
	return out, nil
}

func trades(price float64, n int) []model.RawEvent {
	events := make([]model.RawEvent, n)
	for i := range events {
		events[i] = model.TradeEvent(price, 1, time.Now())
	}
	return events
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Ingest.TickInterval = 20 * time.Millisecond
	cfg.ChannelCapacity = 4
	return cfg
}

func newPipeline(subs []Subscription) (*Pipeline, *storage.Memory) {
	store := storage.NewMemory()
	sink := writer.NewSampleWriter(writer.DefaultWriterConfig(), store, nil, nil)
	return New(testConfig(), subs, aggregate.New(nil), sink, nil), store
}

func TestPipeline_RunsUntilCancelled(t *testing.T) {
	subs := []Subscription{
		{Source: &scriptedSource{venue: model.Binance, events: trades(100, 5)}, Pair: model.SOLUSDT},
		{Source: &scriptedSource{venue: model.Bybit, events: trades(200, 5)}, Pair: model.SOLUSDT},
	}
	p, store := newPipeline(subs)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))

	got, err := store.QueryAfter(context.Background(), time.Hour)
	require.NoError(t, err)

	byVenue := map[model.Venue][]model.Sample{}
	for _, s := range got {
		byVenue[s.Venue] = append(byVenue[s.Venue], s)
	}
	require.NotEmpty(t, byVenue[model.Binance])
	require.NotEmpty(t, byVenue[model.Bybit])

	var binanceVolume float64
	for _, s := range byVenue[model.Binance] {
		assert.Equal(t, 100.0, s.Price)
		binanceVolume += s.Size
	}
	assert.Equal(t, 5.0, binanceVolume)

	for venue, samples := range byVenue {
		for i := 1; i < len(samples); i++ {
			assert.True(t, samples[i].WindowEnd.After(samples[i-1].WindowEnd), "%s samples out of order", venue)
		}
	}

	stats := p.Stats()
	require.Len(t, stats.Workers, 2)
	assert.Equal(t, int64(5), stats.Workers[0].TradeEvents)
	assert.Equal(t, 0, stats.Channel.Producers)
}

func TestPipeline_FailedWorkerDoesNotStopOthers(t *testing.T) {
	dialErr := errors.New("dial refused")
	subs := []Subscription{
		{Source: &scriptedSource{venue: model.Coinbase, subscribeErr: dialErr}, Pair: model.BTCUSDT},
		{Source: &scriptedSource{venue: model.Binance, events: trades(50, 3)}, Pair: model.BTCUSDT},
	}
	p, store := newPipeline(subs)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, dialErr)

	got, qerr := store.QueryAfter(context.Background(), time.Hour)
	require.NoError(t, qerr)
	require.NotEmpty(t, got)
	for _, s := range got {
		assert.Equal(t, model.Binance, s.Venue)
	}
}

func TestPipeline_AllStreamsEndClosesSink(t *testing.T) {
	subs := []Subscription{
		{Source: &scriptedSource{venue: model.Binance, events: trades(10, 2), closeAtEnd: true}, Pair: model.ETHUSDT},
		{Source: &scriptedSource{venue: model.Bybit, events: trades(20, 2), closeAtEnd: true}, Pair: model.ETHUSDT},
	}
	p, store := newPipeline(subs)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after all streams ended")
	}

	assert.ErrorIs(t, err, ingest.ErrStreamEnded)

	// Pending windows are flushed before the workers return.
	got, qerr := store.QueryAfter(context.Background(), time.Hour)
	require.NoError(t, qerr)
	var volume float64
	for _, s := range got {
		volume += s.Size
	}
	assert.Equal(t, 4.0, volume)
}

func TestPipeline_NoSubscriptions(t *testing.T) {
	p, _ := newPipeline(nil)
	assert.ErrorIs(t, p.Run(context.Background()), ErrNoSubscriptions)
}
