package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/vwap-ticker/internal/model"
	"github.com/rickgao/vwap-ticker/internal/storage"
	"github.com/rickgao/vwap-ticker/internal/version"
)

type stubStore struct {
	samples  []model.Sample
	err      error
	pingErr  error
	lastSpan time.Duration
}

func (s *stubStore) QueryAfter(ctx context.Context, d time.Duration) ([]model.Sample, error) {
	s.lastSpan = d
	return s.samples, s.err
}

func (s *stubStore) Ping(ctx context.Context) error { return s.pingErr }

type stubLatest struct {
	samples []model.Sample
	err     error
	pingErr error
}

func (s *stubLatest) All(ctx context.Context) ([]model.Sample, error) { return s.samples, s.err }
func (s *stubLatest) Ping(ctx context.Context) error                  { return s.pingErr }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestTicks(t *testing.T) {
	at := time.Date(2024, 1, 15, 12, 0, 0, 100_000_000, time.UTC)
	store := &stubStore{samples: []model.Sample{
		{Venue: model.Binance, Pair: model.SOLUSDT, Price: 101.5, Size: 4, WindowEnd: at},
	}}
	srv := New(Config{Retention: time.Minute}, store)

	rec := get(t, srv.Handler(), "/ticks")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, time.Minute, store.lastSpan)
	assert.JSONEq(t,
		`[{"exchange":"Binance","symbol":"SOLUSDT","price":101.5,"size":4,"timestamp":"2024-01-15T12:00:00.1Z"}]`,
		rec.Body.String())
}

func TestTicksEmptyIsArray(t *testing.T) {
	srv := New(Config{}, &stubStore{})

	rec := get(t, srv.Handler(), "/ticks")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestTicksStoreError(t *testing.T) {
	srv := New(Config{}, &stubStore{err: errors.New("db down")})

	rec := get(t, srv.Handler(), "/ticks")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestTicksUsesDefaultRetention(t *testing.T) {
	store := &stubStore{}
	srv := New(Config{}, store)

	get(t, srv.Handler(), "/ticks")

	assert.Equal(t, 6000*time.Second, store.lastSpan)
}

func TestTicksMemoryStoreEndToEnd(t *testing.T) {
	mem := storage.NewMemory()
	now := time.Now().UTC()
	ctx := context.Background()
	require.NoError(t, mem.Append(ctx, model.Sample{Venue: model.Bybit, Pair: model.ETHUSDT, Price: 2000, Size: 1, WindowEnd: now.Add(-time.Second)}))
	require.NoError(t, mem.Append(ctx, model.Sample{Venue: model.Coinbase, Pair: model.ETHUSDT, Price: 2001, Size: 2, WindowEnd: now.Add(-2 * time.Hour)}))

	srv := New(Config{Retention: time.Hour}, mem)
	rec := get(t, srv.Handler(), "/ticks")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []model.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, model.Bybit, got[0].Venue)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := New(Config{}, &stubStore{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ticks", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLatest(t *testing.T) {
	tests := []struct {
		name   string
		opts   []Option
		status int
		body   string
	}{
		{
			name:   "no cache",
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "cache error",
			opts:   []Option{WithLatest(&stubLatest{err: errors.New("redis down")})},
			status: http.StatusInternalServerError,
		},
		{
			name:   "empty cache",
			opts:   []Option{WithLatest(&stubLatest{})},
			status: http.StatusOK,
			body:   "[]",
		},
		{
			name: "cached samples",
			opts: []Option{WithLatest(&stubLatest{samples: []model.Sample{
				{Venue: model.Coinbase, Pair: model.BTCUSDT, Price: 50000, Size: 0.1, WindowEnd: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
			}})},
			status: http.StatusOK,
			body:   `[{"exchange":"Coinbase","symbol":"BTCUSDT","price":50000,"size":0.1,"timestamp":"2024-01-15T00:00:00Z"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(Config{}, &stubStore{}, tt.opts...)
			rec := get(t, srv.Handler(), "/ticks/latest")

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		store      *stubStore
		latest     LatestReader
		wantCode   int
		wantStatus string
	}{
		{"healthy", &stubStore{}, &stubLatest{}, http.StatusOK, "healthy"},
		{"store down", &stubStore{pingErr: errors.New("refused")}, nil, http.StatusServiceUnavailable, "unhealthy"},
		{"cache down", &stubStore{}, &stubLatest{pingErr: errors.New("refused")}, http.StatusOK, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Option{WithStats(func() any { return map[string]int{"samples": 3} })}
			if tt.latest != nil {
				opts = append(opts, WithLatest(tt.latest))
			}
			srv := New(Config{}, tt.store, opts...)

			rec := get(t, srv.Handler(), "/health")
			assert.Equal(t, tt.wantCode, rec.Code)

			var body struct {
				Status     string         `json:"status"`
				Components map[string]any `json:"components"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Contains(t, body.Components, "pipeline")
		})
	}
}

func TestVersion(t *testing.T) {
	srv := New(Config{}, &stubStore{})

	rec := get(t, srv.Handler(), "/version")

	require.Equal(t, http.StatusOK, rec.Code)
	var info version.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := New(Config{Port: 38471}, &stubStore{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
