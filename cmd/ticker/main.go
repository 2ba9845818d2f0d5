package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/vwap-ticker/internal/aggregate"
	"github.com/rickgao/vwap-ticker/internal/cache"
	"github.com/rickgao/vwap-ticker/internal/config"
	"github.com/rickgao/vwap-ticker/internal/connection"
	"github.com/rickgao/vwap-ticker/internal/database"
	"github.com/rickgao/vwap-ticker/internal/exchange"
	"github.com/rickgao/vwap-ticker/internal/ingest"
	"github.com/rickgao/vwap-ticker/internal/model"
	"github.com/rickgao/vwap-ticker/internal/pipeline"
	"github.com/rickgao/vwap-ticker/internal/server"
	"github.com/rickgao/vwap-ticker/internal/storage"
	"github.com/rickgao/vwap-ticker/internal/version"
	"github.com/rickgao/vwap-ticker/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults only when empty)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(cfg.Logging.Handler(os.Stdout))
	slog.SetDefault(logger)

	logger.Info("starting ticker",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("ticker stopped with errors", "error", err)
		os.Exit(1)
	}

	logger.Info("ticker stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		cfg.Database.Driver = config.DriverMemory
		return cfg, cfg.Validate()
	}
	return config.LoadAndValidate(path)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var latest *cache.Latest
	if cfg.Cache.Enabled() {
		rdb, err := cache.Connect(ctx, cfg.Cache.URL)
		if err != nil {
			return fmt.Errorf("connect cache: %w", err)
		}
		defer rdb.Close()
		latest = cache.NewLatest(rdb, cfg.Cache.KeyPrefix, cfg.Cache.TTL)
		logger.Info("cache connected", "addr", rdb.Options().Addr)
	}

	subs, err := buildSubscriptions(cfg, logger)
	if err != nil {
		return err
	}

	agg := aggregate.New(logger, aggregate.WithParallelThreshold(cfg.Ingestion.ParallelThreshold))

	var publisher writer.Publisher
	if latest != nil {
		publisher = latest
	}
	sink := writer.NewSampleWriter(writer.WriterConfig{WriteTimeout: cfg.Sink.WriteTimeout}, store, publisher, logger)

	pipe := pipeline.New(pipeline.Config{
		Ingest: ingest.Config{
			TickInterval:  cfg.Ingestion.TickInterval,
			BufferSoftCap: cfg.Ingestion.BufferSoftCap,
		},
		ChannelCapacity: cfg.Ingestion.ChannelCapacity,
	}, subs, agg, sink, logger)

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithStats(func() any {
			return struct {
				pipeline.Stats
				Writer writer.WriterMetrics `json:"writer"`
			}{pipe.Stats(), sink.Stats()}
		}),
	}
	if latest != nil {
		opts = append(opts, server.WithLatest(latest))
	}
	srv := server.New(server.Config{Port: cfg.Server.Port, Retention: cfg.Server.Retention}, store, opts...)

	// The server stops with the pipeline; a server failure stops everything.
	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	g.Go(func() error {
		return srv.Run(serverCtx)
	})
	g.Go(func() error {
		defer stopServer()
		return pipe.Run(gctx)
	})

	logger.Info("ticker running",
		"subscriptions", len(subs),
		"ticks_url", fmt.Sprintf("http://localhost:%d/ticks", cfg.Server.Port),
	)

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("using in-memory store, samples are lost on exit")
		return storage.NewMemory(), func() {}, nil
	}

	db := cfg.Database.Postgres
	logger.Info("connecting to database",
		"host", db.Host,
		"port", db.Port,
		"database", db.Name,
	)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := database.Connect(connectCtx, db, cfg.Instance.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	pg := storage.NewPostgres(pool, logger)
	if err := pg.Migrate(connectCtx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	logger.Info("database connected")
	return pg, pool.Close, nil
}

func buildSubscriptions(cfg *config.Config, logger *slog.Logger) ([]pipeline.Subscription, error) {
	sources := make(map[model.Venue]exchange.Source)
	subs := make([]pipeline.Subscription, 0, len(cfg.Subscriptions))

	for _, sub := range cfg.Subscriptions {
		src, ok := sources[sub.Venue]
		if !ok {
			var err error
			src, err = exchange.NewSource(sub.Venue, exchangeConfig(cfg, sub.Venue), logger)
			if err != nil {
				return nil, err
			}
			sources[sub.Venue] = src
		}
		subs = append(subs, pipeline.Subscription{Source: src, Pair: sub.Pair})
	}
	return subs, nil
}

func exchangeConfig(cfg *config.Config, v model.Venue) exchange.Config {
	ex := cfg.Exchanges
	return exchange.Config{
		URL: ex.Venue(v).URL,
		Client: connection.ClientConfig{
			HandshakeTimeout: ex.HandshakeTimeout,
			PingTimeout:      ex.PingTimeout,
			WriteTimeout:     ex.WriteTimeout,
			BufferSize:       ex.BufferSize,
		},
	}
}
