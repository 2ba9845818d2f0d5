// streamtest connects one venue stream and prints decoded events or windowed samples to the console.
// Usage: go run ./cmd/streamtest --exchange binance --symbol SOLUSDT [--aggregate]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/vwap-ticker/internal/aggregate"
	"github.com/rickgao/vwap-ticker/internal/config"
	"github.com/rickgao/vwap-ticker/internal/connection"
	"github.com/rickgao/vwap-ticker/internal/exchange"
	"github.com/rickgao/vwap-ticker/internal/fanin"
	"github.com/rickgao/vwap-ticker/internal/ingest"
	"github.com/rickgao/vwap-ticker/internal/model"
)

func main() {
	configPath := flag.String("config", "", "optional config file for venue URLs")
	venueName := flag.String("exchange", "binance", "venue to stream (binance, bybit, coinbase)")
	symbol := flag.String("symbol", "SOLUSDT", "pair to stream, any spelling")
	aggregated := flag.Bool("aggregate", false, "print windowed VWAP samples instead of raw events")
	tick := flag.Duration("tick", time.Second, "window length when aggregating")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	venue, err := model.ParseVenue(*venueName)
	if err != nil {
		logger.Error("invalid exchange", "error", err)
		os.Exit(1)
	}
	pair, err := model.ParsePair(*symbol)
	if err != nil {
		logger.Error("invalid symbol", "error", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	src, err := exchange.NewSource(venue, exchange.Config{
		URL: cfg.Exchanges.Venue(venue).URL,
		Client: connection.ClientConfig{
			PingTimeout:  cfg.Exchanges.PingTimeout,
			WriteTimeout: cfg.Exchanges.WriteTimeout,
			BufferSize:   cfg.Exchanges.BufferSize,
		},
	}, logger)
	if err != nil {
		logger.Error("failed to create source", "error", err)
		os.Exit(1)
	}

	logger.Info("streaming started - press Ctrl+C to stop", "exchange", venue, "symbol", pair)

	if *aggregated {
		err = printSamples(ctx, src, pair, *tick, logger)
	} else {
		err = printEvents(ctx, src, pair)
	}
	if err != nil {
		logger.Error("stream failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func printEvents(ctx context.Context, src exchange.Source, pair model.Pair) error {
	events, err := src.Subscribe(ctx, pair)
	if err != nil {
		return err
	}

	for ev := range events {
		switch ev.Kind {
		case model.EventTrade:
			fmt.Printf("[TRADE] %s %s price=%g size=%g at=%s\n",
				src.Venue(), pair, ev.Trade.Price, ev.Trade.Size, ev.Trade.ObservedAt.Format(time.RFC3339Nano))
		case model.EventError:
			fmt.Printf("[ERROR] %s %s %s\n", src.Venue(), pair, ev.Message)
		case model.EventUnsupported:
			fmt.Printf("[OTHER] %s %s\n", src.Venue(), pair)
		}
	}
	return nil
}

func printSamples(ctx context.Context, src exchange.Source, pair model.Pair, tick time.Duration, logger *slog.Logger) error {
	ch := fanin.New(16)
	prod := ch.Producer()

	worker := ingest.NewWorker(ingest.Config{TickInterval: tick}, src, pair, aggregate.New(logger), logger)

	errCh := make(chan error, 1)
	go func() {
		defer prod.Close()
		errCh <- worker.Run(ctx, prod)
	}()

	for s := range ch.Samples() {
		data, _ := json.Marshal(s)
		fmt.Printf("[SAMPLE] %s\n", data)
	}

	stats := worker.Stats()
	logger.Info("worker stats",
		"events", stats.EventsReceived,
		"trades", stats.TradeEvents,
		"errors", stats.ErrorEvents,
		"samples", stats.SamplesSent,
	)
	return <-errCh
}
