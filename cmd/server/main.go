package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"settlement-engine/internal/engine"
	"settlement-engine/internal/platform/config"
	"settlement-engine/internal/platform/kafka"
	"settlement-engine/internal/platform/logger"
	"settlement-engine/internal/platform/postgres"
	redisclient "settlement-engine/internal/platform/redis"
	"settlement-engine/internal/plugin"
	"settlement-engine/internal/plugin/jsonrail"
	"settlement-engine/internal/settlement/events"
	"settlement-engine/internal/storage"
)

const (
	shutdownTimeout = 30 * time.Second
	eventBuffer     = 1024
)

// main wires the store, the event stream and the reference rail into an
// engine and runs it until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("settlement engine stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()
	log.InfoContext(ctx, "store ready", "backend", cfg.Store.Backend)

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithPrometheus(prometheus.DefaultRegisterer, prometheus.DefaultGatherer),
	}
	var (
		stream    *events.Channel
		publisher events.Publisher
	)
	if cfg.Kafka.Enabled() {
		client, err := kafka.NewClient(cfg.Kafka)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.Topic); err != nil {
			return err
		}
		stream = events.NewChannel(eventBuffer)
		publisher = events.NewKafkaPublisher(client, cfg.Kafka.Topic)
		opts = append(opts, engine.WithEvents(stream))
		log.InfoContext(ctx, "streaming settlement events", "topic", cfg.Kafka.Topic)
	}

	rail := jsonrail.New(jsonrail.WithLogger(log), jsonrail.WithUnitName(cfg.Engine.UnitName))
	eng, err := engine.New(cfg.Engine, store, plugin.Bind(rail), opts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if stream != nil {
		worker := events.NewWorker(publisher, stream.Events(), log)
		// keeps running after the signal until the stream is closed
		g.Go(func() error {
			return worker.Run(context.WithoutCancel(gctx))
		})
	}
	g.Go(func() error {
		if stream != nil {
			defer stream.Close()
		}
		return eng.Run(gctx, shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if stream != nil && stream.Dropped() > 0 {
		log.Warn("settlement events dropped", "count", stream.Dropped())
	}
	return nil
}

// openStore connects the configured backend and returns a func releasing it.
func openStore(ctx context.Context, cfg config.Store) (storage.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		client, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedis(client), closer(client), nil
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		store := storage.NewPostgres(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, closer(db), nil
	case config.BackendMemory:
		return storage.NewInMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}
