package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juno-intents/quest-escrow/internal/eventrelay"
	"github.com/juno-intents/quest-escrow/internal/leases"
	leasespg "github.com/juno-intents/quest-escrow/internal/leases/postgres"
	"github.com/juno-intents/quest-escrow/internal/metrics"
	questpg "github.com/juno-intents/quest-escrow/internal/quest/postgres"
	"github.com/juno-intents/quest-escrow/internal/queue"
)

func main() {
	var (
		postgresDSN = flag.String("postgres-dsn", "", "Postgres DSN (required)")
		metricsAddr = flag.String("metrics-listen", "", "Prometheus listen address (empty disables)")

		queueDriver  = flag.String("queue-driver", queue.DriverKafka, "queue driver (kafka|stdio)")
		queueBrokers = flag.String("queue-brokers", "", "queue brokers (comma-separated; required for kafka)")
		topic        = flag.String("topic", eventrelay.DefaultTopic, "topic the quest events are published to")
		batchTimeout = flag.Duration("queue-batch-timeout", 50*time.Millisecond, "kafka producer batch timeout")

		owner        = flag.String("owner", "", "unique relay id for leader election (default: hostname-pid)")
		leaseName    = flag.String("leader-lease-name", "quest-event-relay", "leader election lease name")
		leaseTTL     = flag.Duration("leader-lease-ttl", 15*time.Second, "leader election lease TTL")
		pollInterval = flag.Duration("poll-interval", time.Second, "how often to poll the event outbox")
		batchSize    = flag.Int("batch-size", 500, "maximum events published per poll")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "error: --postgres-dsn is required")
		os.Exit(2)
	}
	if strings.TrimSpace(*topic) == "" {
		fmt.Fprintln(os.Stderr, "error: --topic must be non-empty")
		os.Exit(2)
	}
	brokers := queue.SplitCommaList(*queueBrokers)
	if strings.EqualFold(strings.TrimSpace(*queueDriver), queue.DriverKafka) && len(brokers) == 0 {
		fmt.Fprintln(os.Stderr, "error: --queue-brokers is required for --queue-driver=kafka")
		os.Exit(2)
	}
	if *pollInterval <= 0 || *batchSize <= 0 || *batchTimeout <= 0 {
		fmt.Fprintln(os.Stderr, "error: --poll-interval, --batch-size and --queue-batch-timeout must be > 0")
		os.Exit(2)
	}
	if *leaseTTL <= *pollInterval {
		fmt.Fprintln(os.Stderr, "error: --leader-lease-ttl must exceed --poll-interval")
		os.Exit(2)
	}
	holder := *owner
	if holder == "" {
		holder = leases.DefaultHolder("quest-event-relay")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, *postgresDSN)
	if err != nil {
		log.Error("init pgx pool", "err", err)
		os.Exit(2)
	}
	defer pool.Close()

	store, err := questpg.New(pool)
	if err != nil {
		log.Error("init quest store", "err", err)
		os.Exit(2)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		log.Error("ensure quest schema", "err", err)
		os.Exit(2)
	}

	leaseStore, err := leasespg.New(pool)
	if err != nil {
		log.Error("init lease store", "err", err)
		os.Exit(2)
	}
	if err := leaseStore.EnsureSchema(ctx); err != nil {
		log.Error("ensure lease schema", "err", err)
		os.Exit(2)
	}
	elector, err := leases.NewLeaderElector(leaseStore, *leaseName, holder, *leaseTTL)
	if err != nil {
		log.Error("init leader elector", "err", err)
		os.Exit(2)
	}

	producer, err := queue.NewProducer(queue.ProducerConfig{
		Driver:       *queueDriver,
		Brokers:      brokers,
		BatchTimeout: *batchTimeout,
		Writer:       os.Stdout,
	})
	if err != nil {
		log.Error("init queue producer", "err", err)
		os.Exit(2)
	}
	defer func() { _ = producer.Close() }()

	m := metrics.New()

	relay, err := eventrelay.New(eventrelay.Config{
		Topic:     *topic,
		BatchSize: *batchSize,
	}, store, producer, m, log)
	if err != nil {
		log.Error("init event relay", "err", err)
		os.Exit(2)
	}

	if *metricsAddr != "" {
		metricsSrv := metrics.NewServer(*metricsAddr, m)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "err", err)
			}
		}()
		defer metricsSrv.Close()
	}

	log.Info("quest event relay started",
		"owner", holder,
		"driver", *queueDriver,
		"topic", *topic,
		"pollInterval", *pollInterval,
	)

	t := time.NewTicker(*pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown", "reason", ctx.Err())
			resignCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := elector.Resign(resignCtx); err != nil {
				log.Warn("resign leadership", "err", err)
			}
			cancel()
			return
		case <-t.C:
			leader, _, err := elector.Tick(ctx)
			if err != nil {
				log.Error("leader election tick", "err", err)
				continue
			}
			if !leader {
				continue
			}
			// One batch per lease check so a long backlog cannot outlive the lease.
			if _, err := relay.Tick(ctx); err != nil {
				log.Error("relay events", "err", err)
			}
		}
	}
}
