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
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juno-intents/quest-escrow/internal/keeper"
	"github.com/juno-intents/quest-escrow/internal/leases"
	leasespg "github.com/juno-intents/quest-escrow/internal/leases/postgres"
	"github.com/juno-intents/quest-escrow/internal/metrics"
	"github.com/juno-intents/quest-escrow/internal/quest"
	questpg "github.com/juno-intents/quest-escrow/internal/quest/postgres"
)

func main() {
	var (
		postgresDSN = flag.String("postgres-dsn", "", "Postgres DSN (required)")
		metricsAddr = flag.String("metrics-listen", "", "Prometheus listen address (empty disables)")

		owner          = flag.String("owner", "", "unique keeper id for leader election (default: hostname-pid)")
		leaseName      = flag.String("leader-lease-name", "quest-keeper", "leader election lease name")
		leaseTTL       = flag.Duration("leader-lease-ttl", 15*time.Second, "leader election lease TTL")
		tickInterval   = flag.Duration("tick-interval", 5*time.Second, "how often to look for due claims")
		batchSize      = flag.Int("batch-size", 100, "maximum claims of each kind cranked per tick")
		actionTimeout  = flag.Duration("action-timeout", 10*time.Second, "timeout for one expire or auto-approve call")
		disableLeasing = flag.Bool("disable-leader-election", false, "crank on every tick without holding the lease")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "error: --postgres-dsn is required")
		os.Exit(2)
	}
	if *tickInterval <= 0 || *batchSize <= 0 || *actionTimeout <= 0 {
		fmt.Fprintln(os.Stderr, "error: --tick-interval, --batch-size and --action-timeout must be > 0")
		os.Exit(2)
	}
	if *leaseTTL <= *tickInterval && !*disableLeasing {
		fmt.Fprintln(os.Stderr, "error: --leader-lease-ttl must exceed --tick-interval")
		os.Exit(2)
	}
	holder := *owner
	if holder == "" {
		holder = leases.DefaultHolder("quest-keeper")
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

	m := metrics.New()

	eng, err := quest.NewEngine(store, quest.EngineConfig{Observer: m}, log)
	if err != nil {
		log.Error("init quest engine", "err", err)
		os.Exit(2)
	}

	k, err := keeper.New(keeper.Config{
		BatchSize:     *batchSize,
		ActionTimeout: *actionTimeout,
	}, store, eng, m, log)
	if err != nil {
		log.Error("init keeper", "err", err)
		os.Exit(2)
	}

	var elector *leases.LeaderElector
	if !*disableLeasing {
		leaseStore, err := leasespg.New(pool)
		if err != nil {
			log.Error("init lease store", "err", err)
			os.Exit(2)
		}
		if err := leaseStore.EnsureSchema(ctx); err != nil {
			log.Error("ensure lease schema", "err", err)
			os.Exit(2)
		}
		elector, err = leases.NewLeaderElector(leaseStore, *leaseName, holder, *leaseTTL)
		if err != nil {
			log.Error("init leader elector", "err", err)
			os.Exit(2)
		}
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

	log.Info("quest keeper started",
		"owner", holder,
		"leaseName", *leaseName,
		"tickInterval", *tickInterval,
		"batchSize", *batchSize,
	)

	t := time.NewTicker(*tickInterval)
	defer t.Stop()

	wasLeader := false
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown", "reason", ctx.Err())
			if elector != nil {
				resignCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := elector.Resign(resignCtx); err != nil {
					log.Warn("resign leadership", "err", err)
				}
				cancel()
			}
			return
		case <-t.C:
			if elector != nil {
				leader, term, err := elector.Tick(ctx)
				if err != nil {
					log.Error("leader election tick", "err", err)
					continue
				}
				m.KeeperLeader(leader)
				if leader != wasLeader {
					log.Info("leadership changed", "leader", leader, "term", term)
					wasLeader = leader
				}
				if !leader {
					continue
				}
			}

			res, err := k.Tick(ctx)
			if err != nil {
				log.Error("tick", "err", err)
				continue
			}
			if res.Expired+res.AutoApproved+res.Raced+res.Failed > 0 {
				log.Info("tick",
					"expired", res.Expired,
					"autoApproved", res.AutoApproved,
					"raced", res.Raced,
					"failed", res.Failed,
				)
			}
		}
	}
}
