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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juno-intents/quest-escrow/internal/authsig"
	"github.com/juno-intents/quest-escrow/internal/blobstore"
	"github.com/juno-intents/quest-escrow/internal/content"
	"github.com/juno-intents/quest-escrow/internal/metrics"
	"github.com/juno-intents/quest-escrow/internal/policy"
	"github.com/juno-intents/quest-escrow/internal/quest"
	questpg "github.com/juno-intents/quest-escrow/internal/quest/postgres"
	"github.com/juno-intents/quest-escrow/internal/questapi"
)

func main() {
	var (
		listenAddr  = flag.String("listen", "127.0.0.1:8090", "HTTP listen address")
		metricsAddr = flag.String("metrics-listen", "", "Prometheus listen address (empty disables)")

		postgresDSN = flag.String("postgres-dsn", "", "Postgres DSN (required)")

		maxSkew      = flag.Duration("max-signature-skew", 5*time.Minute, "maximum age of a request signature")
		maxBodyBytes = flag.Int64("max-body-bytes", 1<<20, "maximum request body size")
		replayCache  = flag.Int("replay-cache-size", authsig.DefaultReplayCacheSize, "accepted signatures remembered within --max-signature-skew")

		maxActiveClaims = flag.Int("max-active-claims", policy.DefaultMaxActiveClaims, "maximum concurrent active claims per claimer")
		strikeLimit     = flag.Int("strike-limit", policy.DefaultStrikeLimit, "failed claims within --strike-window that block new claims")
		strikeWindow    = flag.Duration("strike-window", policy.DefaultStrikeWindow, "lookback window for claim strikes")

		rateLimitPerSecond = flag.Float64("rate-limit-per-ip-per-second", 20, "per-IP refill rate for API rate limiting")
		rateLimitBurst     = flag.Int("rate-limit-burst", 40, "per-IP burst capacity for API rate limiting")
		rateLimitMaxIPs    = flag.Int("rate-limit-max-tracked-ips", 10000, "maximum tracked client IP entries in rate limiter")

		blobDriver  = flag.String("blob-driver", blobstore.DriverS3, "content blob driver (s3|memory|none)")
		blobBucket  = flag.String("blob-bucket", "", "S3 bucket for descriptions and proofs (required for s3)")
		blobPrefix  = flag.String("blob-prefix", "quests", "object key prefix")
		blobMaxSize = flag.Int64("blob-max-object-bytes", 512<<10, "maximum size of one stored description or proof")

		readHeaderTimeout = flag.Duration("read-header-timeout", 5*time.Second, "http.Server ReadHeaderTimeout")
		readTimeout       = flag.Duration("read-timeout", 10*time.Second, "http.Server ReadTimeout")
		writeTimeout      = flag.Duration("write-timeout", 10*time.Second, "http.Server WriteTimeout")
		idleTimeout       = flag.Duration("idle-timeout", 60*time.Second, "http.Server IdleTimeout")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "error: --postgres-dsn is required")
		os.Exit(2)
	}
	if *listenAddr == "" {
		fmt.Fprintln(os.Stderr, "error: --listen must be non-empty")
		os.Exit(2)
	}
	if *readHeaderTimeout <= 0 || *readTimeout <= 0 || *writeTimeout <= 0 || *idleTimeout <= 0 {
		fmt.Fprintln(os.Stderr, "error: timeouts must be > 0")
		os.Exit(2)
	}
	if *rateLimitPerSecond <= 0 || *rateLimitBurst <= 0 || *rateLimitMaxIPs <= 0 {
		fmt.Fprintln(os.Stderr, "error: rate limit settings must be > 0")
		os.Exit(2)
	}
	if *maxSkew <= 0 || *maxBodyBytes <= 0 || *replayCache <= 0 {
		fmt.Fprintln(os.Stderr, "error: --max-signature-skew, --max-body-bytes and --replay-cache-size must be > 0")
		os.Exit(2)
	}
	if *maxActiveClaims <= 0 || *strikeLimit <= 0 || *strikeWindow <= 0 {
		fmt.Fprintln(os.Stderr, "error: admission settings must be > 0")
		os.Exit(2)
	}
	driver := strings.ToLower(strings.TrimSpace(*blobDriver))
	if driver == blobstore.DriverS3 && strings.TrimSpace(*blobBucket) == "" {
		fmt.Fprintln(os.Stderr, "error: --blob-bucket is required for --blob-driver=s3")
		os.Exit(2)
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

	var docs *content.Store
	if driver != "none" {
		blobs, err := newBlobStore(ctx, driver, *blobBucket, *blobPrefix, *blobMaxSize)
		if err != nil {
			log.Error("init blob store", "err", err)
			os.Exit(2)
		}
		docs, err = content.New(blobs)
		if err != nil {
			log.Error("init content store", "err", err)
			os.Exit(2)
		}
	}

	handler, err := questapi.NewHandler(questapi.Config{
		MaxSkew:         *maxSkew,
		MaxBodyBytes:    *maxBodyBytes,
		ReplayCacheSize: *replayCache,
		Admission: policy.AdmissionConfig{
			MaxActiveClaims: *maxActiveClaims,
			StrikeLimit:     *strikeLimit,
			StrikeWindow:    *strikeWindow,
		},
		RateLimitPerIPPerSecond: *rateLimitPerSecond,
		RateLimitBurst:          *rateLimitBurst,
		RateLimitMaxTrackedIPs:  *rateLimitMaxIPs,
	}, eng, store, docs, m, log)
	if err != nil {
		log.Error("init api handler", "err", err)
		os.Exit(2)
	}

	srv := &http.Server{
		Addr:              *listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: *readHeaderTimeout,
		ReadTimeout:       *readTimeout,
		WriteTimeout:      *writeTimeout,
		IdleTimeout:       *idleTimeout,
	}

	var metricsSrv *http.Server
	if *metricsAddr != "" {
		metricsSrv = metrics.NewServer(*metricsAddr, m)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "err", err)
			}
		}()
	}

	log.Info("quest api started",
		"listen", *listenAddr,
		"metrics", *metricsAddr,
		"blobDriver", driver,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "err", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func newBlobStore(ctx context.Context, driver, bucket, prefix string, maxObjectSize int64) (blobstore.Store, error) {
	cfg := blobstore.Config{
		Driver:        driver,
		Bucket:        strings.TrimSpace(bucket),
		Prefix:        strings.TrimSpace(prefix),
		MaxObjectSize: maxObjectSize,
	}
	if cfg.Driver == blobstore.DriverS3 {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		cfg.S3Client = awss3.NewFromConfig(awsCfg)
	}
	return blobstore.New(cfg)
}
