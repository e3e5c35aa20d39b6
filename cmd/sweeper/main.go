package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/whisper/pgsession/internal/config"
	"github.com/whisper/pgsession/internal/messaging"
	"github.com/whisper/pgsession/internal/metrics"
	"github.com/whisper/pgsession/internal/pgstore"
	"github.com/whisper/pgsession/internal/sweeper"
)

func main() {
	log.Println("Starting pgsession expiry sweeper...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// --- Postgres ---
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := pgstore.Open(ctx, cfg.DatabaseURL, cfg.Pool())
	if err != nil {
		cancel()
		log.Fatalf("failed to connect to Postgres: %v", err)
	}

	store, err := pgstore.New(db, cfg.StoreOptions()...)
	if err != nil {
		cancel()
		log.Fatalf("failed to create store: %v", err)
	}

	if cfg.MigrateOnStart {
		if cfg.MigrationMode == config.MigrationVersioned {
			err = store.MigrateVersioned(ctx)
		} else {
			err = store.Migrate(ctx)
		}
		if err != nil {
			cancel()
			log.Fatalf("migration failed: %v", err)
		}
	}
	cancel()

	var opts []sweeper.Option

	// --- Redis (optional sweep lock) ---
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		cancel()
		key := sweeper.LockKey(store.SchemaName(), store.TableName())
		opts = append(opts, sweeper.WithLocker(sweeper.NewRedisLocker(rdb, key, cfg.SweepLockTTL)))
	}

	// --- NATS (optional purge events) ---
	var natsClient *messaging.NATSClient
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Name = "pgsession-sweeper"
		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		opts = append(opts, sweeper.WithPublisher(natsClient))
	}

	sw, err := sweeper.New(store, sweeper.Config{
		Schedule: cfg.SweepSchedule,
		Instance: cfg.ServerName,
		Schema:   store.SchemaName(),
		Table:    store.TableName(),
	}, opts...)
	if err != nil {
		log.Fatalf("failed to create sweeper: %v", err)
	}

	// --- Metrics ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[metrics] server error: %v", err)
		}
	}()

	log.Printf("pgsession sweeper running")
	log.Printf("  table:        %s.%s", store.SchemaName(), store.TableName())
	log.Printf("  schedule:     %s", cfg.SweepSchedule)
	log.Printf("  server_name:  %s", cfg.ServerName)
	log.Printf("  redis_addr:   %s", cfg.RedisAddr)
	log.Printf("  nats_url:     %s", cfg.NATSURL)
	log.Printf("  metrics_addr: %s", cfg.MetricsAddr)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sw.Run(runCtx); err != nil {
		log.Printf("sweeper stopped with error: %v", err)
	}
	log.Printf("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsServer.Shutdown(shutdownCtx)

	if natsClient != nil {
		natsClient.Close()
	}
	if rdb != nil {
		rdb.Close()
	}
	db.Close()
}
