package main

import (
	"context"
	"log"
	"time"

	"github.com/whisper/pgsession/internal/config"
	"github.com/whisper/pgsession/internal/pgstore"
)

func main() {
	log.Println("Starting pgsession migration...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := pgstore.Open(ctx, cfg.DatabaseURL, cfg.Pool())
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	store, err := pgstore.New(db, cfg.StoreOptions()...)
	if err != nil {
		log.Fatalf("failed to create store: %v", err)
	}

	log.Printf("  schema: %s", store.SchemaName())
	log.Printf("  table:  %s", store.TableName())
	log.Printf("  mode:   %s", cfg.MigrationMode)

	if cfg.MigrationMode == config.MigrationVersioned {
		err = store.MigrateVersioned(ctx)
	} else {
		err = store.Migrate(ctx)
	}
	if err != nil {
		db.Close()
		log.Fatalf("migration failed: %v", err)
	}

	log.Printf("[migrate] %s.%s is up to date", store.SchemaName(), store.TableName())
}
