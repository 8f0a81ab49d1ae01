package main

// Apply the scan schema:
//   go run ./cmd/migrate
// Roll back the latest migration:
//   go run ./cmd/migrate -down
// Print the applied version only:
//   go run ./cmd/migrate -version

import (
	"context"
	"flag"
	"log"
	"os"

	"issue-scout/internal/shared/config"
	"issue-scout/internal/shared/storage/db"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration")
	versionOnly := flag.Bool("version", false, "print the applied schema version and exit")
	flag.Parse()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Printf("DATABASE_URL is required; the in-memory store has no schema")
		os.Exit(1)
	}
	ctx := context.Background()

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	switch {
	case *versionOnly:
	case *down:
		err = db.RollbackLast(ctx, sqlDB)
	default:
		err = db.RunMigrations(ctx, sqlDB)
	}
	if err != nil {
		log.Printf("migration failed: %v", err)
		os.Exit(1)
	}

	version, err := db.SchemaVersion(ctx, sqlDB)
	if err != nil {
		log.Printf("failed to read schema version: %v", err)
		os.Exit(1)
	}
	log.Printf("schema version %d", version)
}
