package main

import (
	"flag"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/migrations"
)

func main() {
	direction := flag.String("direction", "up", "up, down or version")
	steps := flag.Int("steps", 1, "number of migrations to roll back with -direction=down")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("connecting to database", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)
	db, err := sqlx.Connect("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		logger.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	migrator, err := migrations.New(db.DB, logger)
	if err != nil {
		logger.Fatalw("failed to prepare migrations", "error", err)
	}
	defer migrator.Close()

	switch *direction {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down(*steps)
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = migrator.Version()
		if err == nil {
			logger.Infow("current schema version", "version", version, "dirty", dirty)
		}
	default:
		logger.Fatalw("unknown direction", "direction", *direction)
	}
	if err != nil {
		logger.Fatalw("migration failed", "error", err)
	}
}
