package main

import (
	"context"
	"fmt"
	"os"

	"event-ticketing/internal/config"
	"event-ticketing/internal/database"
	"event-ticketing/internal/database/migrations"
	"event-ticketing/internal/logger"

	"github.com/joho/godotenv"
)

const usage = "usage: migrate [up|down|version]"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewLogger("", "migrate")

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if cfg.Database.Driver != database.DriverPostgres {
		log.Fatal("MIGRATE", "SQL migrations only apply to postgres; SQLite builds its schema on startup")
	}

	bunDB, err := database.Open(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: cfg.Migrations.Dir}, log)
	defer runner.Close()

	switch command {
	case "up":
		err = runner.RunMigrations()
	case "down":
		err = runner.MigrateDown()
		if err == nil {
			log.Info("MIGRATE", "All migrations rolled back")
		}
	case "version":
		var version uint
		var dirty bool
		version, dirty, err = runner.Version()
		if err == nil {
			fmt.Printf("version=%d dirty=%t\n", version, dirty)
		}
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
}
