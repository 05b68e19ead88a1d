package main

import (
	"context"
	"flag"
	"log"
	"time"

	"example.com/studyrank/internal/config"
	"example.com/studyrank/internal/migrate"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	flag.Parse()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	runner, err := migrate.New(cfg.DatabaseURL, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("failed to configure migration runner: %v", err)
	}

	switch *command {
	case "up":
		if err := runner.Ensure(ctx); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
	case "status":
		if err := runner.Status(ctx); err != nil {
			log.Fatalf("failed to fetch migration status: %v", err)
		}
	case "down":
		if err := runner.Down(ctx); err != nil {
			log.Fatalf("failed to roll back migrations: %v", err)
		}
	default:
		log.Fatalf("unsupported command: %s", *command)
	}
}
