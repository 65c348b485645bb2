package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"location-relay/config"
	"location-relay/logging"
	"location-relay/migration"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	down := flag.Bool("down", false, "roll back all migrations")
	flag.Parse()

	if err := config.InitConfig(*configPath); err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logging.New(config.Cfg.Log, os.Stdout).With("service", "migrate")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if *down {
		err = migration.Down(config.Cfg.DB, log)
	} else {
		err = migration.RunMigrations(ctx, config.Cfg.DB, log)
	}
	if err != nil {
		log.Error("migration error", "action", "migrate_failed", "error", err)
		os.Exit(1)
	}
}
