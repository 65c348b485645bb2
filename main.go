package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"location-relay/api"
	"location-relay/cache"
	"location-relay/config"
	"location-relay/database"
	"location-relay/logging"
	"location-relay/migration"
	"location-relay/mq"
	"location-relay/relay"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Initialize configuration
	if err := config.InitConfig(*configPath); err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg
	log := logging.New(cfg.Log, os.Stdout).With("service", "relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("relay exited", "action", "fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	var (
		sinks   []relay.Sink
		workers []func(context.Context)
		buses   api.BusLister
	)

	// Redis mirror
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		mirror := cache.NewMirror(rdb, cfg.Redis, cfg.Relay.SinkBuffer, log.With("component", "redis_mirror"))
		sinks = append(sinks, mirror)
		workers = append(workers, mirror.Run)
		log.Info("redis mirror enabled", "action", "sink_enabled", "addr", cfg.Redis.Addr)
	}

	// RabbitMQ fan-out
	if cfg.AMQP.Enabled {
		rmq, err := mq.Connect(ctx, cfg.AMQP, log.With("component", "amqp"))
		if err != nil {
			return err
		}
		defer rmq.Close()
		fanout := mq.NewFanout(rmq.Channel(), cfg.AMQP.Exchange, cfg.Relay.SinkBuffer, log.With("component", "amqp_fanout"))
		sinks = append(sinks, fanout)
		workers = append(workers, fanout.Run)
		log.Info("amqp fanout enabled", "action", "sink_enabled", "exchange", cfg.AMQP.Exchange)
	}

	// Bus directory
	if cfg.DB.Enabled {
		if err := migration.RunMigrations(ctx, cfg.DB, log.With("component", "migrate")); err != nil {
			return err
		}
		db, err := database.Open(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		buses = database.NewBusDirectory(db)
		log.Info("bus directory enabled", "action", "directory_enabled", "host", cfg.DB.Host)
	}

	r := relay.New(relay.Options{
		Mode:          relay.Mode(cfg.Relay.BroadcastMode),
		StrictIngest:  cfg.Relay.StrictIngest,
		CommandBuffer: cfg.Relay.CommandBuffer,
		Sinks:         sinks,
		Logger:        log.With("component", "relay"),
	})

	var wg sync.WaitGroup
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Run(loopCtx)
	}()
	for _, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w(loopCtx)
		}()
	}

	srv := api.NewServer(r, buses, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SendBuffer:     cfg.Relay.SendBuffer,
		AccessLog:      os.Stdout,
	}, log.With("component", "api"))

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server started", "action", "listen", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("http shutdown", "action", "shutdown_failed", "error", shutdownErr)
	}
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("socket shutdown", "action", "shutdown_failed", "error", shutdownErr)
	}

	cancelLoop()
	wg.Wait()
	log.Info("relay stopped", "action", "stopped")
	return err
}
