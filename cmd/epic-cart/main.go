// Command epic-cart запускает сервис заказов Epic Cart.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/epiccart/internal/app"
	"github.com/vladislavdragonenkov/epiccart/internal/env"
	"github.com/vladislavdragonenkov/epiccart/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(cfg app.Config) {
	if cfg.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func main() {
	if err := env.Load(".env", ".env.local"); err != nil {
		log.WithError(err).Fatal("failed to load env files")
	}

	cfg, warnings := app.LoadConfig(os.LookupEnv)
	setupLogger(cfg)
	for _, warning := range warnings {
		log.WithError(warning).Warn("invalid config value, default is used")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.String(),
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  len(cfg.Brokers()) > 0,
	}).Info("starting epic cart order service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		log.WithError(err).Fatal("service stopped with error")
	}

	log.Info("epic cart order service stopped")
}
