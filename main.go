package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"maildigest/config"
	"maildigest/internal/bootstrap"
	"maildigest/pkg/logger"
)

func main() {
	// Load .env if present (local development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger.Setup(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Dir:     cfg.LogDir,
		Service: "maildigest",
	})

	c, cleanup, err := bootstrap.NewContainer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}
	defer cleanup()

	if cfg.SchedulerEnabled {
		if err := c.Scheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("scheduler start failed")
		}
	} else {
		log.Warn().Msg("scheduler disabled, waiting for signals only")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Dur("drain_timeout", cfg.DrainTimeout).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancel()
	if err := c.Scheduler.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown drain timed out")
		return
	}
	log.Info().Msg("shut down cleanly")
}
