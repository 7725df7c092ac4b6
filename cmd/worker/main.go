package main

import (
	"context"
	"os/signal"
	"syscall"

	"qrattend/internal/app"
	"qrattend/internal/config"
	"qrattend/internal/logging"
)

// Worker consumes sweep retries from the queue and purges expired scan tokens.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := app.Build(ctx, cfg, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("wiring failed")
	}
	defer svc.Close()

	if svc.InProcessWorker() {
		log.Warn().Msg("QUEUE_BACKEND=memory: this worker only purges tokens; sweep retries run inside the API")
	}

	if err := svc.Worker().Run(ctx); err != nil {
		log.Error().Err(err).Msg("worker failed")
	}
}
