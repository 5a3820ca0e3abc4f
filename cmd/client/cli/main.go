package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dpetrovs/finsync/internal/client/cli"
	"github.com/dpetrovs/finsync/internal/client/config"
	"github.com/dpetrovs/finsync/internal/logging"
)

func main() {
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
