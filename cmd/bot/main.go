// Package main содержит точку входа основного процесса бота.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	botapp "github.com/magabrotheeeer/vpn-subscription-bot/internal/app/bot"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/config"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting vpn-subscription-bot", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := botapp.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize bot app", slog.Any("err", err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("bot app stopped with error", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("vpn-subscription-bot stopped gracefully")
}
