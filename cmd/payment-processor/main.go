// Package main содержит точку входа обработчика платежей: он читает
// подтвержденные оплаты из очереди и продлевает подписки.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/bot"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/cache"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/config"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/lib/sl"
	paymentservice "github.com/magabrotheeeer/vpn-subscription-bot/internal/services/payment"
	subscriptionservice "github.com/magabrotheeeer/vpn-subscription-bot/internal/services/subscription"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/storage/repository"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Info("starting payment-processor", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		logger.Error("failed to connect to storage", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = db.DB.Close()
	}()

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		logger.Error("failed to connect to redis", sl.Err(err))
		os.Exit(1)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", sl.Err(err))
		os.Exit(1)
	}
	logger.Info("success to connect to RabbitMQ", slog.String("URL", cfg.RabbitMQURL))
	defer func() {
		_ = conn.Close()
	}()

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetPaymentQueues())
	if err != nil {
		logger.Error("failed to setup RabbitMQ channel", sl.Err(err))
		os.Exit(1)
	}
	logger.Info("success to setup RabbitMQ channel")
	defer func() {
		_ = ch.Close()
	}()

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Error("failed to init telegram api", sl.Err(err))
		os.Exit(1)
	}

	notifier := bot.NewNotifier(api, db, cfg.Lifecycle.SendTimeout, logger)
	subscriptionService := subscriptionservice.New(db, cacheRedis, logger)
	processor := paymentservice.New(subscriptionService, notifier, logger)

	handler := func(body []byte) error {
		return processor.ProcessConfirmedPayment(ctx, body)
	}
	if err = rabbitmq.ConsumeMessages(ctx, ch, rabbitmq.QueuePaymentsConfirmed, handler); err != nil {
		logger.Error("failed to start consumer", sl.Err(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("payment-processor shutting down gracefully")
}
