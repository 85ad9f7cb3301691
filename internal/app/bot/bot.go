// Package bot собирает и запускает основное приложение: Telegram-бота,
// сканер истечения подписок, свипер, рассылку статистики и служебный
// HTTP-сервер.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/streadway/amqp"

	obsapp "github.com/magabrotheeeer/vpn-subscription-bot/internal/app/observability"
	botpkg "github.com/magabrotheeeer/vpn-subscription-bot/internal/bot"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/cache"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/config"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/migrations"
	checkerservice "github.com/magabrotheeeer/vpn-subscription-bot/internal/services/checker"
	statsservice "github.com/magabrotheeeer/vpn-subscription-bot/internal/services/stats"
	subscriptionservice "github.com/magabrotheeeer/vpn-subscription-bot/internal/services/subscription"
	sweeperservice "github.com/magabrotheeeer/vpn-subscription-bot/internal/services/sweeper"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/storage/repository"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/xui"
)

// App агрегирует все компоненты основного процесса.
type App struct {
	handler       *botpkg.Handler
	checker       *checkerservice.Service
	sweeper       *sweeperservice.Service
	stats         *statsservice.Service
	observability *obsapp.App
	logger        *slog.Logger

	db       *repository.Storage
	amqpConn *amqp.Connection
	amqpCh   *amqp.Channel
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	for i := 0; i < 10; i++ {
		if err := db.CheckDatabaseReady(ctx); err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает приложение: подключает хранилище, кэш, брокер, панель
// и Telegram API, затем связывает сервисы.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err = waitForDB(ctx, db); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetPaymentQueues())
	if err != nil {
		return nil, fmt.Errorf("setup RabbitMQ channel: %w", err)
	}

	panel, err := xui.NewClient(cfg.XUIPanel)
	if err != nil {
		return nil, fmt.Errorf("init xui client: %w", err)
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("init telegram api: %w", err)
	}
	logger.Info("authorized on telegram", slog.String("username", api.Self.UserName))

	notifier := botpkg.NewNotifier(api, db, cfg.Lifecycle.SendTimeout, logger)
	subscriptionService := subscriptionservice.New(db, cacheRedis, logger)
	publisher := botpkg.NewPaymentPublisher(ch)

	// Список администраторов в конфиге — источник истины, синхронизируем
	// его с базой на каждом старте.
	if err = subscriptionService.SyncAdmins(ctx, cfg.Admins); err != nil {
		return nil, fmt.Errorf("sync admins: %w", err)
	}

	handler := botpkg.NewHandler(api, subscriptionService, panel, db, publisher,
		cfg.Telegram, cfg.TrialDays, logger)

	return &App{
		handler:       handler,
		checker:       checkerservice.New(db, notifier, panel, cfg.CheckInterval, logger),
		sweeper:       sweeperservice.New(db, cfg.SweepInterval, cfg.CleanupHour, logger),
		stats:         statsservice.New(db, panel, notifier, logger),
		observability: obsapp.New(cfg.Observability, db, logger),
		logger:        logger,
		db:            db,
		amqpConn:      conn,
		amqpCh:        ch,
	}, nil
}

// Run запускает фоновые сервисы и цикл обработки обновлений.
// Блокируется до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	go a.checker.Run(ctx)
	go a.sweeper.Run(ctx)
	go a.stats.Run(ctx)
	go func() {
		if err := a.observability.Run(ctx); err != nil {
			a.logger.Error("observability server stopped with error", slog.Any("err", err))
		}
	}()

	a.handler.Run(ctx)

	_ = a.amqpCh.Close()
	_ = a.amqpConn.Close()
	_ = a.db.DB.Close()
	return nil
}
