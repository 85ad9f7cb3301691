// Package sweeper реализует фоновую задачу обслуживания флагов
// уведомлений: пользователям, продлившим подписку заметно дальше окон
// уведомлений, флаги сбрасываются, а раз в сутки удаляются давно
// истёкшие записи без профиля.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/metrics"
)

// Записи без подписки и профиля хранятся месяц, затем удаляются.
const staleAfter = 30 * 24 * time.Hour

// UserRepository определяет пакетные операции хранилища для свипера.
type UserRepository interface {
	// ResetNotificationFlags сбрасывает флаги у продлённых пользователей.
	ResetNotificationFlags(ctx context.Context, now time.Time) (int, error)
	// CleanupExpiredUsers удаляет устаревшие неадминские записи.
	CleanupExpiredUsers(ctx context.Context, before time.Time) (int, error)
}

// Service — свипер флагов уведомлений и устаревших записей.
type Service struct {
	repo        UserRepository
	interval    time.Duration
	cleanupHour int
	log         *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo UserRepository, interval time.Duration, cleanupHour int, log *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		interval:    interval,
		cleanupHour: cleanupHour,
		log:         log,
	}
}

// Run запускает цикл свипера и работает до отмены контекста.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("notification flag sweeper started", slog.Duration("interval", s.interval))
	s.RunSweep(ctx, time.Now().UTC())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunSweep(ctx, time.Now().UTC())
		case <-ctx.Done():
			s.log.Info("notification flag sweeper stopped")
			return
		}
	}
}

// RunSweep выполняет один проход: пакетный сброс флагов и, если текущий
// час совпадает с часом очистки, удаление устаревших записей. Интервал
// между проходами больше часа, поэтому очистка срабатывает не чаще
// раза в сутки.
func (s *Service) RunSweep(ctx context.Context, now time.Time) {
	count, err := s.repo.ResetNotificationFlags(ctx, now)
	if err != nil {
		s.log.Error("failed to reset notification flags", sl.Err(err))
	} else if count > 0 {
		metrics.FlagsReset.Add(float64(count))
		s.log.Info("reset notification flags", slog.Int("count", count))
	}

	if now.Hour() != s.cleanupHour {
		return
	}
	cleaned, err := s.repo.CleanupExpiredUsers(ctx, now.Add(-staleAfter))
	if err != nil {
		s.log.Error("failed to cleanup expired users", sl.Err(err))
		return
	}
	if cleaned > 0 {
		metrics.UsersCleaned.Add(float64(cleaned))
		s.log.Info("cleaned up expired user records", slog.Int("count", cleaned))
	}
}
