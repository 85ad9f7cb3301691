// Package stats реализует еженедельную рассылку статистики трафика:
// по пятницам активным пользователям отправляется тихое сообщение с
// использованием трафика, администраторам — отчет о рассылке. Счётчики
// трафика в хранилище освежаются из панели.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

// День недели и час рассылки.
const (
	distributionWeekday = time.Friday
	distributionHour    = 20
)

// UserRepository определяет методы хранилища, нужные рассылке.
type UserRepository interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateUserTraffic(ctx context.Context, telegramID int64, upload, download int64, seenAt time.Time) error
}

// TrafficSource возвращает счётчики трафика клиента панели.
type TrafficSource interface {
	ClientTraffic(ctx context.Context, email string) (up, down int64, err error)
}

// Notifier отправляет сообщения. Статистика уходит тихим сообщением,
// чтобы не будить пользователей.
type Notifier interface {
	SendToUserSilent(ctx context.Context, telegramID int64, text string) error
	NotifyAdmins(ctx context.Context, text string)
}

// Service — рассыльщик статистики трафика.
type Service struct {
	repo     UserRepository
	panel    TrafficSource
	notifier Notifier
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo UserRepository, panel TrafficSource, notifier Notifier, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		panel:    panel,
		notifier: notifier,
		log:      log,
	}
}

// Run ждёт ближайшей пятницы 20:00 и запускает рассылку, затем повторяет.
func (s *Service) Run(ctx context.Context) {
	for {
		next := nextDistribution(time.Now())
		s.log.Info("next stats distribution scheduled", slog.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			s.RunDistribution(ctx, time.Now().UTC())
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("stats distribution task stopped")
			return
		}
	}
}

// nextDistribution возвращает ближайший момент рассылки после now.
func nextDistribution(now time.Time) time.Time {
	daysAhead := (int(distributionWeekday) - int(now.Weekday()) + 7) % 7
	target := now.AddDate(0, 0, daysAhead)
	target = time.Date(target.Year(), target.Month(), target.Day(),
		distributionHour, 0, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 7)
	}
	return target
}

// RunDistribution отправляет статистику всем активным пользователям с
// профилем. Ошибка по одному пользователю не прерывает остальных.
func (s *Service) RunDistribution(ctx context.Context, now time.Time) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		s.log.Error("failed to list users for stats distribution", sl.Err(err))
		return
	}

	var success, failed, total int
	for _, user := range users {
		if user.SubscriptionEnd == nil || !user.SubscriptionEnd.After(now) || !user.HasProfile() {
			continue
		}
		total++
		if err := s.sendUserStats(ctx, user, now); err != nil {
			failed++
			s.log.Warn("failed to send stats",
				slog.Int64("telegram_id", user.TelegramID), sl.Err(err))
			continue
		}
		success++
	}

	s.log.Info("stats distribution completed",
		slog.Int("success", success), slog.Int("failed", failed))
	s.notifier.NotifyAdmins(ctx, distributionReport(now, total, success, failed))
}

func (s *Service) sendUserStats(ctx context.Context, user *models.User, now time.Time) error {
	profile, err := user.ParseProfile()
	if err != nil {
		return err
	}

	up, down, err := s.panel.ClientTraffic(ctx, profile.Email)
	if err != nil {
		// Панель недоступна — показываем последние известные счётчики.
		up, down = user.TotalUpload, user.TotalDownload
	} else if updErr := s.repo.UpdateUserTraffic(ctx, user.TelegramID, up, down, now); updErr != nil {
		s.log.Warn("failed to store traffic counters",
			slog.Int64("telegram_id", user.TelegramID), sl.Err(updErr))
	}

	return s.notifier.SendToUserSilent(ctx, user.TelegramID, userStatsMessage(user, now, up, down))
}

// formatBytes печатает объём трафика в мегабайтах или гигабайтах.
func formatBytes(n int64) string {
	mb := float64(n) / (1024 * 1024)
	if mb > 1024 {
		return fmt.Sprintf("%.2f GB", mb/1024)
	}
	return fmt.Sprintf("%.2f MB", mb)
}

func userStatsMessage(user *models.User, now time.Time, up, down int64) string {
	daysLeft := int(user.SubscriptionEnd.Sub(now).Hours() / 24)
	return fmt.Sprintf("📊 *Еженедельная статистика трафика*\n\n"+
		"👤 Пользователь: %s\n"+
		"🆔 ID: `%d`\n\n"+
		"📅 Подписка активна\n"+
		"⏳ Осталось дней: *%d*\n\n"+
		"📈 *Использование трафика:*\n"+
		"🔼 Загружено: `%s`\n"+
		"🔽 Скачано: `%s`\n\n"+
		"Для управления подпиской используйте /status",
		user.FullName, user.TelegramID, daysLeft, formatBytes(up), formatBytes(down))
}

func distributionReport(now time.Time, total, success, failed int) string {
	rate := 0.0
	if total > 0 {
		rate = float64(success) / float64(total) * 100
	}
	return fmt.Sprintf("📊 *Отчет по рассылке статистики*\n\n"+
		"📅 Дата: %s\n"+
		"👥 Всего пользователей: %d\n"+
		"✅ Успешно отправлено: %d\n"+
		"❌ Ошибок отправки: %d\n"+
		"📈 Успешность: %.1f%%",
		now.Format("02.01.2006"), total, success, failed, rate)
}
