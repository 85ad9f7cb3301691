// Package checker реализует периодическую проверку подписок: каждые
// несколько минут все записи пользователей оцениваются по времени до
// окончания, при пересечении порогов отправляются уведомления (один раз
// на порог благодаря флагам в хранилище), истёкшие подписки
// деактивируются на панели и очищаются локально.
package checker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/metrics"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

// UserRepository определяет методы хранилища, нужные сканеру.
type UserRepository interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateUser(ctx context.Context, telegramID int64, mutate func(*models.User)) (*models.User, error)
}

// Notifier отправляет сообщения пользователям и администраторам.
// Ошибка доставки не фатальна для проверки.
type Notifier interface {
	SendToUser(ctx context.Context, telegramID int64, text string) error
	NotifyAdmins(ctx context.Context, text string)
}

// Deprovisioner отзывает VPN-доступ клиента на внешней панели.
type Deprovisioner interface {
	Revoke(ctx context.Context, email string) error
}

// Service — сканер истечения подписок.
type Service struct {
	repo     UserRepository
	notifier Notifier
	panel    Deprovisioner
	interval time.Duration
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo UserRepository, notifier Notifier, panel Deprovisioner, interval time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		panel:    panel,
		interval: interval,
		log:      log,
	}
}

// Run запускает цикл проверки и работает до отмены контекста.
// Расписание не персистится: после рестарта опрос просто продолжается
// от текущего момента, флаги в хранилище защищают от повторных
// уведомлений.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("subscription checker started", slog.Duration("interval", s.interval))
	s.RunCheck(ctx, time.Now().UTC())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunCheck(ctx, time.Now().UTC())
		case <-ctx.Done():
			s.log.Info("subscription checker stopped")
			return
		}
	}
}

// RunCheck выполняет один цикл проверки всех пользователей. Ошибка
// загрузки списка фатальна только для текущего цикла; ошибка обработки
// отдельного пользователя логируется и не прерывает остальных.
func (s *Service) RunCheck(ctx context.Context, now time.Time) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		s.log.Error("failed to list users for check", sl.Err(err))
		return
	}
	s.log.Debug("checking users", slog.Int("count", len(users)))

	for _, user := range users {
		if err := s.checkUser(ctx, user, now); err != nil {
			s.log.Error("failed to check user",
				slog.Int64("telegram_id", user.TelegramID), sl.Err(err))
		}
	}
	metrics.CheckTicks.Inc()
}

// checkUser оценивает одного пользователя по порогам. Все три условия
// проверяются независимо и в фиксированном порядке: пропущенное из-за
// простоя процесса 24-часовое уведомление не отменяет 2-часовое.
func (s *Service) checkUser(ctx context.Context, user *models.User, now time.Time) error {
	if user.SubscriptionEnd == nil || !user.HasProfile() {
		return nil
	}

	profile, err := user.ParseProfile()
	if err != nil && !errors.Is(err, models.ErrMalformedProfile) {
		return err
	}
	email := ""
	if profile != nil {
		email = profile.Email
	}
	if errors.Is(err, models.ErrMalformedProfile) {
		s.log.Warn("invalid profile data", slog.Int64("telegram_id", user.TelegramID))
	}

	timeToExpire := user.SubscriptionEnd.Sub(now)

	if timeToExpire >= 0 && timeToExpire <= models.Window24h && !user.Notified24h {
		s.send24hNotification(ctx, user)
	}

	if timeToExpire >= 0 && timeToExpire <= models.Window2h && !user.Notified2h {
		s.send2hNotification(ctx, user, email)
	}

	if !user.SubscriptionEnd.After(now) {
		return s.handleExpired(ctx, user, email)
	}
	return nil
}

// send24hNotification отправляет предупреждение за 24 часа. Флаг
// выставляется и при неудачной доставке: повторная отправка на каждом
// цикле хуже редкой потери уведомления.
func (s *Service) send24hNotification(ctx context.Context, user *models.User) {
	if err := s.notifier.SendToUser(ctx, user.TelegramID, msgExpires24h); err != nil {
		s.log.Warn("failed to send 24h notification",
			slog.Int64("telegram_id", user.TelegramID), sl.Err(err))
		metrics.NotificationFailures.Inc()
	}

	if _, err := s.repo.UpdateUser(ctx, user.TelegramID, func(u *models.User) {
		u.Notified24h = true
	}); err != nil {
		s.log.Error("failed to mark 24h notification",
			slog.Int64("telegram_id", user.TelegramID), sl.Err(err))
		return
	}
	user.Notified24h = true
	metrics.NotificationsSent.WithLabelValues("24h").Inc()
	s.log.Info("24h notification sent", slog.Int64("telegram_id", user.TelegramID))
}

// send2hNotification отправляет срочное предупреждение пользователю
// и оповещает администраторов.
func (s *Service) send2hNotification(ctx context.Context, user *models.User, email string) {
	if err := s.notifier.SendToUser(ctx, user.TelegramID, msgExpires2h); err != nil {
		s.log.Warn("failed to send 2h notification",
			slog.Int64("telegram_id", user.TelegramID), sl.Err(err))
		metrics.NotificationFailures.Inc()
	}

	s.notifier.NotifyAdmins(ctx, adminExpiringSoon(user, email))

	if _, err := s.repo.UpdateUser(ctx, user.TelegramID, func(u *models.User) {
		u.Notified2h = true
	}); err != nil {
		s.log.Error("failed to mark 2h notification",
			slog.Int64("telegram_id", user.TelegramID), sl.Err(err))
		return
	}
	user.Notified2h = true
	metrics.NotificationsSent.WithLabelValues("2h").Inc()
	s.log.Info("2h notifications sent", slog.Int64("telegram_id", user.TelegramID))
}

// handleExpired отзывает VPN-профиль истёкшего пользователя. Ошибка
// панели логируется, локальное состояние очищается в любом случае:
// источником истины для решений бота остаётся хранилище.
func (s *Service) handleExpired(ctx context.Context, user *models.User, email string) error {
	if email != "" {
		if err := s.panel.Revoke(ctx, email); err != nil {
			s.log.Warn("failed to revoke client on panel",
				slog.String("email", email), sl.Err(err))
		}
	}

	if _, err := s.repo.UpdateUser(ctx, user.TelegramID, func(u *models.User) {
		u.VlessProfileData = ""
		u.Notified24h = false
		u.Notified2h = false
	}); err != nil {
		return err
	}

	if err := s.notifier.SendToUser(ctx, user.TelegramID, msgExpired); err != nil {
		s.log.Warn("failed to send expiry notification",
			slog.Int64("telegram_id", user.TelegramID), sl.Err(err))
		metrics.NotificationFailures.Inc()
	}
	s.notifier.NotifyAdmins(ctx, adminExpired(user, email))

	metrics.ProfilesRevoked.Inc()
	s.log.Info("subscription ended",
		slog.Int64("telegram_id", user.TelegramID), slog.String("email", email))
	return nil
}
