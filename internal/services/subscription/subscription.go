// Package subscription содержит бизнес-логику управления сроком подписки:
// продление по оплате, ручные корректировки времени администратором,
// регистрацию пользователей и синхронизацию списка администраторов.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/storage/repository"
)

// Срок подписки, назначаемый администратору при создании записи
// синхронизацией: достаточно далёкий, чтобы сканер никогда не счёл
// такую запись истекающей.
const adminSubscriptionYears = 10

// UserRepository определяет методы хранилища, нужные сервису подписок.
type UserRepository interface {
	// GetUser возвращает пользователя по telegram_id.
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	// CreateUser вставляет нового пользователя.
	CreateUser(ctx context.Context, user models.User) error
	// UpdateUser атомарно изменяет запись пользователя под блокировкой строки.
	UpdateUser(ctx context.Context, telegramID int64, mutate func(*models.User)) (*models.User, error)
	// ClearAdminFlags снимает признак администратора со всех записей.
	ClearAdminFlags(ctx context.Context) error
}

// Cache описывает методы для кэширования записей пользователей.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Service реализует операции над сроком подписки.
type Service struct {
	repo  UserRepository
	cache Cache
	log   *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo UserRepository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// nextEnd вычисляет новую дату окончания: активная подписка продлевается
// от текущей даты окончания, истёкшая или отсутствующая — от now.
// Задним числом время не зачисляется.
func nextEnd(current *time.Time, now time.Time, d time.Duration) time.Time {
	if current != nil && current.After(now) {
		return current.Add(d)
	}
	return now.Add(d)
}

// componentsDuration переводит раздельно заданные месяцы/дни/часы/минуты
// в длительность. Месяц считается как 30 дней.
func componentsDuration(months, days, hours, minutes int) time.Duration {
	return time.Duration(months)*30*24*time.Hour +
		time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute
}

// CacheKey возвращает ключ кеша для записи пользователя.
func CacheKey(telegramID int64) string {
	return fmt.Sprintf("user:%d", telegramID)
}

// Extend продлевает подписку на целое число месяцев (тарифная оплата).
// Всегда сбрасывает оба флага уведомлений и возвращает новую дату окончания.
func (s *Service) Extend(ctx context.Context, telegramID int64, months int) (time.Time, error) {
	return s.adjust(ctx, telegramID, componentsDuration(months, 0, 0, 0))
}

// AddTime добавляет время к подписке по раздельным компонентам
// (админская выдача). Логика ветвления совпадает с Extend.
func (s *Service) AddTime(ctx context.Context, telegramID int64, months, days, hours, minutes int) (time.Time, error) {
	return s.adjust(ctx, telegramID, componentsDuration(months, days, hours, minutes))
}

func (s *Service) adjust(ctx context.Context, telegramID int64, d time.Duration) (time.Time, error) {
	now := time.Now().UTC()
	user, err := s.repo.UpdateUser(ctx, telegramID, func(u *models.User) {
		end := nextEnd(u.SubscriptionEnd, now, d)
		u.SubscriptionEnd = &end
		u.Notified24h = false
		u.Notified2h = false
		u.LastActivity = now
	})
	if err != nil {
		return time.Time{}, err
	}

	s.invalidate(telegramID)
	s.log.Info("subscription extended",
		slog.Int64("telegram_id", telegramID),
		slog.String("added", d.String()),
		slog.Time("new_end", *user.SubscriptionEnd))
	return *user.SubscriptionEnd, nil
}

// RemoveTime отнимает время от подписки. Результат не опускается ниже now;
// если подписка при этом истекает, флаги уведомлений сбрасываются, чтобы
// сканер обработал запись как свежеистёкшую.
func (s *Service) RemoveTime(ctx context.Context, telegramID int64, months, days, hours, minutes int) (time.Time, error) {
	d := componentsDuration(months, days, hours, minutes)
	now := time.Now().UTC()
	user, err := s.repo.UpdateUser(ctx, telegramID, func(u *models.User) {
		end := now
		if u.SubscriptionEnd != nil {
			end = u.SubscriptionEnd.Add(-d)
		}
		if end.Before(now) {
			end = now
		}
		u.SubscriptionEnd = &end
		if !end.After(now) {
			u.Notified24h = false
			u.Notified2h = false
		}
		u.LastActivity = now
	})
	if err != nil {
		return time.Time{}, err
	}

	s.invalidate(telegramID)
	s.log.Info("subscription time removed",
		slog.Int64("telegram_id", telegramID),
		slog.String("removed", d.String()),
		slog.Time("new_end", *user.SubscriptionEnd))
	return *user.SubscriptionEnd, nil
}

// AttachProfile сохраняет созданный VPN-профиль пользователя и сбрасывает
// флаги уведомлений.
func (s *Service) AttachProfile(ctx context.Context, telegramID int64, profileData string) error {
	now := time.Now().UTC()
	_, err := s.repo.UpdateUser(ctx, telegramID, func(u *models.User) {
		u.VlessProfileData = profileData
		u.Notified24h = false
		u.Notified2h = false
		u.LastActivity = now
	})
	if err != nil {
		return err
	}
	s.invalidate(telegramID)
	return nil
}

// RegisterUser создаёт запись пользователя при первом обращении с пробным
// периодом либо освежает имя и username существующей записи.
func (s *Service) RegisterUser(ctx context.Context, telegramID int64, fullName, username string, trialDays int) (*models.User, error) {
	now := time.Now().UTC()
	user, err := s.repo.GetUser(ctx, telegramID)
	if err == nil {
		if user.FullName == fullName && user.Username == username {
			return user, nil
		}
		updated, err := s.repo.UpdateUser(ctx, telegramID, func(u *models.User) {
			u.FullName = fullName
			u.Username = username
			u.LastActivity = now
		})
		if err != nil {
			return nil, err
		}
		s.invalidate(telegramID)
		return updated, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	trialEnd := now.Add(time.Duration(trialDays) * 24 * time.Hour)
	newUser := models.User{
		TelegramID:       telegramID,
		FullName:         fullName,
		Username:         username,
		RegistrationDate: now,
		SubscriptionEnd:  &trialEnd,
		LastActivity:     now,
	}
	if err := s.repo.CreateUser(ctx, newUser); err != nil {
		return nil, err
	}
	s.log.Info("new user registered",
		slog.Int64("telegram_id", telegramID),
		slog.Time("trial_end", trialEnd))
	return &newUser, nil
}

// GetUser возвращает запись пользователя, используя кеш.
func (s *Service) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	var cached models.User
	found, err := s.cache.Get(CacheKey(telegramID), &cached)
	if err != nil {
		s.log.Warn("failed to read user from cache", sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	user, err := s.repo.GetUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(CacheKey(telegramID), user, time.Hour); err != nil {
		s.log.Warn("failed to cache user", sl.Err(err))
	}
	return user, nil
}

// SyncAdmins приводит признак is_admin в соответствие со списком из
// конфигурации: сбрасывает его у всех, затем выставляет заново, создавая
// отсутствующие записи. Идемпотентна, выполняется при каждом старте.
func (s *Service) SyncAdmins(ctx context.Context, adminIDs []int64) error {
	if err := s.repo.ClearAdminFlags(ctx); err != nil {
		return fmt.Errorf("clear admin flags: %w", err)
	}

	now := time.Now().UTC()
	for _, adminID := range adminIDs {
		_, err := s.repo.UpdateUser(ctx, adminID, func(u *models.User) {
			u.IsAdmin = true
		})
		if err == nil {
			s.invalidate(adminID)
			continue
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return fmt.Errorf("set admin %d: %w", adminID, err)
		}

		farEnd := now.AddDate(adminSubscriptionYears, 0, 0)
		newAdmin := models.User{
			TelegramID:       adminID,
			FullName:         fmt.Sprintf("Admin %d", adminID),
			RegistrationDate: now,
			SubscriptionEnd:  &farEnd,
			IsAdmin:          true,
			LastActivity:     now,
		}
		if err := s.repo.CreateUser(ctx, newAdmin); err != nil {
			return fmt.Errorf("create admin %d: %w", adminID, err)
		}
	}

	s.log.Info("admins synced from config", slog.Int("count", len(adminIDs)))
	return nil
}

func (s *Service) invalidate(telegramID int64) {
	if err := s.cache.Invalidate(CacheKey(telegramID)); err != nil {
		s.log.Warn("failed to invalidate user cache",
			slog.Int64("telegram_id", telegramID), sl.Err(err))
	}
}
