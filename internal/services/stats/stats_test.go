package stats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *MockRepository) UpdateUserTraffic(ctx context.Context, telegramID int64, upload, download int64, seenAt time.Time) error {
	args := m.Called(ctx, telegramID, upload, download, seenAt)
	return args.Error(0)
}

type MockPanel struct {
	mock.Mock
}

func (m *MockPanel) ClientTraffic(ctx context.Context, email string) (int64, int64, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendToUserSilent(ctx context.Context, telegramID int64, text string) error {
	args := m.Called(ctx, telegramID, text)
	return args.Error(0)
}

func (m *MockNotifier) NotifyAdmins(ctx context.Context, text string) {
	m.Called(ctx, text)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func activeUser(telegramID int64, end time.Time) *models.User {
	endCopy := end
	return &models.User{
		TelegramID:       telegramID,
		FullName:         "Test User",
		SubscriptionEnd:  &endCopy,
		VlessProfileData: `{"email":"tg1","uuid":"abc"}`,
		TotalUpload:      100 << 20,
		TotalDownload:    200 << 20,
	}
}

func TestNextDistribution(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		expected time.Time
	}{
		{
			name:     "среда - ближайшая пятница этой недели",
			now:      time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC), // среда
			expected: time.Date(2025, 6, 6, 20, 0, 0, 0, time.UTC),
		},
		{
			name:     "пятница до 20:00 - сегодня вечером",
			now:      time.Date(2025, 6, 6, 10, 0, 0, 0, time.UTC),
			expected: time.Date(2025, 6, 6, 20, 0, 0, 0, time.UTC),
		},
		{
			name:     "пятница после 20:00 - через неделю",
			now:      time.Date(2025, 6, 6, 21, 0, 0, 0, time.UTC),
			expected: time.Date(2025, 6, 13, 20, 0, 0, 0, time.UTC),
		},
		{
			name:     "суббота - пятница следующей недели",
			now:      time.Date(2025, 6, 7, 10, 0, 0, 0, time.UTC),
			expected: time.Date(2025, 6, 13, 20, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextDistribution(tt.now)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, time.Friday, got.Weekday())
		})
	}
}

func TestService_RunDistribution(t *testing.T) {
	now := time.Date(2025, 6, 6, 20, 0, 0, 0, time.UTC)

	t.Run("статистика уходит только активным пользователям с профилем", func(t *testing.T) {
		repo := new(MockRepository)
		panel := new(MockPanel)
		notifier := new(MockNotifier)

		active := activeUser(1, now.Add(72*time.Hour))
		expired := activeUser(2, now.Add(-time.Hour))
		noProfile := activeUser(3, now.Add(72*time.Hour))
		noProfile.VlessProfileData = ""

		repo.On("ListUsers", mock.Anything).
			Return([]*models.User{active, expired, noProfile}, nil).Once()
		panel.On("ClientTraffic", mock.Anything, "tg1").
			Return(int64(500<<20), int64(900<<20), nil).Once()
		repo.On("UpdateUserTraffic", mock.Anything, int64(1), int64(500<<20), int64(900<<20), now).
			Return(nil).Once()
		notifier.On("SendToUserSilent", mock.Anything, int64(1), mock.Anything).Return(nil).Once()
		notifier.On("NotifyAdmins", mock.Anything, mock.Anything).Once()

		service := New(repo, panel, notifier, newNoopLogger())
		service.RunDistribution(context.Background(), now)

		repo.AssertExpectations(t)
		panel.AssertExpectations(t)
		notifier.AssertExpectations(t)
	})

	t.Run("панель недоступна - используются сохранённые счётчики", func(t *testing.T) {
		repo := new(MockRepository)
		panel := new(MockPanel)
		notifier := new(MockNotifier)

		user := activeUser(1, now.Add(72*time.Hour))
		repo.On("ListUsers", mock.Anything).Return([]*models.User{user}, nil).Once()
		panel.On("ClientTraffic", mock.Anything, "tg1").
			Return(int64(0), int64(0), errors.New("panel down")).Once()

		var sentText string
		notifier.On("SendToUserSilent", mock.Anything, int64(1), mock.Anything).
			Run(func(args mock.Arguments) {
				sentText = args.Get(2).(string)
			}).
			Return(nil).Once()
		notifier.On("NotifyAdmins", mock.Anything, mock.Anything).Once()

		service := New(repo, panel, notifier, newNoopLogger())
		service.RunDistribution(context.Background(), now)

		// 100 MB из сохранённого счётчика, не нулевой ответ панели
		assert.Contains(t, sentText, "100.00 MB")
		repo.AssertNotCalled(t, "UpdateUserTraffic",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ошибка отправки по одному пользователю не прерывает остальных", func(t *testing.T) {
		repo := new(MockRepository)
		panel := new(MockPanel)
		notifier := new(MockNotifier)

		first := activeUser(1, now.Add(72*time.Hour))
		second := activeUser(2, now.Add(72*time.Hour))
		second.VlessProfileData = `{"email":"tg2"}`

		repo.On("ListUsers", mock.Anything).Return([]*models.User{first, second}, nil).Once()
		panel.On("ClientTraffic", mock.Anything, mock.Anything).
			Return(int64(0), int64(0), errors.New("panel down")).Twice()
		notifier.On("SendToUserSilent", mock.Anything, int64(1), mock.Anything).
			Return(errors.New("blocked")).Once()
		notifier.On("SendToUserSilent", mock.Anything, int64(2), mock.Anything).Return(nil).Once()

		var report string
		notifier.On("NotifyAdmins", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				report = args.Get(1).(string)
			}).Once()

		service := New(repo, panel, notifier, newNoopLogger())
		service.RunDistribution(context.Background(), now)

		assert.True(t, strings.Contains(report, "Успешно отправлено: 1"))
		assert.True(t, strings.Contains(report, "Ошибок отправки: 1"))
	})
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512.00 MB", formatBytes(512<<20))
	assert.Equal(t, "2.00 GB", formatBytes(2<<30))
	assert.Equal(t, "0.00 MB", formatBytes(0))
}
