package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ResetNotificationFlags(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) CleanupExpiredUsers(ctx context.Context, before time.Time) (int, error) {
	args := m.Called(ctx, before)
	return args.Int(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestService_RunSweep(t *testing.T) {
	cleanupHour := 3

	tests := []struct {
		name       string
		now        time.Time
		setupMocks func(*MockRepository, time.Time)
	}{
		{
			name: "вне часа очистки - только сброс флагов",
			now:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			setupMocks: func(r *MockRepository, now time.Time) {
				r.On("ResetNotificationFlags", mock.Anything, now).Return(2, nil).Once()
			},
		},
		{
			name: "час очистки - сброс флагов и удаление устаревших записей",
			now:  time.Date(2025, 6, 1, 3, 15, 0, 0, time.UTC),
			setupMocks: func(r *MockRepository, now time.Time) {
				r.On("ResetNotificationFlags", mock.Anything, now).Return(0, nil).Once()
				r.On("CleanupExpiredUsers", mock.Anything, now.Add(-staleAfter)).Return(5, nil).Once()
			},
		},
		{
			name: "ошибка сброса флагов не блокирует очистку",
			now:  time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC),
			setupMocks: func(r *MockRepository, now time.Time) {
				r.On("ResetNotificationFlags", mock.Anything, now).
					Return(0, errors.New("db error")).Once()
				r.On("CleanupExpiredUsers", mock.Anything, now.Add(-staleAfter)).Return(0, nil).Once()
			},
		},
		{
			name: "ошибка очистки логируется и не приводит к панике",
			now:  time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC),
			setupMocks: func(r *MockRepository, now time.Time) {
				r.On("ResetNotificationFlags", mock.Anything, now).Return(0, nil).Once()
				r.On("CleanupExpiredUsers", mock.Anything, now.Add(-staleAfter)).
					Return(0, errors.New("db error")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			tt.setupMocks(repo, tt.now)

			service := New(repo, 6*time.Hour, cleanupHour, newNoopLogger())
			service.RunSweep(context.Background(), tt.now)

			repo.AssertExpectations(t)
		})
	}
}
