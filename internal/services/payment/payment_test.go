package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

type MockExtender struct {
	mock.Mock
}

func (m *MockExtender) Extend(ctx context.Context, telegramID int64, months int) (time.Time, error) {
	args := m.Called(ctx, telegramID, months)
	return args.Get(0).(time.Time), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendToUser(ctx context.Context, telegramID int64, text string) error {
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

func paymentBody(t *testing.T, event models.PaymentEvent) []byte {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestService_ProcessConfirmedPayment(t *testing.T) {
	newEnd := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	event := models.PaymentEvent{
		TelegramID: 1,
		Months:     3,
		Amount:     250,
		Method:     models.PaymentMethodStars,
		PaidAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name          string
		body          func(*testing.T) []byte
		setupMocks    func(*MockExtender, *MockNotifier)
		expectedError bool
	}{
		{
			name: "успешная оплата - продление и уведомления",
			body: func(t *testing.T) []byte { return paymentBody(t, event) },
			setupMocks: func(e *MockExtender, n *MockNotifier) {
				e.On("Extend", mock.Anything, int64(1), 3).Return(newEnd, nil).Once()
				n.On("SendToUser", mock.Anything, int64(1), mock.Anything).Return(nil).Once()
				n.On("NotifyAdmins", mock.Anything, mock.Anything).Once()
			},
			expectedError: false,
		},
		{
			name: "нечитаемое сообщение - ошибка для повторной доставки",
			body: func(*testing.T) []byte { return []byte("not json") },
			setupMocks: func(_ *MockExtender, _ *MockNotifier) {
				// Extend не вызывается
			},
			expectedError: true,
		},
		{
			name: "ошибка продления - ошибка для повторной доставки",
			body: func(t *testing.T) []byte { return paymentBody(t, event) },
			setupMocks: func(e *MockExtender, _ *MockNotifier) {
				e.On("Extend", mock.Anything, int64(1), 3).
					Return(time.Time{}, errors.New("db error")).Once()
			},
			expectedError: true,
		},
		{
			name: "ошибка уведомления не приводит к повторной обработке",
			body: func(t *testing.T) []byte { return paymentBody(t, event) },
			setupMocks: func(e *MockExtender, n *MockNotifier) {
				e.On("Extend", mock.Anything, int64(1), 3).Return(newEnd, nil).Once()
				n.On("SendToUser", mock.Anything, int64(1), mock.Anything).
					Return(errors.New("blocked by user")).Once()
				n.On("NotifyAdmins", mock.Anything, mock.Anything).Once()
			},
			expectedError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extender := new(MockExtender)
			notifier := new(MockNotifier)
			tt.setupMocks(extender, notifier)

			service := New(extender, notifier, newNoopLogger())
			err := service.ProcessConfirmedPayment(context.Background(), tt.body(t))

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			extender.AssertExpectations(t)
			notifier.AssertExpectations(t)
		})
	}
}

func TestMonthsSuffix(t *testing.T) {
	assert.Equal(t, "месяц", monthsSuffix(1))
	assert.Equal(t, "месяца", monthsSuffix(3))
	assert.Equal(t, "месяцев", monthsSuffix(6))
	assert.Equal(t, "месяцев", monthsSuffix(12))
}
