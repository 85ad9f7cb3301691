package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

type MockAdminLister struct {
	mock.Mock
}

func (m *MockAdminLister) ListAdmins(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestNotifier_SendToUser(t *testing.T) {
	sender := new(MockSender)
	admins := new(MockAdminLister)

	var sent tgbotapi.MessageConfig
	sender.On("Send", mock.Anything).
		Run(func(args mock.Arguments) {
			sent = args.Get(0).(tgbotapi.MessageConfig)
		}).
		Return(tgbotapi.Message{}, nil).Once()

	notifier := NewNotifier(sender, admins, 5*time.Second, newNoopLogger())
	err := notifier.SendToUser(context.Background(), 42, "привет")

	require.NoError(t, err)
	assert.Equal(t, int64(42), sent.ChatID)
	assert.Equal(t, "привет", sent.Text)
	assert.Equal(t, tgbotapi.ModeMarkdown, sent.ParseMode)
	assert.False(t, sent.DisableNotification)
}

func TestNotifier_SendToUserSilent(t *testing.T) {
	sender := new(MockSender)
	admins := new(MockAdminLister)

	var sent tgbotapi.MessageConfig
	sender.On("Send", mock.Anything).
		Run(func(args mock.Arguments) {
			sent = args.Get(0).(tgbotapi.MessageConfig)
		}).
		Return(tgbotapi.Message{}, nil).Once()

	notifier := NewNotifier(sender, admins, 5*time.Second, newNoopLogger())
	err := notifier.SendToUserSilent(context.Background(), 42, "статистика")

	require.NoError(t, err)
	assert.True(t, sent.DisableNotification)
}

func TestNotifier_NotifyAdmins(t *testing.T) {
	t.Run("рассылка всем администраторам", func(t *testing.T) {
		sender := new(MockSender)
		admins := new(MockAdminLister)

		admins.On("ListAdmins", mock.Anything).Return([]*models.User{
			{TelegramID: 10}, {TelegramID: 20},
		}, nil).Once()
		sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil).Twice()

		notifier := NewNotifier(sender, admins, 5*time.Second, newNoopLogger())
		notifier.NotifyAdmins(context.Background(), "событие")

		sender.AssertExpectations(t)
	})

	t.Run("ошибка доставки одному не прерывает остальных", func(t *testing.T) {
		sender := new(MockSender)
		admins := new(MockAdminLister)

		admins.On("ListAdmins", mock.Anything).Return([]*models.User{
			{TelegramID: 10}, {TelegramID: 20},
		}, nil).Once()
		sender.On("Send", mock.Anything).
			Return(tgbotapi.Message{}, errors.New("blocked")).Once()
		sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil).Once()

		notifier := NewNotifier(sender, admins, 5*time.Second, newNoopLogger())
		notifier.NotifyAdmins(context.Background(), "событие")

		sender.AssertNumberOfCalls(t, "Send", 2)
	})

	t.Run("ошибка списка администраторов - рассылки нет", func(t *testing.T) {
		sender := new(MockSender)
		admins := new(MockAdminLister)

		admins.On("ListAdmins", mock.Anything).
			Return(nil, errors.New("db error")).Once()

		notifier := NewNotifier(sender, admins, 5*time.Second, newNoopLogger())
		notifier.NotifyAdmins(context.Background(), "событие")

		sender.AssertNotCalled(t, "Send", mock.Anything)
	})
}
