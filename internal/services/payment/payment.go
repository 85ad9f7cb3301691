// Package payment обрабатывает подтвержденные оплаты из очереди:
// продлевает подписку, уведомляет пользователя и администраторов.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/metrics"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

// Extender продлевает подписку пользователя на целое число месяцев.
type Extender interface {
	Extend(ctx context.Context, telegramID int64, months int) (time.Time, error)
}

// Notifier отправляет сообщения пользователям и администраторам.
type Notifier interface {
	SendToUser(ctx context.Context, telegramID int64, text string) error
	NotifyAdmins(ctx context.Context, text string)
}

// Service применяет платежные события к подпискам.
type Service struct {
	subs     Extender
	notifier Notifier
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(subs Extender, notifier Notifier, log *slog.Logger) *Service {
	return &Service{
		subs:     subs,
		notifier: notifier,
		log:      log,
	}
}

// ProcessConfirmedPayment обрабатывает одно событие из очереди
// payments.confirmed. Возвращаемая ошибка приводит к повторной доставке,
// поэтому ошибки уведомлений в неё не входят: продление уже применено.
func (s *Service) ProcessConfirmedPayment(ctx context.Context, body []byte) error {
	var event models.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.log.Error("failed to unmarshal payment event", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	newEnd, err := s.subs.Extend(ctx, event.TelegramID, event.Months)
	if err != nil {
		s.log.Error("failed to extend subscription",
			slog.Int64("telegram_id", event.TelegramID), sl.Err(err))
		return fmt.Errorf("extend subscription: %w", err)
	}

	metrics.PaymentsProcessed.Inc()
	s.log.Info("payment applied",
		slog.Int64("telegram_id", event.TelegramID),
		slog.Int("months", event.Months),
		slog.String("method", event.Method),
		slog.Time("new_end", newEnd))

	if err := s.notifier.SendToUser(ctx, event.TelegramID, extendedMessage(event, newEnd)); err != nil {
		s.log.Warn("failed to send extension notification",
			slog.Int64("telegram_id", event.TelegramID), sl.Err(err))
	}
	s.notifier.NotifyAdmins(ctx, adminPaymentMessage(event))

	return nil
}

// monthsSuffix возвращает форму слова "месяц" для количества.
func monthsSuffix(months int) string {
	switch {
	case months == 1:
		return "месяц"
	case months >= 2 && months <= 4:
		return "месяца"
	default:
		return "месяцев"
	}
}

func extendedMessage(event models.PaymentEvent, newEnd time.Time) string {
	header := "🎉 *Ваша подписка успешно продлена!*"
	if event.IsAdminAction {
		header = "👑 *Администратор продлил вашу подписку!*"
	}
	return fmt.Sprintf("%s\n\n"+
		"📅 *Продлено на:* %d %s\n"+
		"📅 *Новая дата окончания:* %s\n\n"+
		"✅ VPN-сервис продолжит работать без перерывов.\n"+
		"Спасибо за использование нашего сервиса! 🚀",
		header, event.Months, monthsSuffix(event.Months),
		newEnd.Format("02.01.2006 15:04"))
}

func adminPaymentMessage(event models.PaymentEvent) string {
	method := "Telegram Stars"
	if event.Method == models.PaymentMethodTransfer {
		method = "Перевод (подтверждён администратором)"
	}
	return fmt.Sprintf("💰 *НОВАЯ ОПЛАТА*\n\n"+
		"🆔 *Telegram ID:* `%d`\n"+
		"📅 *Период:* %d %s\n"+
		"💳 *Сумма:* %d\n"+
		"🏦 *Способ оплаты:* %s\n"+
		"🕐 *Время:* %s",
		event.TelegramID, event.Months, monthsSuffix(event.Months),
		event.Amount, method, event.PaidAt.Format("15:04 02.01.2006"))
}
