// Package bot реализует Telegram-слой: отправку уведомлений с учётом
// лимитов Bot API, обработку команд пользователя и администратора,
// приём оплат Stars и публикацию платежных событий в очередь.
package bot

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

// Telegram ограничивает ботов примерно 30 сообщениями в секунду;
// массовые рассылки дополнительно темперируются лимитером.
const sendRatePerSecond = 20

// MessageSender отправляет подготовленное сообщение Bot API.
// *tgbotapi.BotAPI реализует интерфейс.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// AdminLister возвращает администраторов для широковещательных уведомлений.
type AdminLister interface {
	ListAdmins(ctx context.Context) ([]*models.User, error)
}

// Notifier отправляет сообщения пользователям и администраторам бота.
type Notifier struct {
	api         MessageSender
	admins      AdminLister
	limiter     *rate.Limiter
	sendTimeout time.Duration
	log         *slog.Logger
}

// NewNotifier создает новый экземпляр Notifier. sendTimeout ограничивает
// ожидание лимитера на одну отправку.
func NewNotifier(api MessageSender, admins AdminLister, sendTimeout time.Duration, log *slog.Logger) *Notifier {
	return &Notifier{
		api:         api,
		admins:      admins,
		limiter:     rate.NewLimiter(rate.Limit(sendRatePerSecond), 1),
		sendTimeout: sendTimeout,
		log:         log,
	}
}

func (n *Notifier) send(ctx context.Context, telegramID int64, text string, silent bool) error {
	ctx, cancel := context.WithTimeout(ctx, n.sendTimeout)
	defer cancel()
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(telegramID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableNotification = silent
	_, err := n.api.Send(msg)
	return err
}

// SendToUser отправляет сообщение пользователю.
func (n *Notifier) SendToUser(ctx context.Context, telegramID int64, text string) error {
	return n.send(ctx, telegramID, text, false)
}

// SendToUserSilent отправляет сообщение без звукового уведомления.
func (n *Notifier) SendToUserSilent(ctx context.Context, telegramID int64, text string) error {
	return n.send(ctx, telegramID, text, true)
}

// NotifyAdmins рассылает сообщение всем администраторам. Ошибка доставки
// одному получателю логируется и не прерывает остальных.
func (n *Notifier) NotifyAdmins(ctx context.Context, text string) {
	admins, err := n.admins.ListAdmins(ctx)
	if err != nil {
		n.log.Error("failed to list admins for broadcast", sl.Err(err))
		return
	}
	for _, admin := range admins {
		if err := n.send(ctx, admin.TelegramID, text, false); err != nil {
			n.log.Warn("failed to notify admin",
				slog.Int64("telegram_id", admin.TelegramID), sl.Err(err))
		}
	}
}
