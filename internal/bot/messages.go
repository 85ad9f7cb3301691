package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

const (
	msgUnknownCommand = "Неизвестная команда. Доступные команды: /start, /status, /connect, /renew"

	msgInternalError = "⚠️ Произошла внутренняя ошибка. Попробуйте позже."

	msgNotRegistered = "Вы еще не зарегистрированы. Отправьте /start, чтобы начать."

	msgSubscriptionInactive = "❌ Ваша подписка не активна. Продлите её командой /renew."

	msgPanelUnavailable = "⚠️ VPN-сервер временно недоступен. Попробуйте позже."

	msgPaymentReceived = "✅ Оплата получена! Подписка будет продлена в течение минуты."

	msgPaymentDelayed = "⚠️ Оплата получена, но обработка задерживается. " +
		"Если подписка не продлится в течение часа, свяжитесь с поддержкой."

	msgAccessDenied = "⛔ Команда доступна только администраторам."

	msgConfirmPaymentUsage = "Использование: `/confirm_payment <telegram_id> <месяцы>`"

	msgAddTimeUsage = "Использование: `/addtime <telegram_id> <месяцы> <дни> <часы> <минуты>`"

	msgRemoveTimeUsage = "Использование: `/removetime <telegram_id> <месяцы> <дни> <часы> <минуты>`"

	msgUserNotFound = "Пользователь не найден."
)

func welcomeMessage(user *models.User) string {
	var b strings.Builder
	b.WriteString("👋 Добро пожаловать в VPN-сервис!\n\n")
	if user.SubscriptionEnd != nil {
		fmt.Fprintf(&b, "Ваша подписка активна до `%s`.\n\n",
			user.SubscriptionEnd.Format("02.01.2006 15:04"))
	}
	b.WriteString("Команды:\n")
	b.WriteString("/connect — получить VPN-профиль\n")
	b.WriteString("/status — статус подписки\n")
	b.WriteString("/stats — статистика трафика\n")
	b.WriteString("/renew — продлить подписку")
	return b.String()
}

func statusMessage(user *models.User, now time.Time) string {
	var b strings.Builder
	b.WriteString("📊 *Статус подписки*\n\n")
	if user.SubscriptionEnd == nil || !user.SubscriptionEnd.After(now) {
		b.WriteString("Подписка: ❌ не активна\n")
	} else {
		fmt.Fprintf(&b, "Подписка: ✅ активна до `%s`\n",
			user.SubscriptionEnd.Format("02.01.2006 15:04"))
		left := user.SubscriptionEnd.Sub(now)
		fmt.Fprintf(&b, "Осталось: %s\n", formatDuration(left))
	}
	if user.HasProfile() {
		b.WriteString("VPN-профиль: ✅ выдан")
	} else {
		b.WriteString("VPN-профиль: ❌ не выдан (/connect)")
	}
	return b.String()
}

func trafficMessage(user *models.User) string {
	var b strings.Builder
	b.WriteString("📈 *Ваш трафик*\n\n")
	fmt.Fprintf(&b, "⬆️ Отправлено: %s\n", formatTraffic(user.TotalUpload))
	fmt.Fprintf(&b, "⬇️ Получено: %s", formatTraffic(user.TotalDownload))
	return b.String()
}

func formatTraffic(n int64) string {
	const gb = 1 << 30
	if n >= gb {
		return fmt.Sprintf("%.2f GB", float64(n)/gb)
	}
	return fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
}

func connectMessage(url string) string {
	return fmt.Sprintf("🔑 Ваш VPN-профиль:\n\n`%s`\n\n"+
		"Скопируйте ссылку в приложение (v2rayTun, Hiddify, Streisand).", url)
}

func renewMessage(payURL string) string {
	msg := "💳 *Продление подписки*\n\nВыберите тариф для оплаты звёздами Telegram:"
	if payURL != "" {
		msg += fmt.Sprintf("\n\nОплата переводом: %s\n"+
			"После перевода администратор подтвердит оплату вручную.", payURL)
	}
	return msg
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if days > 0 {
		return fmt.Sprintf("%d дн. %d ч.", days, hours)
	}
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%d ч. %d мин.", hours, minutes)
}

func monthsSuffix(months int) string {
	switch {
	case months%10 == 1 && months%100 != 11:
		return "месяц"
	case months%10 >= 2 && months%10 <= 4 && (months%100 < 10 || months%100 >= 20):
		return "месяца"
	default:
		return "месяцев"
	}
}
