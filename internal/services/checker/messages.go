package checker

import (
	"fmt"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

const msgExpires24h = "⚠️ *Ваша подписка истекает через 24 часа!*\n\n" +
	"Продлите подписку, чтобы сохранить доступ к VPN-сервису.\n" +
	"Используйте команду /renew для продления подписки"

const msgExpires2h = "⏰ *СРОЧНО! Подписка истекает через 2 часа!*\n\n" +
	"Сейчас самое время продлить подписку, " +
	"чтобы не потерять доступ к VPN-сервису.\n" +
	"Используйте команду /renew для продления подписки."

const msgExpired = "❌ *Ваша подписка истекла*\n\n" +
	"VPN-профиль был отключён.\n" +
	"Используйте команду /renew для продления подписки"

func adminExpiringSoon(user *models.User, email string) string {
	name := user.FullName
	if name == "" {
		name = "Не указано"
	}
	return fmt.Sprintf("⏳ *СКОРО ИСТЕКАЕТ ПОДПИСКА*\n\n"+
		"👤 Пользователь: `%d`\n"+
		"📧 Email: `%s`\n"+
		"👤 Имя: %s\n"+
		"⏰ Истекает: `%s` (через 2 часа)",
		user.TelegramID, email, name, user.SubscriptionEnd.Format("02.01.2006 15:04"))
}

func adminExpired(user *models.User, email string) string {
	name := user.FullName
	if name == "" {
		name = "Не указано"
	}
	return fmt.Sprintf("📉 *ПОДПИСКА ЗАВЕРШЕНА*\n\n"+
		"👤 Пользователь: `%d`\n"+
		"📧 Email: `%s`\n"+
		"👤 Имя: %s\n"+
		"⏰ Окончание: `%s`\n"+
		"🧹 Клиент удалён из XUI",
		user.TelegramID, email, name, user.SubscriptionEnd.Format("02.01.2006 15:04"))
}
