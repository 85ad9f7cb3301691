package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

func TestStatusMessage(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("активная подписка с профилем", func(t *testing.T) {
		end := now.Add(49 * time.Hour)
		user := &models.User{
			SubscriptionEnd:  &end,
			VlessProfileData: `{"email":"tg1"}`,
		}
		text := statusMessage(user, now)
		assert.Contains(t, text, "активна до")
		assert.Contains(t, text, "2 дн. 1 ч.")
		assert.Contains(t, text, "VPN-профиль: ✅")
	})

	t.Run("истёкшая подписка без профиля", func(t *testing.T) {
		end := now.Add(-time.Hour)
		user := &models.User{SubscriptionEnd: &end}
		text := statusMessage(user, now)
		assert.Contains(t, text, "не активна")
		assert.Contains(t, text, "/connect")
	})

	t.Run("подписка никогда не была активна", func(t *testing.T) {
		text := statusMessage(&models.User{}, now)
		assert.Contains(t, text, "не активна")
	})
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "2 дн. 1 ч.", formatDuration(49*time.Hour))
	assert.Equal(t, "3 ч. 30 мин.", formatDuration(3*time.Hour+30*time.Minute))
	assert.Equal(t, "0 ч. 5 мин.", formatDuration(5*time.Minute))
}

func TestTrafficMessage(t *testing.T) {
	user := &models.User{TotalUpload: 512 << 20, TotalDownload: 3 << 30}
	msg := trafficMessage(user)
	assert.Contains(t, msg, "512.00 MB")
	assert.Contains(t, msg, "3.00 GB")
}

func TestMonthsSuffix(t *testing.T) {
	assert.Equal(t, "месяц", monthsSuffix(1))
	assert.Equal(t, "месяца", monthsSuffix(2))
	assert.Equal(t, "месяцев", monthsSuffix(5))
	assert.Equal(t, "месяцев", monthsSuffix(11))
	assert.Equal(t, "месяц", monthsSuffix(21))
}
