package models

import "time"

// PaymentEvent публикуется ботом в очередь после подтверждения оплаты
// (Telegram Stars или ручное подтверждение перевода администратором)
// и обрабатывается payment-processor.
type PaymentEvent struct {
	TelegramID    int64     `json:"telegram_id"`
	Months        int       `json:"months"`
	Amount        int       `json:"amount"`
	Method        string    `json:"method"`
	IsAdminAction bool      `json:"is_admin_action"`
	PaidAt        time.Time `json:"paid_at"`
}

// Способы оплаты, попадающие в PaymentEvent.Method.
const (
	PaymentMethodStars    = "stars"
	PaymentMethodTransfer = "transfer"
)
