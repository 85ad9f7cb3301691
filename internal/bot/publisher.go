package bot

import (
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

// PaymentPublisher публикует подтвержденные оплаты в очередь обработчика.
type PaymentPublisher struct {
	channel *amqp.Channel
}

// NewPaymentPublisher создает новый экземпляр PaymentPublisher.
func NewPaymentPublisher(channel *amqp.Channel) *PaymentPublisher {
	return &PaymentPublisher{channel: channel}
}

// PublishConfirmedPayment отправляет событие в exchange платежей.
func (p *PaymentPublisher) PublishConfirmedPayment(event models.PaymentEvent) error {
	return rabbitmq.PublishMessage(p.channel, rabbitmq.ExchangePayments,
		rabbitmq.RoutingKeyPaymentsConfirmed, event)
}
