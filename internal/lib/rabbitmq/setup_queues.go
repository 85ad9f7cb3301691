package rabbitmq

// ExchangePayments — exchange, через который бот передаёт подтвержденные
// оплаты обработчику платежей.
const ExchangePayments = "payments"

// Маршрутизация платежных событий.
const (
	QueuePaymentsConfirmed      = "payments.confirmed"
	RoutingKeyPaymentsConfirmed = "confirmed"
)

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetPaymentQueues возвращает конфигурацию очередей платежных событий.
func GetPaymentQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueuePaymentsConfirmed, RoutingKey: RoutingKeyPaymentsConfirmed},
	}
}
