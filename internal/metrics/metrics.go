// Package metrics регистрирует счётчики Prometheus для фоновых задач бота.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckTicks считает завершённые циклы проверки подписок.
	CheckTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpnbot_subscription_check_ticks_total",
		Help: "Completed subscription check cycles.",
	})

	// NotificationsSent считает отправленные уведомления по виду порога.
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpnbot_notifications_sent_total",
		Help: "Threshold notifications sent to users.",
	}, []string{"kind"})

	// NotificationFailures считает неудачные доставки уведомлений.
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpnbot_notification_failures_total",
		Help: "Failed notification deliveries.",
	})

	// ProfilesRevoked считает деактивированные VPN-профили.
	ProfilesRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpnbot_profiles_revoked_total",
		Help: "VPN profiles revoked after subscription expiry.",
	})

	// FlagsReset считает записи со сброшенными флагами уведомлений.
	FlagsReset = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpnbot_notification_flags_reset_total",
		Help: "Records whose dedup flags were reset by the sweeper.",
	})

	// UsersCleaned считает удалённые sweeper-ом устаревшие записи.
	UsersCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpnbot_users_cleaned_total",
		Help: "Stale user records hard-deleted by the daily cleanup.",
	})

	// PaymentsProcessed считает обработанные платежные события.
	PaymentsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpnbot_payments_processed_total",
		Help: "Confirmed payment events applied to subscriptions.",
	})
)
