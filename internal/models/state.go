package models

import "time"

// SubscriptionState описывает состояние подписки пользователя,
// вычисленное из даты окончания на момент проверки.
type SubscriptionState int

const (
	// StateInactive — дата окончания не установлена или нет профиля.
	StateInactive SubscriptionState = iota
	// StateActive — до окончания больше 24 часов.
	StateActive
	// StateExpiring24h — до окончания осталось не более 24 часов.
	StateExpiring24h
	// StateExpiring2h — до окончания осталось не более 2 часов.
	StateExpiring2h
	// StateExpired — дата окончания уже прошла.
	StateExpired
)

// Пороговые окна уведомлений.
const (
	Window24h = 24 * time.Hour
	Window2h  = 2 * time.Hour
)

func (s SubscriptionState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpiring24h:
		return "expiring_24h"
	case StateExpiring2h:
		return "expiring_2h"
	case StateExpired:
		return "expired"
	default:
		return "inactive"
	}
}

// ClassifySubscription возвращает состояние подписки пользователя
// на момент now. Пороговые окна включают обе границы; отрицательный
// остаток времени означает только истечение, не окно уведомления.
func ClassifySubscription(u *User, now time.Time) SubscriptionState {
	if u.SubscriptionEnd == nil || !u.HasProfile() {
		return StateInactive
	}
	end := *u.SubscriptionEnd
	if !end.After(now) {
		return StateExpired
	}
	left := end.Sub(now)
	switch {
	case left <= Window2h:
		return StateExpiring2h
	case left <= Window24h:
		return StateExpiring24h
	default:
		return StateActive
	}
}
