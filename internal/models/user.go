// Package models содержит доменные структуры бота: пользователя с данными
// подписки и VPN-профиля, а также вспомогательные типы для классификации
// состояния подписки.
package models

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrMalformedProfile возвращается, когда сериализованные данные
// VPN-профиля не удаётся разобрать.
var ErrMalformedProfile = errors.New("malformed vless profile data")

// User представляет пользователя бота и состояние его подписки.
// SubscriptionEnd может быть nil — это означает, что подписка никогда
// не была активна. VlessProfileData хранит сериализованный JSON-профиль,
// пустая строка означает отсутствие активного VPN-профиля.
type User struct {
	TelegramID       int64      // Уникальный идентификатор Telegram
	FullName         string     // Отображаемое имя
	Username         string     // Telegram username, может быть пустым
	RegistrationDate time.Time  // Дата первой регистрации
	SubscriptionEnd  *time.Time // Дата окончания подписки (UTC)
	VlessProfileData string     // Сериализованный VPN-профиль, "" — профиля нет
	IsAdmin          bool       // Признак администратора
	Notified24h      bool       // Уведомление за 24 часа уже отправлено
	Notified2h       bool       // Уведомление за 2 часа уже отправлено
	TotalUpload      int64      // Исходящий трафик, байты
	TotalDownload    int64      // Входящий трафик, байты
	LastActivity     time.Time  // Последняя активность пользователя
}

// VlessProfile описывает разобранные данные VPN-профиля.
// Email используется как уникальное имя клиента на панели XUI.
type VlessProfile struct {
	Email string `json:"email"`
	UUID  string `json:"uuid,omitempty"`
	URL   string `json:"url,omitempty"`
}

// ParseProfile разбирает сериализованный VPN-профиль пользователя.
// Возвращает ErrMalformedProfile, если блоб не является корректным JSON
// или в нём отсутствует email.
func (u *User) ParseProfile() (*VlessProfile, error) {
	if u.VlessProfileData == "" {
		return nil, nil
	}
	var p VlessProfile
	if err := json.Unmarshal([]byte(u.VlessProfileData), &p); err != nil {
		return nil, ErrMalformedProfile
	}
	if p.Email == "" {
		return nil, ErrMalformedProfile
	}
	return &p, nil
}

// Marshal сериализует профиль в JSON для хранения в поле VlessProfileData.
func (p *VlessProfile) Marshal() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HasProfile сообщает, есть ли у пользователя активный VPN-профиль.
func (u *User) HasProfile() bool {
	return u.VlessProfileData != ""
}
