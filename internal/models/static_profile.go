package models

import "time"

// StaticProfile представляет именованный VLESS-профиль, который
// администратор создаёт вручную. Не связан с жизненным циклом подписок.
type StaticProfile struct {
	ID        int       // Идентификатор записи
	Name      string    // Уникальное имя профиля
	VlessURL  string    // Ссылка для подключения
	CreatedAt time.Time // Дата создания
}
