// Package repository реализует хранилище данных на основе PostgreSQL
// для учёта пользователей бота, их подписок и VPN-профилей, а также
// статических профилей. Все мутации отдельного пользователя проходят
// через UpdateUser — транзакцию read-modify-write с блокировкой строки.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrUserNotFound возвращается, когда операция адресует telegram_id,
// для которого нет записи.
var ErrUserNotFound = errors.New("user not found")

// ErrStaticProfileExists возвращается при попытке создать статический
// профиль с занятым именем.
var ErrStaticProfileExists = errors.New("static profile already exists")

// Storage инкапсулирует соединение с базой данных PostgreSQL
// и реализует методы работы с пользователями и статическими профилями.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL и проверяет его доступность.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady проверяет готовность базы данных.
func (s *Storage) CheckDatabaseReady(ctx context.Context) error {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'users'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table users missing or query error: %w", err)
	}
	return nil
}
