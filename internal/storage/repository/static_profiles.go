package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

// CreateStaticProfile вставляет новый статический профиль и возвращает его ID.
// Возвращает ErrStaticProfileExists, если имя уже занято.
func (s *Storage) CreateStaticProfile(ctx context.Context, name, vlessURL string) (int, error) {
	const op = "storage.CreateStaticProfile"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO static_profiles (name, vless_url)
			  VALUES ($1, $2)
			  ON CONFLICT (name) DO NOTHING
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query, name, vlessURL).Scan(&newID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", op, ErrStaticProfileExists)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ListStaticProfiles возвращает все статические профили, новые первыми.
func (s *Storage) ListStaticProfiles(ctx context.Context) ([]*models.StaticProfile, error) {
	const op = "storage.ListStaticProfiles"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, name, vless_url, created_at
			  FROM static_profiles
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.StaticProfile
	for rows.Next() {
		var p models.StaticProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.VlessURL, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteStaticProfile удаляет статический профиль по ID и возвращает
// количество удалённых строк.
func (s *Storage) DeleteStaticProfile(ctx context.Context, id int) (int, error) {
	const op = "storage.DeleteStaticProfile"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM static_profiles WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
