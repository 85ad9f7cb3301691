package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

const userColumns = `telegram_id, full_name, username, registration_date,
		subscription_end, vless_profile_data, is_admin, notified_24h, notified_2h,
		total_upload, total_download, last_activity`

func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	var u models.User
	var username, profileData sql.NullString
	var subscriptionEnd sql.NullTime
	if err := row.Scan(&u.TelegramID, &u.FullName, &username, &u.RegistrationDate,
		&subscriptionEnd, &profileData, &u.IsAdmin, &u.Notified24h, &u.Notified2h,
		&u.TotalUpload, &u.TotalDownload, &u.LastActivity); err != nil {
		return nil, err
	}
	u.Username = username.String
	u.VlessProfileData = profileData.String
	if subscriptionEnd.Valid {
		end := subscriptionEnd.Time.UTC()
		u.SubscriptionEnd = &end
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// GetUser возвращает пользователя по его telegram_id.
func (s *Storage) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE telegram_id = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, telegramID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// ListUsers возвращает всех пользователей. Пагинация не используется:
// сканер оценивает каждую запись независимо, а количество пользователей
// измеряется тысячами.
func (s *Storage) ListUsers(ctx context.Context) ([]*models.User, error) {
	const op = "storage.ListUsers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListAdmins возвращает всех администраторов.
func (s *Storage) ListAdmins(ctx context.Context) ([]*models.User, error) {
	const op = "storage.ListAdmins"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE is_admin = TRUE`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateUser вставляет нового пользователя. Повторная вставка того же
// telegram_id не является ошибкой.
func (s *Storage) CreateUser(ctx context.Context, user models.User) error {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (telegram_id, full_name, username, registration_date,
				  subscription_end, vless_profile_data, is_admin, notified_24h, notified_2h,
				  total_upload, total_download, last_activity)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			  ON CONFLICT (telegram_id) DO NOTHING`
	_, err := s.DB.ExecContext(ctx, query,
		user.TelegramID, user.FullName, nullString(user.Username), user.RegistrationDate,
		nullTime(user.SubscriptionEnd), nullString(user.VlessProfileData), user.IsAdmin,
		user.Notified24h, user.Notified2h, user.TotalUpload, user.TotalDownload, user.LastActivity)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateUser выполняет атомарный read-modify-write для одного пользователя:
// строка блокируется через SELECT ... FOR UPDATE, mutate изменяет запись,
// результат фиксируется одной транзакцией. Возвращает обновлённую запись.
func (s *Storage) UpdateUser(ctx context.Context, telegramID int64, mutate func(*models.User)) (*models.User, error) {
	const op = "storage.UpdateUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE telegram_id = $1
			  FOR UPDATE`
	u, err := scanUser(tx.QueryRowContext(ctx, query, telegramID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	mutate(u)

	update := `UPDATE users
			   SET full_name = $1, username = $2, subscription_end = $3,
				   vless_profile_data = $4, is_admin = $5, notified_24h = $6,
				   notified_2h = $7, total_upload = $8, total_download = $9,
				   last_activity = $10
			   WHERE telegram_id = $11`
	if _, err = tx.ExecContext(ctx, update,
		u.FullName, nullString(u.Username), nullTime(u.SubscriptionEnd),
		nullString(u.VlessProfileData), u.IsAdmin, u.Notified24h, u.Notified2h,
		u.TotalUpload, u.TotalDownload, u.LastActivity, telegramID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// DeleteUser удаляет пользователя и возвращает количество удалённых строк.
func (s *Storage) DeleteUser(ctx context.Context, telegramID int64) (int, error) {
	const op = "storage.DeleteUser"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// ResetNotificationFlags сбрасывает флаги уведомлений у пользователей,
// чья подписка продлена дальше окна в 24 часа от now. Выполняется одним
// запросом, возвращает количество затронутых записей.
func (s *Storage) ResetNotificationFlags(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.ResetNotificationFlags"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET notified_24h = FALSE, notified_2h = FALSE
			  WHERE subscription_end > $1
				AND (notified_24h = TRUE OR notified_2h = TRUE)`
	result, err := s.DB.ExecContext(ctx, query, now.Add(24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// CleanupExpiredUsers безвозвратно удаляет неадминские записи, у которых
// подписка закончилась раньше before и нет VPN-профиля.
func (s *Storage) CleanupExpiredUsers(ctx context.Context, before time.Time) (int, error) {
	const op = "storage.CleanupExpiredUsers"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM users
			  WHERE subscription_end < $1
				AND vless_profile_data IS NULL
				AND is_admin = FALSE`
	result, err := s.DB.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// ClearAdminFlags снимает признак администратора со всех записей.
// Используется синхронизацией списка админов при старте процесса.
func (s *Storage) ClearAdminFlags(ctx context.Context) error {
	const op = "storage.ClearAdminFlags"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if _, err := s.DB.ExecContext(ctx, `UPDATE users SET is_admin = FALSE WHERE is_admin = TRUE`); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateUserTraffic обновляет счётчики трафика и время последней активности.
func (s *Storage) UpdateUserTraffic(ctx context.Context, telegramID int64, upload, download int64, seenAt time.Time) error {
	const op = "storage.UpdateUserTraffic"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET total_upload = $1, total_download = $2, last_activity = $3
			  WHERE telegram_id = $4`
	if _, err := s.DB.ExecContext(ctx, query, upload, download, seenAt, telegramID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
