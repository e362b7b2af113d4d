package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rl1809/storefront/internal/core/domain"
)

const userColumns = `user_id, name, email, phone, password_hash, role, created_at`

func scanUser(s rowScanner) (*domain.User, error) {
	var (
		u     domain.User
		phone sql.NullString
	)
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &phone, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Phone = phone.String
	return &u, nil
}

func (m *MySQLAdapter) GetUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	u, err := scanUser(m.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("user not found")
	}
	if err != nil {
		return nil, classify("query user", err)
	}
	return u, nil
}

func (m *MySQLAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(m.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, domain.NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("user not found")
	}
	if err != nil {
		return nil, classify("query user", err)
	}
	return u, nil
}

func (m *MySQLAdapter) CreateUser(ctx context.Context, u *domain.User) error {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO users (name, email, phone, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Name, u.Email, sql.NullString{String: u.Phone, Valid: u.Phone != ""},
		u.PasswordHash, u.Role, u.CreatedAt,
	)
	if err != nil {
		if domain.KindOf(classify("insert user", err)) == domain.KindAlreadyExists {
			return domain.NewError(domain.KindAlreadyExists, "email is already registered")
		}
		return classify("insert user", err)
	}
	u.ID, err = result.LastInsertId()
	return classify("user id", err)
}

func (m *MySQLAdapter) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ? WHERE user_id = ?`, passwordHash, userID)
	if err != nil {
		return classify("update password", err)
	}
	return requireRow(result, "update password", domain.NotFound("user not found"))
}
