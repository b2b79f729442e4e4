package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"mutualfund-api/internal/shared/model"
	"mutualfund-api/internal/shared/storage"
)

const userColumns = `id, name, email, password_hash, profile_pic, is_email_verified,
	email_verification_token, email_verification_expiry,
	password_reset_token, password_reset_expiry, created_at, updated_at`

// CreateUser 创建用户，邮箱重复返回 storage.ErrDuplicate
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	user.Email = normalizeEmail(user.Email)
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`),
		user.ID, user.Name, user.Email, user.PasswordHash, user.ProfilePic, user.IsEmailVerified,
		nullString(user.EmailVerificationToken), nullTime(user.EmailVerificationExpiry),
		nullString(user.PasswordResetToken), nullTime(user.PasswordResetExpiry),
		user.CreatedAt.UTC(), user.UpdatedAt.UTC(),
	)
	return s.wrapError(err)
}

// GetUserByID 通过 ID 查找用户
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, "id", id)
}

// GetUserByEmail 通过邮箱查找用户（大小写不敏感）
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, "email", normalizeEmail(email))
}

// GetUserByVerificationToken 通过邮箱验证令牌查找用户
func (s *Store) GetUserByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	return s.getUser(ctx, "email_verification_token", token)
}

// GetUserByResetToken 通过密码重置令牌查找用户
func (s *Store) GetUserByResetToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	return s.getUser(ctx, "password_reset_token", token)
}

func (s *Store) ConsumeVerificationToken(ctx context.Context, token string) error {
	if token == "" {
		return storage.ErrNotFound
	}
	return s.updateUser(ctx,
		`UPDATE users SET is_email_verified = $1, email_verification_token = NULL,
		 email_verification_expiry = NULL, updated_at = $2
		 WHERE email_verification_token = $3 AND is_email_verified = $4`,
		true, time.Now().UTC(), token, false)
}

func (s *Store) ConsumeResetToken(ctx context.Context, token, passwordHash string) error {
	if token == "" {
		return storage.ErrNotFound
	}
	return s.updateUser(ctx,
		`UPDATE users SET password_hash = $1, password_reset_token = NULL,
		 password_reset_expiry = NULL, updated_at = $2
		 WHERE password_reset_token = $3`,
		passwordHash, time.Now().UTC(), token)
}

func (s *Store) SetVerificationToken(ctx context.Context, userID, token string, expiry time.Time) error {
	return s.updateUser(ctx,
		`UPDATE users SET email_verification_token = $1, email_verification_expiry = $2, updated_at = $3
		 WHERE id = $4 AND is_email_verified = $5`,
		token, expiry.UTC(), time.Now().UTC(), userID, false)
}

func (s *Store) SetResetToken(ctx context.Context, userID, token string, expiry time.Time) error {
	return s.updateUser(ctx,
		`UPDATE users SET password_reset_token = $1, password_reset_expiry = $2, updated_at = $3
		 WHERE id = $4`,
		token, expiry.UTC(), time.Now().UTC(), userID)
}

// updateUser 执行单条 UPDATE，未命中任何行返回 storage.ErrNotFound
func (s *Store) updateUser(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return s.wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// getUser 按单列等值查询，column 只来自本文件内的常量
func (s *Store) getUser(ctx context.Context, column, value string) (*model.User, error) {
	var (
		u                    model.User
		verifyToken, resetTk sql.NullString
		verifyExp, resetExp  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`), value,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.ProfilePic, &u.IsEmailVerified,
		&verifyToken, &verifyExp, &resetTk, &resetExp, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.EmailVerificationToken = verifyToken.String
	u.EmailVerificationExpiry = timePtr(verifyExp)
	u.PasswordResetToken = resetTk.String
	u.PasswordResetExpiry = timePtr(resetExp)
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
