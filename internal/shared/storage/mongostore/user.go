package mongostore

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"mutualfund-api/internal/shared/model"
	"mutualfund-api/internal/shared/storage"
)

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	user.Email = normalizeEmail(user.Email)
	return s.users.insert(ctx, user)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.users.one(ctx, byID(id))
}

// GetUserByEmail 邮箱在写入时已规范化为小写
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.users.one(ctx, bson.D{{Key: "email", Value: normalizeEmail(email)}})
}

func (s *Store) GetUserByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	return s.userByToken(ctx, "email_verification_token", token)
}

func (s *Store) GetUserByResetToken(ctx context.Context, token string) (*model.User, error) {
	return s.userByToken(ctx, "password_reset_token", token)
}

func (s *Store) ConsumeVerificationToken(ctx context.Context, token string) error {
	if token == "" {
		return storage.ErrNotFound
	}
	return s.users.update(ctx,
		bson.D{{Key: "email_verification_token", Value: token}, {Key: "is_email_verified", Value: false}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "is_email_verified", Value: true}, {Key: "updated_at", Value: time.Now().UTC()}}},
			{Key: "$unset", Value: bson.D{{Key: "email_verification_token", Value: ""}, {Key: "email_verification_expiry", Value: ""}}},
		})
}

func (s *Store) ConsumeResetToken(ctx context.Context, token, passwordHash string) error {
	if token == "" {
		return storage.ErrNotFound
	}
	return s.users.update(ctx,
		bson.D{{Key: "password_reset_token", Value: token}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "password_hash", Value: passwordHash}, {Key: "updated_at", Value: time.Now().UTC()}}},
			{Key: "$unset", Value: bson.D{{Key: "password_reset_token", Value: ""}, {Key: "password_reset_expiry", Value: ""}}},
		})
}

func (s *Store) SetVerificationToken(ctx context.Context, userID, token string, expiry time.Time) error {
	return s.users.update(ctx,
		bson.D{{Key: "_id", Value: userID}, {Key: "is_email_verified", Value: false}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "email_verification_token", Value: token},
			{Key: "email_verification_expiry", Value: expiry.UTC()},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}})
}

func (s *Store) SetResetToken(ctx context.Context, userID, token string, expiry time.Time) error {
	return s.users.update(ctx, byID(userID),
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "password_reset_token", Value: token},
			{Key: "password_reset_expiry", Value: expiry.UTC()},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}})
}

// userByToken 空令牌永远查不到，避免匹配到没有该字段的文档
func (s *Store) userByToken(ctx context.Context, field, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	return s.users.one(ctx, bson.D{{Key: field, Value: token}})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
