package storage

import (
	"context"
	"time"

	"mutualfund-api/internal/shared/model"
)

// UserStore 凭据存储
//
// 查询不到时返回 (nil, nil)。邮箱唯一性由存储层保证，
// 重复插入返回 ErrDuplicate，这是并发注册的唯一串行化点。
//
// 更新操作只写各自负责的字段，不回写调用方先前读到的整条记录。
// Consume* 以令牌本身作为更新条件，同一令牌的并发消费只有一个成功，
// 条件不满足时返回 ErrNotFound。
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (*model.User, error)
	GetUserByResetToken(ctx context.Context, token string) (*model.User, error)
	// ConsumeVerificationToken 标记邮箱已验证并清除验证令牌，仅对未验证用户生效
	ConsumeVerificationToken(ctx context.Context, token string) error
	// ConsumeResetToken 替换密码哈希并清除重置令牌
	ConsumeResetToken(ctx context.Context, token, passwordHash string) error
	// SetVerificationToken 覆盖验证令牌，已验证用户返回 ErrNotFound
	SetVerificationToken(ctx context.Context, userID, token string, expiry time.Time) error
	// SetResetToken 覆盖重置令牌，不触碰密码哈希
	SetResetToken(ctx context.Context, userID, token string, expiry time.Time) error
}

// SavedFundStore 收藏基金存储，所有操作按 userID 隔离
type SavedFundStore interface {
	CreateSavedFund(ctx context.Context, fund *model.SavedFund) error
	ListSavedFunds(ctx context.Context, userID string) ([]*model.SavedFund, error)
	GetSavedFund(ctx context.Context, userID, id string) (*model.SavedFund, error)
	DeleteSavedFund(ctx context.Context, userID, id string) error
}

// PersistentStore 持久化存储聚合接口
type PersistentStore interface {
	UserStore
	SavedFundStore
	Close() error
}
