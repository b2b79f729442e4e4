package model

import "time"

// DefaultProfilePic 未设置头像时的默认地址
const DefaultProfilePic = "https://res.cloudinary.com/dz1x5qj3h/image/upload/v1698851234/default_profile_pic.png"

// User 注册用户（凭据记录）
//
// 验证令牌和重置令牌仅在流程进行中存在，消费后两个字段同时清空。
type User struct {
	ID              string `json:"id" bson:"_id" db:"id"`
	Name            string `json:"name" bson:"name" db:"name"`
	Email           string `json:"email" bson:"email" db:"email"` // 小写规范化，唯一
	PasswordHash    string `json:"-" bson:"password_hash" db:"password_hash"` // never expose in JSON
	ProfilePic      string `json:"profilePic" bson:"profile_pic" db:"profile_pic"`
	IsEmailVerified bool   `json:"isEmailVerified" bson:"is_email_verified" db:"is_email_verified"`

	EmailVerificationToken  string     `json:"-" bson:"email_verification_token,omitempty" db:"email_verification_token"`
	EmailVerificationExpiry *time.Time `json:"-" bson:"email_verification_expiry,omitempty" db:"email_verification_expiry"`
	PasswordResetToken      string     `json:"-" bson:"password_reset_token,omitempty" db:"password_reset_token"`
	PasswordResetExpiry     *time.Time `json:"-" bson:"password_reset_expiry,omitempty" db:"password_reset_expiry"`

	CreatedAt time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at" db:"updated_at"`
}

// PublicUser 对外暴露的用户视图，不含密码哈希和任何令牌字段
type PublicUser struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	ProfilePic      string `json:"profilePic"`
	IsEmailVerified bool   `json:"isEmailVerified"`
}

// Public 返回用户的公开视图
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	pic := u.ProfilePic
	if pic == "" {
		pic = DefaultProfilePic
	}
	return &PublicUser{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		ProfilePic:      pic,
		IsEmailVerified: u.IsEmailVerified,
	}
}

// SetVerificationToken 设置待验证令牌
func (u *User) SetVerificationToken(token string, expiry time.Time) {
	u.EmailVerificationToken = token
	u.EmailVerificationExpiry = &expiry
}

// ClearVerificationToken 清空验证令牌（令牌单次有效）
func (u *User) ClearVerificationToken() {
	u.EmailVerificationToken = ""
	u.EmailVerificationExpiry = nil
}

// SetResetToken 设置密码重置令牌，覆盖之前未使用的令牌
func (u *User) SetResetToken(token string, expiry time.Time) {
	u.PasswordResetToken = token
	u.PasswordResetExpiry = &expiry
}

// ClearResetToken 清空密码重置令牌
func (u *User) ClearResetToken() {
	u.PasswordResetToken = ""
	u.PasswordResetExpiry = nil
}
