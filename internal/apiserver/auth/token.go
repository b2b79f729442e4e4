package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// opaqueTokenBytes 验证/重置令牌的随机字节数
const opaqueTokenBytes = 32

var (
	ErrTokenNotFound  = errors.New("token not found")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
)

// tokenReason 令牌拒绝原因（写日志用）
func tokenReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	default:
		return "not_found"
	}
}

// NewOpaqueToken 生成 32 字节随机数的十六进制字符串
func NewOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validOpaqueToken 检查令牌格式（不查库）
func validOpaqueToken(token string) bool {
	if len(token) != opaqueTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

// checkExpiry 过期时间缺失或已过视为过期
func checkExpiry(expiry *time.Time, now time.Time) error {
	if expiry == nil || !now.Before(*expiry) {
		return ErrTokenExpired
	}
	return nil
}

// ============================================================================
// Session Token (JWT)
// ============================================================================

// Claims 会话令牌声明
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// TokenIssuer 签发与校验会话令牌
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer 创建会话令牌签发器
func NewTokenIssuer(secret string, ttl time.Duration, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: now}
}

// TTL 会话有效期
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// IssueSession 为用户签发 HS256 会话令牌
func (t *TokenIssuer) IssueSession(userID string) (string, error) {
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		UserID: userID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ParseSession 校验签名和过期时间
// 过期返回 ErrTokenExpired，其余失败返回 ErrTokenMalformed
func (t *TokenIssuer) ParseSession(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
