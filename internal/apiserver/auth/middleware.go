package auth

import (
	"context"
	"net/http"
	"strings"

	"mutualfund-api/internal/shared/model"
	"mutualfund-api/pkg/logging"
)

// contextKey context 键类型
type contextKey string

const ctxKeyAuthUser contextKey = "auth_user"

// Authenticator 会话令牌校验，返回不含凭据字段的公开视图
type Authenticator interface {
	Authenticate(ctx context.Context, sessionToken string) (*model.PublicUser, error)
}

// WithAuthUser 将认证用户注入 context
func WithAuthUser(ctx context.Context, user *model.PublicUser) context.Context {
	ctx = logging.ContextWithUserID(ctx, user.ID)
	return context.WithValue(ctx, ctxKeyAuthUser, user)
}

// GetAuthUser 从 context 获取认证用户
func GetAuthUser(ctx context.Context) *model.PublicUser {
	user, _ := ctx.Value(ctxKeyAuthUser).(*model.PublicUser)
	return user
}

// bearerToken 提取 "Bearer <token>"，格式不对返回空串
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// Middleware 会话令牌认证中间件
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteError(w, newError(KindUnauthorized, "Authentication invalid. No token provided."))
				return
			}
			user, err := a.Authenticate(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), user)))
		})
	}
}
