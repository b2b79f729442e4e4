package auth

import (
	"encoding/json"
	"net/http"

	"mutualfund-api/internal/shared/model"
)

// RouteLimits 登录/注册路由的限流中间件，nil 表示不限流
type RouteLimits struct {
	Login    func(http.Handler) http.Handler
	Register func(http.Handler) http.Handler
}

// Handler 认证 HTTP 处理器
type Handler struct {
	svc          *Service
	secureCookie bool
}

// NewHandler 创建认证处理器，secureCookie 在生产环境为 true
func NewHandler(svc *Service, secureCookie bool) *Handler {
	return &Handler{svc: svc, secureCookie: secureCookie}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux, limits RouteLimits) {
	authed := Middleware(h.svc)

	mux.Handle("POST /api/auth/register", limit(limits.Register, http.HandlerFunc(h.Register)))
	mux.Handle("POST /api/auth/login", limit(limits.Login, http.HandlerFunc(h.Login)))
	mux.Handle("POST /api/auth/resend-verification", limit(limits.Register, http.HandlerFunc(h.ResendVerification)))
	mux.HandleFunc("GET /api/auth/verify-email/{token}", h.VerifyEmail)
	mux.HandleFunc("POST /api/auth/request-password-reset", h.RequestPasswordReset)
	mux.HandleFunc("POST /api/auth/reset-password", h.ResetPassword)
	mux.Handle("GET /api/auth/me", authed(http.HandlerFunc(h.Me)))
	mux.Handle("POST /api/auth/logout", authed(http.HandlerFunc(h.Logout)))
}

func limit(mw func(http.Handler) http.Handler, next http.Handler) http.Handler {
	if mw == nil {
		return next
	}
	return mw(next)
}

// ============================================================================
// 响应类型
// ============================================================================

type response struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	User    *model.PublicUser `json:"user,omitempty"`
	Token   string            `json:"token,omitempty"`
}

func success(res *Result) response {
	return response{Status: "success", Message: res.Message, User: res.User, Token: res.Token}
}

// ============================================================================
// Handlers
// ============================================================================

// Register 用户注册
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Register(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, success(res))
}

// VerifyEmail 邮箱验证
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.VerifyEmail(r.Context(), r.PathValue("token"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, success(res))
}

// Login 用户登录
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginInput
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, success(res))
}

// RequestPasswordReset 申请重置密码
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req EmailInput
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.RequestPasswordReset(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, success(res))
}

// ResetPassword 重置密码
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordInput
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ResetPassword(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, success(res))
}

// ResendVerification 重新发送确认邮件
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailInput
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ResendVerification(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, success(res))
}

// Me 当前用户信息
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := GetAuthUser(r.Context())
	if user == nil {
		WriteError(w, newError(KindUnauthorized, "Authentication invalid. No token provided."))
		return
	}
	writeJSON(w, http.StatusOK, response{Status: "success", User: user})
}

// Logout 清除 token cookie，服务端不吊销会话令牌
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, success(h.svc.Logout(r.Context())))
}

// ============================================================================
// 工具函数
// ============================================================================

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, newError(KindInvalidInput, "Invalid request body."))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError 按错误类别输出 {"status":"error","message":...}
func WriteError(w http.ResponseWriter, err error) {
	writeJSON(w, HTTPStatus(KindOf(err)), map[string]string{
		"status":  "error",
		"message": PublicMessage(err),
	})
}
