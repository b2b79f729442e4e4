// Package server 路由配置与核心基础设施
//
// 本文件组装 HTTP 路由，将请求分发到各领域包：
//   - auth: 注册、邮箱验证、登录、密码重置、当前用户
//   - savedfund: 收藏基金（需认证）
//
// 本包自身提供的模块：
//   - middleware.go: 请求 ID、请求日志、CORS、安全响应头
//   - metrics.go: Prometheus 指标
package server

import (
	"encoding/json"
	"net/http"

	"mutualfund-api/api"
	"mutualfund-api/internal/apiserver/auth"
	"mutualfund-api/internal/apiserver/savedfund"
	"mutualfund-api/internal/shared/storage"
	"mutualfund-api/pkg/logging"
)

// Options 路由选项
type Options struct {
	ClientURL    string           // CORS 允许的前端源
	SecureCookie bool             // 生产环境 cookie 带 Secure
	Limits       auth.RouteLimits // 登录/注册限流
	Logger       *logging.Logger
}

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 路由请求到对应的领域处理器
//   - 挂载日志、指标、CORS 中间件
type Handler struct {
	authSvc *auth.Service
	funds   storage.SavedFundStore
	metrics *Metrics
	opts    Options
}

// NewHandler 创建 Handler 实例
func NewHandler(authSvc *auth.Service, funds storage.SavedFundStore, metrics *Metrics, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Default("apiserver")
	}
	return &Handler{authSvc: authSvc, funds: funds, metrics: metrics, opts: opts}
}

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 系统:
//   - GET /                  - 欢迎信息
//   - GET /health            - 服务健康检查
//   - GET /metrics           - Prometheus 指标
//   - GET /api/openapi.yaml  - OpenAPI 文档
//   - GET /api/openapi.json  - OpenAPI 文档（JSON）
//
// 认证 (Auth):
//   - POST /api/auth/register                - 注册（限流）
//   - POST /api/auth/login                   - 登录（限流）
//   - POST /api/auth/resend-verification     - 重发确认邮件（限流）
//   - GET  /api/auth/verify-email/{token}    - 邮箱验证
//   - POST /api/auth/request-password-reset  - 申请重置密码
//   - POST /api/auth/reset-password          - 重置密码
//   - GET  /api/auth/me                      - 当前用户
//   - POST /api/auth/logout                  - 退出登录
//
// 收藏基金 (Saved funds):
//   - GET    /api/saved-funds       - 列出收藏
//   - POST   /api/saved-funds/save  - 收藏基金
//   - GET    /api/saved-funds/{id}  - 收藏详情
//   - DELETE /api/saved-funds/{id}  - 取消收藏
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Welcome)
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", h.metrics.Handler())
	mux.HandleFunc("GET /api/openapi.yaml", h.OpenAPIYAML)
	mux.HandleFunc("GET /api/openapi.json", h.OpenAPIJSON)

	auth.NewHandler(h.authSvc, h.opts.SecureCookie).RegisterRoutes(mux, h.opts.Limits)
	savedfund.NewHandler(h.funds, h.opts.Logger).RegisterRoutes(mux, h.authSvc)

	var handler http.Handler = mux
	handler = h.metrics.MetricsMiddleware(handler)
	handler = securityHeaders(handler)
	handler = corsMiddleware(h.opts.ClientURL)(handler)
	handler = requestLogger(h.opts.Logger)(handler)
	handler = requestID(handler)
	return handler
}

// Welcome 根路径
func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Welcome to Mutual funds Backend"))
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 用于负载均衡器和监控系统检查服务状态。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// OpenAPIYAML 返回内嵌的 OpenAPI 原文
func (h *Handler) OpenAPIYAML(w http.ResponseWriter, r *http.Request) {
	data, err := api.RawSpec()
	if err != nil {
		auth.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

// OpenAPIJSON 返回解析校验后的 OpenAPI 文档
func (h *Handler) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := api.LoadSpec(r.Context())
	if err != nil {
		h.opts.Logger.WithContext(r.Context()).WithError(err).Error("load openapi spec")
		auth.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
