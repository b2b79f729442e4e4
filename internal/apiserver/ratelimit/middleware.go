package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mutualfund-api/internal/apiserver/auth"
	"mutualfund-api/pkg/logging"
)

// Observer 限流拒绝事件
type Observer interface {
	RateLimited(policy string)
}

type noopObserver struct{}

func (noopObserver) RateLimited(string) {}

// Limiter 单一策略的限流中间件
type Limiter struct {
	store    Store
	policy   Policy
	mode     FailureMode
	now      func() time.Time
	logger   *logging.Logger
	observer Observer
	keyFunc  func(r *http.Request) string
}

// Option 限流器选项
type Option func(*Limiter)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithFailureMode 存储故障时放行或拒绝
func WithFailureMode(mode FailureMode) Option {
	return func(l *Limiter) { l.mode = mode }
}

// WithLogger 设置日志器
func WithLogger(logger *logging.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithObserver 设置拒绝事件观察者
func WithObserver(o Observer) Option {
	return func(l *Limiter) { l.observer = o }
}

// WithTrustProxy 使用 X-Forwarded-For 首个地址作为客户端 IP
func WithTrustProxy() Option {
	return func(l *Limiter) { l.keyFunc = forwardedIP }
}

// New 创建限流器
func New(store Store, policy Policy, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		policy:   policy,
		mode:     FailOpen,
		now:      time.Now,
		logger:   logging.Default("ratelimit"),
		observer: noopObserver{},
		keyFunc:  clientIP,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Middleware 超限返回 429，每个响应都带 RateLimit-* 头
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := l.now()
		key := l.policy.Name + ":" + l.keyFunc(r)

		count, resetAt, err := l.store.Hit(r.Context(), key, l.policy.Window, now)
		if err != nil {
			if l.mode == FailClosed {
				l.logger.WithContext(r.Context()).WithError(err).Error("rate limiter backend unavailable, rejecting request",
					"policy", l.policy.Name, "mode", string(l.mode))
				l.reject(w, now.Add(l.policy.Window), now)
				return
			}
			l.logger.WithContext(r.Context()).WithError(err).Warn("rate limiter backend unavailable, allowing request",
				"policy", l.policy.Name, "mode", string(l.mode))
			next.ServeHTTP(w, r)
			return
		}

		d := decide(l.policy, count, resetAt)
		setHeaders(w, d, now)
		if !d.Allowed {
			l.reject(w, d.ResetAt, now)
			return
		}
		if !l.policy.SkipSuccessful {
			next.ServeHTTP(w, r)
			return
		}

		// 撤销发生在响应头写出之前，RateLimit-Remaining 反映撤销后的计数
		rec := &statusRecorder{ResponseWriter: w, settle: func(status int) {
			if status >= http.StatusBadRequest {
				return
			}
			if err := l.store.Undo(r.Context(), key, now); err != nil {
				l.logger.WithContext(r.Context()).WithError(err).Warn("rate limiter failed to undo successful request",
					"policy", l.policy.Name)
				return
			}
			d.Remaining = min(d.Remaining+1, d.Limit)
			setHeaders(w, d, now)
		}}
		next.ServeHTTP(rec, r)
		if !rec.wroteHeader {
			rec.settle(http.StatusOK)
		}
	})
}

// statusRecorder 在下游首次写出状态码时回调 settle
type statusRecorder struct {
	http.ResponseWriter
	settle      func(status int)
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.wroteHeader = true
		r.settle(code)
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func (l *Limiter) reject(w http.ResponseWriter, resetAt, now time.Time) {
	l.observer.RateLimited(l.policy.Name)
	w.Header().Set("Retry-After", seconds(resetAt.Sub(now)))
	auth.WriteError(w, &auth.Error{Kind: auth.KindRateLimited, Message: l.policy.Message})
}

func setHeaders(w http.ResponseWriter, d Decision, now time.Time) {
	h := w.Header()
	h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("RateLimit-Reset", seconds(d.RetryAfter(now)))
}

// seconds 向上取整到秒，至少为 1
func seconds(d time.Duration) string {
	s := int64((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return strconv.FormatInt(s, 10)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func forwardedIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return clientIP(r)
}
