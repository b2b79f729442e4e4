// Package logging 基于 slog 的结构化日志，每条记录带 component 字段
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	UserIDKey    ContextKey = "user_id"
)

type Logger struct {
	*slog.Logger
}

// Config 日志配置，Level 和 Format 通常来自 LOG_LEVEL / LOG_FORMAT
type Config struct {
	Level     string    `json:"level"`
	Format    string    `json:"format"` // json | text
	Output    string    `json:"output"` // stdout | stderr | 文件路径
	Writer    io.Writer `json:"-"`      // 非空时忽略 Output
	Component string    `json:"component"`
}

func New(cfg Config) *Logger {
	// 无法识别的级别按 info 处理
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(openOutput(cfg), opts)
	} else {
		handler = slog.NewTextHandler(openOutput(cfg), opts)
	}
	return &Logger{Logger: slog.New(handler).With(slog.String("component", cfg.Component))}
}

func openOutput(cfg Config) io.Writer {
	if cfg.Writer != nil {
		return cfg.Writer
	}
	switch cfg.Output {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stdout
	}
	return f
}

// Default 按环境变量创建，输出到 stdout
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Component: component,
	})
}

// Discard 测试用
func Discard() *Logger {
	return New(Config{Writer: io.Discard, Level: "error"})
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithContext 附加请求 ID 和已认证用户 ID
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any
	for _, key := range []ContextKey{RequestIDKey, UserIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return l.with(attrs...)
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(slog.String("error", err.Error()))
}

// HTTPRequestLog 访问日志，5xx 记为 error
func (l *Logger) HTTPRequestLog(method, path string, status int, duration time.Duration, clientIP string) {
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	}
	l.Logger.Log(context.Background(), level, "HTTP request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
		slog.String("client_ip", clientIP),
	)
}

// AuthEventLog 认证事件，reason 为空表示成功；outcome 为 error 时记为 error 级别
func (l *Logger) AuthEventLog(operation, outcome, reason string, extra ...any) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("outcome", outcome),
	}
	if reason != "" {
		attrs = append(attrs, slog.String("reason", reason))
	}
	attrs = append(attrs, extra...)
	if outcome == "error" {
		l.Logger.Error("Auth event", attrs...)
		return
	}
	l.Logger.Info("Auth event", attrs...)
}
