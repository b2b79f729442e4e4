// Package ratelimit 固定窗口限流
//
// 按客户端 IP 计数，窗口从首次请求开始计时，到期后整体重置。
// 策略开启 SkipSuccessful 时，响应状态码小于 400 的请求会被撤销计数，
// 只有失败的尝试累积。计数存储可选进程内存（单实例）或 Redis（多副本共享）。
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrBackendUnavailable 计数存储不可用
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// FailureMode 存储故障时的处理方式
type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// Store 固定窗口计数存储
type Store interface {
	// Hit 计数加一，返回窗口内的累计次数和窗口重置时间
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (count int64, resetAt time.Time, err error)
	// Undo 撤销当前窗口内的一次计数，窗口不存在或已过期时什么都不做
	Undo(ctx context.Context, key string, now time.Time) error
}

// Policy 限流策略
type Policy struct {
	Name           string
	Max            int
	Window         time.Duration
	Message        string
	SkipSuccessful bool // 成功响应不计入窗口
}

// LoginPolicy 登录限流：每个窗口最多 max 次失败尝试
func LoginPolicy(max int, window time.Duration) Policy {
	return Policy{
		Name:           "login",
		Max:            max,
		Window:         window,
		Message:        "Too many login attempts, please try again later.",
		SkipSuccessful: true,
	}
}

// RegisterPolicy 注册限流：每个窗口最多 max 次失败尝试
func RegisterPolicy(max int, window time.Duration) Policy {
	return Policy{
		Name:           "register",
		Max:            max,
		Window:         window,
		Message:        "Too many registration attempts, please try again later.",
		SkipSuccessful: true,
	}
}

// Decision 单次请求的限流结果
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter 距窗口重置的时长
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// decide 第 max+1 次及以后的请求被拒绝
func decide(p Policy, count int64, resetAt time.Time) Decision {
	remaining := int64(p.Max) - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(p.Max),
		Limit:     p.Max,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}
}
