// Package notify 认证邮件通知
//
// Notifier 负责把认证事件（注册确认、欢迎、密码重置）转换为 EmailEvent，
// 再交给 Sender 投递。Sender 有三种实现：
//   - LogSender:   开发环境，只写日志
//   - SMTPSender:  直接通过 SMTP 发送
//   - KafkaSender: 写入 Kafka topic，由 mail-worker 消费后通过 SMTP 发送
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind 邮件类型
type Kind string

const (
	KindVerification  Kind = "verification"
	KindWelcome       Kind = "welcome"
	KindPasswordReset Kind = "password_reset"
)

// Recipient 收件人
type Recipient struct {
	UserID string
	Name   string
	Email  string
}

// EmailEvent 一封待投递的邮件
type EmailEvent struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sender 邮件投递
type Sender interface {
	Deliver(ctx context.Context, ev EmailEvent) error
}

// Notifier 认证流程使用的通知接口
type Notifier interface {
	SendVerification(ctx context.Context, to Recipient, token string) error
	SendWelcome(ctx context.Context, to Recipient) error
	SendPasswordReset(ctx context.Context, to Recipient, token string) error
}

// EmailNotifier 生成邮件事件并交给 Sender
type EmailNotifier struct {
	frontendURL string
	sender      Sender
	now         func() time.Time
}

var _ Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier 创建通知器，frontendURL 用于拼接邮件中的链接
func NewEmailNotifier(frontendURL string, sender Sender) *EmailNotifier {
	return &EmailNotifier{
		frontendURL: strings.TrimRight(frontendURL, "/"),
		sender:      sender,
		now:         time.Now,
	}
}

// VerificationLink 邮箱确认链接
func (n *EmailNotifier) VerificationLink(token string) string {
	return fmt.Sprintf("%s/confirm-email?code=%s", n.frontendURL, url.QueryEscape(token))
}

// ResetLink 密码重置链接
func (n *EmailNotifier) ResetLink(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", n.frontendURL, url.QueryEscape(token))
}

func (n *EmailNotifier) SendVerification(ctx context.Context, to Recipient, token string) error {
	return n.deliver(ctx, KindVerification, to, n.VerificationLink(token))
}

func (n *EmailNotifier) SendWelcome(ctx context.Context, to Recipient) error {
	return n.deliver(ctx, KindWelcome, to, n.frontendURL)
}

func (n *EmailNotifier) SendPasswordReset(ctx context.Context, to Recipient, token string) error {
	return n.deliver(ctx, KindPasswordReset, to, n.ResetLink(token))
}

func (n *EmailNotifier) deliver(ctx context.Context, kind Kind, to Recipient, link string) error {
	ev := EmailEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    to.UserID,
		Name:      to.Name,
		Email:     to.Email,
		Link:      link,
		CreatedAt: n.now().UTC(),
	}
	if err := n.sender.Deliver(ctx, ev); err != nil {
		return fmt.Errorf("deliver %s email: %w", kind, err)
	}
	return nil
}
