package notify

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig SMTP 连接参数
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// sendFunc 与 smtp.SendMail 签名一致，测试时替换
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender 通过 SMTP 投递邮件
type SMTPSender struct {
	cfg  SMTPConfig
	send sendFunc
	now  func() time.Time
}

// NewSMTPSender 创建 SMTP 投递器
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (s *SMTPSender) Deliver(ctx context.Context, ev EmailEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := Render(ev)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}

	msg := buildMessage(s.cfg.From, ev.Email, subject, body, s.now())
	if err := s.send(addr, auth, envelopeAddress(s.cfg.From), []string{ev.Email}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	return nil
}

// buildMessage 组装 RFC 5322 邮件
func buildMessage(from, to, subject, htmlBody string, date time.Time) []byte {
	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"Date: " + date.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody)
}

// envelopeAddress 从 "Name <addr>" 中取出地址
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return strings.TrimSpace(from)
}
