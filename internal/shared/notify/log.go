package notify

import (
	"context"
	"net/url"

	"mutualfund-api/pkg/logging"
)

// LogSender 开发环境投递：只记录日志，链接中的令牌被替换
// 需要点击真实链接时使用 smtp 投递配合本地 mailpit
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Deliver(ctx context.Context, ev EmailEvent) error {
	s.logger.WithContext(ctx).Info("email issued (log transport)",
		"kind", string(ev.Kind),
		"user_id", ev.UserID,
		"email", ev.Email,
		"link", redactLink(ev.Link),
	)
	return nil
}

// redactLink 保留链接的路径，查询参数的值一律替换
func redactLink(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return "[unparseable link]"
	}
	q := u.Query()
	for k := range q {
		q.Set(k, "REDACTED")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
