package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"mutualfund-api/pkg/logging"
)

// messageWriter kafka.Writer 的子集
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageReader kafka.Reader 的子集
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender 把邮件事件写入 Kafka，由 mail-worker 投递
type KafkaSender struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaSender 创建 Kafka 投递器
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 10 * time.Second,
		},
		timeout: 5 * time.Second,
	}
}

// Deliver 以用户 ID 为 key 写入，同一用户的邮件保持顺序
func (s *KafkaSender) Deliver(ctx context.Context, ev EmailEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode email event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.UserID),
		Value: value,
		Time:  ev.CreatedAt,
	})
}

// Close 关闭 writer
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}

// ============================================================================
// Consumer
// ============================================================================

// Consumer 消费邮件事件并交给 Sender 投递
type Consumer struct {
	reader     messageReader
	sender     Sender
	logger     *logging.Logger
	maxRetries int
	backoff    time.Duration
}

// NewConsumer 创建消费者，groupID 相同的多个 worker 分摊分区
func NewConsumer(brokers []string, topic, groupID string, sender Sender, logger *logging.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(reader, sender, logger)
}

func newConsumer(reader messageReader, sender Sender, logger *logging.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		sender:     sender,
		logger:     logger,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Run 阻塞消费直到 ctx 取消
// 投递失败重试 maxRetries 次后记录日志并提交 offset，不阻塞后续消息
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WithError(err).Warn("commit offset failed", "offset", msg.Offset)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var ev EmailEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.logger.WithError(err).Error("drop undecodable email event", "offset", msg.Offset)
		return
	}

	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err = c.sender.Deliver(ctx, ev); err == nil {
			c.logger.Info("email delivered", "kind", string(ev.Kind), "event_id", ev.ID, "attempt", attempt)
			return
		}
		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
	}
	c.logger.WithError(err).Error("email delivery failed",
		"kind", string(ev.Kind), "event_id", ev.ID, "attempts", c.maxRetries)
}

// Close 关闭 reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
