// Package main 邮件投递 Worker
//
// 从 Kafka 消费 API Server 入队的邮件事件，通过 SMTP 投递。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mutualfund-api/internal/config"
	"mutualfund-api/internal/shared/notify"
	"mutualfund-api/pkg/logging"
)

func main() {
	logger := logging.Default("mail-worker")

	cfg := config.Load()
	if err := cfg.ParseError(); err != nil {
		logger.WithError(err).Error("invalid configuration")
		os.Exit(1)
	}
	if len(cfg.Mail.Kafka.Brokers) == 0 || cfg.Mail.Kafka.Topic == "" {
		logger.Error("mail.kafka.brokers and mail.kafka.topic are required")
		os.Exit(1)
	}

	sender := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.Mail.SMTP.Host,
		Port:     cfg.Mail.SMTP.Port,
		User:     cfg.Mail.SMTP.User,
		Password: cfg.Mail.SMTP.Password,
		From:     cfg.Mail.From,
	})
	consumer := notify.NewConsumer(cfg.Mail.Kafka.Brokers, cfg.Mail.Kafka.Topic, cfg.Mail.Kafka.GroupID, sender, logger)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Mail worker started", "topic", cfg.Mail.Kafka.Topic, "group", cfg.Mail.Kafka.GroupID)
	if err := consumer.Run(ctx); err != nil {
		logger.WithError(err).Error("mail worker stopped with error")
		os.Exit(1)
	}
	logger.Info("Mail worker stopped")
}
