// Package main API Server 入口
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mutualfund-api/internal/apiserver/auth"
	"mutualfund-api/internal/apiserver/ratelimit"
	"mutualfund-api/internal/apiserver/server"
	"mutualfund-api/internal/config"
	"mutualfund-api/internal/shared/infra"
	"mutualfund-api/internal/shared/notify"
	"mutualfund-api/pkg/logging"
)

func main() {
	logger := logging.Default("apiserver")

	// 加载配置（自动加载 .env，根据 APP_ENV 选择 {env}.yaml）
	cfg := config.Load()
	logger.Info("Starting API Server", "env", string(cfg.Env), "config", cfg.String())

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("API Server stopped with error")
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func run(cfg *config.Config, logger *logging.Logger) error {
	// 初始化存储
	store, err := infra.OpenStore(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.DatabaseName)
	if err != nil {
		return err
	}
	inf := &infra.Infrastructure{Storage: store}
	defer inf.Close()
	logger.Info("Connected to database", "driver", cfg.DatabaseDriver)

	// 初始化 Redis（仅限流共享计数使用）
	if cfg.RedisEnabled {
		client, err := infra.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		inf.Redis = client
		logger.Info("Connected to Redis")
	}

	sender, closeSender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSender()

	hasher, err := auth.NewPasswordHasher(cfg.Auth.Hasher, cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}

	metrics := server.NewMetrics("api", nil)
	svc := auth.NewService(
		store,
		hasher,
		auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, nil),
		notify.NewEmailNotifier(cfg.APIServer.FrontendURL, sender),
		auth.ServiceConfig{
			VerificationTTL: cfg.Auth.VerificationTTL,
			ResetTTL:        cfg.Auth.ResetTTL,
			NotifyPolicy:    cfg.Auth.NotifyPolicy,
		},
		auth.WithObserver(metrics),
		auth.WithLogger(logger),
	)

	h := server.NewHandler(svc, store, metrics, server.Options{
		ClientURL:    cfg.APIServer.ClientURL,
		SecureCookie: cfg.IsProduction(),
		Limits:       newRouteLimits(cfg, inf, metrics, logger),
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.APIServer.Port,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API Server listening", "port", cfg.APIServer.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newSender 按 mail.transport 选择投递方式
func newSender(cfg *config.Config, logger *logging.Logger) (notify.Sender, func(), error) {
	switch cfg.Mail.Transport {
	case "smtp":
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			User:     cfg.Mail.SMTP.User,
			Password: cfg.Mail.SMTP.Password,
			From:     cfg.Mail.From,
		}), func() {}, nil
	case "kafka":
		s := notify.NewKafkaSender(cfg.Mail.Kafka.Brokers, cfg.Mail.Kafka.Topic)
		return s, func() {
			if err := s.Close(); err != nil {
				logger.WithError(err).Warn("close kafka writer")
			}
		}, nil
	case "log":
		if cfg.IsProduction() {
			return nil, nil, errors.New("mail.transport=log is not allowed in prod")
		}
		return notify.NewLogSender(logger), func() {}, nil
	default:
		return nil, nil, errors.New("unknown mail transport " + cfg.Mail.Transport)
	}
}

// newRouteLimits 登录/注册限流，backend=redis 时多副本共享计数
func newRouteLimits(cfg *config.Config, inf *infra.Infrastructure, metrics *server.Metrics, logger *logging.Logger) auth.RouteLimits {
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RateLimit.Backend == "redis" && inf.Redis != nil {
		store = ratelimit.NewRedisStore(inf.Redis, "rl")
	}

	opts := []ratelimit.Option{
		ratelimit.WithFailureMode(ratelimit.FailureMode(cfg.RateLimit.FailureMode)),
		ratelimit.WithObserver(metrics),
		ratelimit.WithLogger(logger),
	}
	if cfg.RateLimit.TrustProxy {
		opts = append(opts, ratelimit.WithTrustProxy())
	}

	login := ratelimit.New(store, ratelimit.LoginPolicy(cfg.RateLimit.LoginMax, cfg.RateLimit.Window), opts...)
	register := ratelimit.New(store, ratelimit.RegisterPolicy(cfg.RateLimit.RegisterMax, cfg.RateLimit.Window), opts...)
	return auth.RouteLimits{Login: login.Middleware, Register: register.Middleware}
}
