// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/容器注入）
//  2. YAML 配置文件（common.yaml，再由 {env}.yaml 覆盖）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	密码/密钥只存在环境变量中（YAML 中不存储任何密码）：
//	JWT_SECRET、DB_PASSWORD、REDIS_PASSWORD、SMTP_PASSWORD。
//
// 环境：
//   - 开发: APP_ENV=dev (默认)
//   - 测试: APP_ENV=test
//   - 生产: APP_ENV=prod
package config

import "time"

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	APIServer APIServerConfig `yaml:"api_server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Mail      MailConfig      `yaml:"mail"`
}

// APIServerConfig API Server 配置
type APIServerConfig struct {
	Port        string `yaml:"port"`
	ClientURL   string `yaml:"client_url"`   // CORS 允许的前端源
	FrontendURL string `yaml:"frontend_url"` // 邮件链接中使用的前端地址
}

type DatabaseConfig struct {
	Driver  string `yaml:"driver"` // "mongodb"（默认）, "sqlite", "postgres"
	URI     string `yaml:"uri"`    // MongoDB 连接 URI（优先于 host/port）
	Path    string `yaml:"path"`   // SQLite 文件路径
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	Name    string `yaml:"name"`
	SSLMode string `yaml:"sslmode"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DB      int    `yaml:"db"`
	URL     string `yaml:"url"` // 直接指定 URL，优先于 host/port/db
}

// AuthConfig 认证配置
// JWTSecret 只从 JWT_SECRET 环境变量读取
type AuthConfig struct {
	JWTSecret       string        `yaml:"-"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	VerificationTTL time.Duration `yaml:"verification_ttl"`
	ResetTTL        time.Duration `yaml:"reset_ttl"`
	Hasher          string        `yaml:"hasher"` // "bcrypt" | "argon2id"
	BcryptCost      int           `yaml:"bcrypt_cost"`
	NotifyPolicy    string        `yaml:"notify_policy"` // "strict" | "best_effort"
}

// RateLimitConfig 登录/注册限流配置
type RateLimitConfig struct {
	Backend     string        `yaml:"backend"` // "memory" | "redis"
	Window      time.Duration `yaml:"window"`
	LoginMax    int           `yaml:"login_max"`
	RegisterMax int           `yaml:"register_max"`
	FailureMode string        `yaml:"failure_mode"` // "fail_open" | "fail_closed"
	TrustProxy  bool          `yaml:"trust_proxy"`  // 反向代理后按 X-Forwarded-For 计数
}

// MailConfig 邮件通知配置
type MailConfig struct {
	Transport string          `yaml:"transport"` // "log" | "smtp" | "kafka"
	From      string          `yaml:"from"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Kafka     MailKafkaConfig `yaml:"kafka"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从 SMTP_PASSWORD 环境变量读取
}

type MailKafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"` // mail-worker 消费组
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	APIServer      APIServerConfig
	DatabaseDriver string // "mongodb", "sqlite", "postgres"
	DatabaseURL    string
	DatabaseName   string // MongoDB 数据库名称
	RedisEnabled   bool
	RedisURL       string
	Auth           AuthConfig
	RateLimit      RateLimitConfig
	Mail           MailConfig
	ConfigFilePath string // 实际加载的 {env}.yaml 路径，未找到时为空

	parseErr error
}
