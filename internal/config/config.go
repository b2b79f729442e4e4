package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/common.yaml 与 configs/{env}.yaml
// 3. 环境变量覆盖，构建最终配置
func Load() *Config {
	// godotenv.Load 不覆盖已有环境变量
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	env := parseEnv(getEnv("APP_ENV", "dev"))
	yamlCfg, loadedFrom, err := loadYAMLConfig(env, effectiveConfigPaths())
	cfg := build(env, yamlCfg, loadedFrom)
	cfg.parseErr = err
	return cfg
}

// ParseError 配置文件存在但无法解析时非空，Validate 也会报告该错误
func (c *Config) ParseError() error {
	return c.parseErr
}

// build 合并 YAML 与环境变量
func build(env Environment, y *YAMLConfig, loadedFrom string) *Config {
	if v := firstEnv("API_PORT", "PORT"); v != "" {
		y.APIServer.Port = v
	}
	if v := os.Getenv("CLIENT_URL"); v != "" {
		y.APIServer.ClientURL = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		y.APIServer.FrontendURL = v
	}

	y.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	if d, err := time.ParseDuration(firstEnv("JWT_EXPIRY", "SESSION_TTL")); err == nil {
		y.Auth.SessionTTL = d
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		y.Mail.SMTP.Host = v
	}
	if p, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil {
		y.Mail.SMTP.Port = p
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		y.Mail.SMTP.User = v
	}
	y.Mail.SMTP.Password = firstEnv("SMTP_PASSWORD", "SMTP_PASS")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		y.Mail.Kafka.Brokers = strings.Split(v, ",")
	}

	dbURL := os.Getenv("DATABASE_URL")
	driver := detectDatabaseDriver(y.Database.Driver, dbURL)
	y.Database.Driver = driver
	if dbURL == "" {
		dbURL = buildDatabaseURL(y.Database, os.Getenv("DB_PASSWORD"))
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = buildRedisURL(y.Redis, os.Getenv("REDIS_PASSWORD"))
	}

	return &Config{
		Env:            env,
		APIServer:      y.APIServer,
		DatabaseDriver: driver,
		DatabaseURL:    dbURL,
		DatabaseName:   y.Database.Name,
		RedisEnabled:   y.Redis.Enabled || y.RateLimit.Backend == "redis",
		RedisURL:       redisURL,
		Auth:           y.Auth,
		RateLimit:      y.RateLimit,
		Mail:           y.Mail,
		ConfigFilePath: loadedFrom,
	}
}

// defaultYAMLConfig 代码默认值
func defaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		APIServer: APIServerConfig{
			Port:        "5000",
			ClientURL:   "http://localhost:5173",
			FrontendURL: "http://localhost:5173",
		},
		Database: DatabaseConfig{Driver: "mongodb", Host: "localhost", Port: 27017, Name: "mutual_funds", SSLMode: "disable"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		Auth: AuthConfig{
			SessionTTL:      24 * time.Hour,
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        15 * time.Minute,
			Hasher:          "bcrypt",
			BcryptCost:      12,
			NotifyPolicy:    "strict",
		},
		RateLimit: RateLimitConfig{
			Backend:     "memory",
			Window:      15 * time.Minute,
			LoginMax:    5,
			RegisterMax: 10,
			FailureMode: "fail_open",
		},
		Mail: MailConfig{
			Transport: "log",
			From:      "Mutual Funds <no-reply@mutualfunds.local>",
			SMTP:      SMTPConfig{Host: "localhost", Port: 587},
			Kafka:     MailKafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "auth-emails", GroupID: "mail-worker"},
		},
	}
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml，返回 {env}.yaml 的实际路径。
// 文件不存在时跳过，存在但解析失败时返回错误
func loadYAMLConfig(env Environment, dirs []string) (*YAMLConfig, string, error) {
	cfg := defaultYAMLConfig()
	var errs []error

	if path, data, ok := readFirst(dirs, "common.yaml"); ok {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", path, err))
		}
	}

	loadedFrom := ""
	if path, data, ok := readFirst(dirs, fmt.Sprintf("%s.yaml", env)); ok {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", path, err))
		}
		loadedFrom = path
	}

	return cfg, loadedFrom, errors.Join(errs...)
}

// readFirst 按顺序在 dirs 中查找 name，返回第一个可读的文件
func readFirst(dirs []string, name string) (string, []byte, bool) {
	for _, base := range dirs {
		path := filepath.Join(base, name)
		if data, err := os.ReadFile(path); err == nil {
			return path, data, true
		}
	}
	return "", nil, false
}

// effectiveConfigPaths CONFIG_DIR 环境变量优先，其次默认搜索路径
func effectiveConfigPaths() []string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return []string{dir}
	}
	return configPaths
}

// Validate 检查启动所需的配置
func (c *Config) Validate() error {
	var errs []error
	if c.parseErr != nil {
		errs = append(errs, c.parseErr)
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if c.Env == EnvProduction && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters in prod"))
	}
	switch c.Auth.Hasher {
	case "bcrypt", "argon2id":
	default:
		errs = append(errs, fmt.Errorf("unknown auth.hasher %q", c.Auth.Hasher))
	}
	switch c.Auth.NotifyPolicy {
	case "strict", "best_effort":
	default:
		errs = append(errs, fmt.Errorf("unknown auth.notify_policy %q", c.Auth.NotifyPolicy))
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend))
	}
	switch c.RateLimit.FailureMode {
	case "fail_open", "fail_closed":
	default:
		errs = append(errs, fmt.Errorf("unknown rate_limit.failure_mode %q", c.RateLimit.FailureMode))
	}
	switch c.Mail.Transport {
	case "log", "smtp", "kafka":
	default:
		errs = append(errs, fmt.Errorf("unknown mail.transport %q", c.Mail.Transport))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window))
	}
	if c.RateLimit.LoginMax <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.login_max must be positive, got %d", c.RateLimit.LoginMax))
	}
	if c.RateLimit.RegisterMax <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.register_max must be positive, got %d", c.RateLimit.RegisterMax))
	}
	if c.Mail.Transport == "kafka" && (len(c.Mail.Kafka.Brokers) == 0 || c.Mail.Kafka.Topic == "") {
		errs = append(errs, errors.New("mail.kafka.brokers and mail.kafka.topic are required for kafka transport"))
	}
	return errors.Join(errs...)
}
