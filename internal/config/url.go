package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// buildDatabaseURL 由 database 段拼出连接串，用户名密码会做 URL 转义
func buildDatabaseURL(db DatabaseConfig, password string) string {
	switch strings.ToLower(db.Driver) {
	case "sqlite":
		path := db.Path
		if path == "" {
			path = "mutual-funds.db"
		}
		return "file:" + path + "?cache=shared&mode=rwc"
	case "postgres":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(db.User, password),
			Host:   hostPort(db.Host, db.Port),
			Path:   "/" + db.Name,
		}
		if db.SSLMode != "" {
			u.RawQuery = "sslmode=" + url.QueryEscape(db.SSLMode)
		}
		return u.String()
	default:
		if db.URI != "" {
			return db.URI
		}
		u := url.URL{Scheme: "mongodb", Host: hostPort(db.Host, db.Port)}
		if db.User != "" && password != "" {
			u.User = url.UserPassword(db.User, password)
		}
		return u.String()
	}
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// detectDatabaseDriver DATABASE_URL 的 scheme 优先于 yaml 中的 driver，都无法识别时用 mongodb
func detectDatabaseDriver(yamlDriver, databaseURL string) string {
	switch {
	case strings.HasPrefix(databaseURL, "file:"), strings.HasPrefix(databaseURL, "sqlite:"):
		return "sqlite"
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(databaseURL, "mongodb://"), strings.HasPrefix(databaseURL, "mongodb+srv://"):
		return "mongodb"
	}
	if d := strings.ToLower(yamlDriver); d == "sqlite" || d == "postgres" || d == "mongodb" {
		return d
	}
	return "mongodb"
}

// buildRedisURL redis.url 优先，否则按 host/port/db 拼接
func buildRedisURL(redis RedisConfig, password string) string {
	if redis.URL != "" {
		return redis.URL
	}
	u := url.URL{
		Scheme: "redis",
		Host:   hostPort(redis.Host, redis.Port),
		Path:   "/" + strconv.Itoa(redis.DB),
	}
	if password != "" {
		u.User = url.UserPassword("", password)
	}
	return u.String()
}

var passwordPattern = regexp.MustCompile(`(://[^:/@]*:)([^@]+)(@)`)

// maskPassword 日志输出前替换连接串中的密码
func maskPassword(raw string) string {
	return passwordPattern.ReplaceAllString(raw, "${1}***${3}")
}

// parseEnv APP_ENV 取值，未知值按 dev 处理
func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// getEnv 获取环境变量，支持默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsProduction 是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// String 启动日志用的配置摘要
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Driver: %s, DB: %s, Redis: %s, RateLimit: %s, Mail: %s}",
		c.Env, c.DatabaseDriver, maskPassword(c.DatabaseURL), maskPassword(c.RedisURL),
		c.RateLimit.Backend, c.Mail.Transport)
}
