// Package dbutil SQL 存储的方言抽象
//
// repository 层统一按 PostgreSQL 写法（$N 占位符）编写语句，
// 由各驱动的 Dialect 负责改写和错误识别。
package dbutil

import (
	"database/sql"
	"regexp"
)

// DriverType SQL 驱动标识，取值与配置中的 database.driver 一致
type DriverType string

const (
	DriverPostgres DriverType = "postgres"
	DriverSQLite   DriverType = "sqlite"
)

// Dialect 驱动相关的行为
type Dialect interface {
	DriverType() DriverType

	// Rebind 改写 $N 占位符为本驱动的格式
	Rebind(query string) string

	// IsUniqueViolation 邮箱重复、重复收藏等唯一键冲突返回 true
	IsUniqueViolation(err error) bool

	// AutoMigrate 建表，可重复执行
	AutoMigrate(db *sql.DB) error
}

var dollarParam = regexp.MustCompile(`\$\d+`)

// RebindToQuestion $1, $2 ... 改写为 ?
// 参数必须按编号顺序出现在语句中
func RebindToQuestion(query string) string {
	return dollarParam.ReplaceAllLiteralString(query, "?")
}
