// Package postgres 通过 pgx stdlib 接入 database/sql 的 PostgreSQL 存储
package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mutualfund-api/deployments"
	"mutualfund-api/internal/shared/storage/dbutil"
)

// SQLSTATE unique_violation
const uniqueViolation = "23505"

type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverPostgres
}

func (d *Dialect) Rebind(query string) string {
	return query
}

func (d *Dialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// AutoMigrate 执行 deployments/init-db.sql（幂等）
func (d *Dialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(deployments.InitDBSQL)
	return err
}

// Open 连接并 Ping，失败时关闭连接池
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

func NewDialect() *Dialect {
	return &Dialect{}
}
