// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化，包括：
//   - Storage：凭据与收藏存储（MongoDB / SQLite / PostgreSQL）
//   - Redis：限流计数共享（可选）
package infra

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"mutualfund-api/internal/shared/storage"
	"mutualfund-api/internal/shared/storage/driver/postgres"
	"mutualfund-api/internal/shared/storage/driver/sqlite"
	"mutualfund-api/internal/shared/storage/mongostore"
	"mutualfund-api/internal/shared/storage/repository"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Storage 持久化存储
	Storage storage.PersistentStore

	// Redis 客户端，未启用时为 nil
	Redis *redis.Client
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var errs []error

	if i.Storage != nil {
		if err := i.Storage.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// OpenStore 按驱动类型打开存储
//
// 参数：
//   - driver: "mongodb" | "sqlite" | "postgres"
//   - url: 连接串（sqlite 为 DSN）
//   - dbName: MongoDB 数据库名，其他驱动忽略
func OpenStore(driver, url, dbName string) (storage.PersistentStore, error) {
	switch driver {
	case "mongodb":
		s, err := mongostore.NewStore(url, dbName)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		db, err := sqlite.Open(url)
		if err != nil {
			return nil, err
		}
		dialect := sqlite.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
		return repository.NewStore(db, dialect), nil
	case "postgres":
		db, err := postgres.Open(url)
		if err != nil {
			return nil, err
		}
		dialect := postgres.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		return repository.NewStore(db, dialect), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
