// Package mongostore 基于 MongoDB 的 PersistentStore
//
// 文档直接使用 model 上的 bson tag 序列化。唯一性由索引保证：
// users.email 是并发注册的串行化点，saved_funds (user_id, scheme_code) 防止重复收藏。
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"mutualfund-api/internal/shared/model"
	"mutualfund-api/internal/shared/storage"
)

// Collection 名称
const (
	ColUsers      = "users"
	ColSavedFunds = "saved_funds"
)

// Store MongoDB 凭据与收藏存储
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	users  collection[model.User]
	funds  collection[model.SavedFund]
}

var _ storage.PersistentStore = (*Store)(nil)

// NewStore 连接、校验并建立索引，任何一步失败都断开连接
func NewStore(uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{
		client: client,
		db:     db,
		users:  newCollection[model.User](db, ColUsers),
		funds:  newCollection[model.SavedFund](db, ColSavedFunds),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ensure indexes failed: %w", err)
	}
	return s, nil
}

// Close 断开连接
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// DropDatabase 删除整个数据库，仅用于测试清理
func (s *Store) DropDatabase(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// ensureIndexes 幂等创建索引
// 令牌字段使用稀疏索引，已消费的令牌字段从文档中删除后不占索引
func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		ColUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email_verification_token", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "password_reset_token", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		ColSavedFunds: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "scheme_code", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", col, err)
		}
	}
	return nil
}
