package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"mutualfund-api/internal/shared/storage"
)

// collection 单一文档类型的集合访问
// 查不到返回 (nil, nil)，写操作未命中返回 storage.ErrNotFound
type collection[T any] struct {
	c *mongo.Collection
}

func newCollection[T any](db *mongo.Database, name string) collection[T] {
	return collection[T]{c: db.Collection(name)}
}

func byID(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

func (c collection[T]) one(ctx context.Context, filter bson.D) (*T, error) {
	doc := new(T)
	if err := c.c.FindOne(ctx, filter).Decode(doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, wrapError(err)
	}
	return doc, nil
}

// many 按 sort 排序返回全部匹配文档，无结果时返回空切片
func (c collection[T]) many(ctx context.Context, filter, sort bson.D) ([]*T, error) {
	cursor, err := c.c.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, wrapError(err)
	}
	docs := []*T{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (c collection[T]) insert(ctx context.Context, doc *T) error {
	_, err := c.c.InsertOne(ctx, doc)
	return wrapError(err)
}

// update 对首个匹配文档执行 $set/$unset 等更新操作符
func (c collection[T]) update(ctx context.Context, filter, update bson.D) error {
	res, err := c.c.UpdateOne(ctx, filter, update)
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c collection[T]) remove(ctx context.Context, filter bson.D) error {
	res, err := c.c.DeleteOne(ctx, filter)
	if err != nil {
		return wrapError(err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// wrapError 唯一索引冲突转换为 storage.ErrDuplicate
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	return err
}
