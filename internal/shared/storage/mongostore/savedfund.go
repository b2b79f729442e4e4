package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"mutualfund-api/internal/shared/model"
)

// ownedBy 收藏的所有查询都带 user_id，读不到也删不掉他人的记录
func ownedBy(userID, id string) bson.D {
	return bson.D{{Key: "_id", Value: id}, {Key: "user_id", Value: userID}}
}

func (s *Store) CreateSavedFund(ctx context.Context, fund *model.SavedFund) error {
	return s.funds.insert(ctx, fund)
}

// ListSavedFunds 最新收藏在前
func (s *Store) ListSavedFunds(ctx context.Context, userID string) ([]*model.SavedFund, error) {
	return s.funds.many(ctx, bson.D{{Key: "user_id", Value: userID}}, bson.D{{Key: "created_at", Value: -1}})
}

func (s *Store) GetSavedFund(ctx context.Context, userID, id string) (*model.SavedFund, error) {
	return s.funds.one(ctx, ownedBy(userID, id))
}

func (s *Store) DeleteSavedFund(ctx context.Context, userID, id string) error {
	return s.funds.remove(ctx, ownedBy(userID, id))
}
