package repository

import (
	"context"
	"database/sql"
	"errors"

	"mutualfund-api/internal/shared/model"
	"mutualfund-api/internal/shared/storage"
)

// CreateSavedFund 收藏基金，同一用户重复收藏返回 storage.ErrDuplicate
func (s *Store) CreateSavedFund(ctx context.Context, f *model.SavedFund) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO saved_funds (id, user_id, scheme_name, scheme_code, fund_type, category, amc, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`),
		f.ID, f.UserID, f.SchemeName, f.SchemeCode, string(f.FundType), f.Category, f.AMC, f.Notes, f.CreatedAt.UTC(),
	)
	return s.wrapError(err)
}

// ListSavedFunds 列出用户的收藏，按创建时间倒序
func (s *Store) ListSavedFunds(ctx context.Context, userID string) ([]*model.SavedFund, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, user_id, scheme_name, scheme_code, fund_type, category, amc, notes, created_at
		 FROM saved_funds WHERE user_id = $1 ORDER BY created_at DESC`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	funds := []*model.SavedFund{}
	for rows.Next() {
		f := &model.SavedFund{}
		if err := rows.Scan(&f.ID, &f.UserID, &f.SchemeName, &f.SchemeCode, &f.FundType,
			&f.Category, &f.AMC, &f.Notes, &f.CreatedAt); err != nil {
			return nil, err
		}
		funds = append(funds, f)
	}
	return funds, rows.Err()
}

// GetSavedFund 获取用户的单个收藏
func (s *Store) GetSavedFund(ctx context.Context, userID, id string) (*model.SavedFund, error) {
	f := &model.SavedFund{}
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, user_id, scheme_name, scheme_code, fund_type, category, amc, notes, created_at
		 FROM saved_funds WHERE id = $1 AND user_id = $2`), id, userID,
	).Scan(&f.ID, &f.UserID, &f.SchemeName, &f.SchemeCode, &f.FundType,
		&f.Category, &f.AMC, &f.Notes, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// DeleteSavedFund 删除用户的收藏
func (s *Store) DeleteSavedFund(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM saved_funds WHERE id = $1 AND user_id = $2`), id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
