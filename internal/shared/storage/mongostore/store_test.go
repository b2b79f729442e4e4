package mongostore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mutualfund-api/internal/shared/model"
	"mutualfund-api/internal/shared/storage"
)

// testStore 创建测试用 Store，使用独立数据库避免污染
func testStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017/?serverSelectionTimeoutMS=2000"
	}

	s, err := NewStore(uri, "mutual_funds_test")
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	// 清空测试数据库
	ctx := context.Background()
	require.NoError(t, s.DropDatabase(ctx))
	// 重新创建索引
	require.NoError(t, s.ensureIndexes(ctx))

	t.Cleanup(func() {
		s.DropDatabase(context.Background())
		s.Close()
	})

	return s
}

func newUser(id, email string) *model.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.User{
		ID:           id,
		Name:         "Alice",
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	u := newUser("usr-1", "Alice@X.com")
	u.SetVerificationToken("verify-token", time.Now().Add(24*time.Hour))
	require.NoError(t, s.CreateUser(ctx, u))

	got, err := s.GetUserByEmail(ctx, "ALICE@x.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice@x.com", got.Email)
	assert.False(t, got.IsEmailVerified)

	byToken, err := s.GetUserByVerificationToken(ctx, "verify-token")
	require.NoError(t, err)
	require.NotNil(t, byToken)
	assert.Equal(t, "usr-1", byToken.ID)

	// 消费令牌后不可再查到
	require.NoError(t, s.ConsumeVerificationToken(ctx, "verify-token"))
	assert.ErrorIs(t, s.ConsumeVerificationToken(ctx, "verify-token"), storage.ErrNotFound)

	again, err := s.GetUserByVerificationToken(ctx, "verify-token")
	require.NoError(t, err)
	assert.Nil(t, again)

	byID, err := s.GetUserByID(ctx, "usr-1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.True(t, byID.IsEmailVerified)
	assert.Nil(t, byID.EmailVerificationExpiry)

	missing, err := s.GetUserByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, s.SetResetToken(ctx, "ghost", "r", time.Now()), storage.ErrNotFound)
	assert.ErrorIs(t, s.SetVerificationToken(ctx, "usr-1", "verify-2", time.Now().Add(time.Hour)), storage.ErrNotFound)
}

func TestUserDuplicateEmail(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, newUser("usr-1", "bob@x.com")))
	err := s.CreateUser(ctx, newUser("usr-2", "BOB@x.com"))
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestConcurrentCreateSameEmail(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreateUser(ctx, newUser("usr-"+string(rune('a'+i)), "race@x.com"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, storage.ErrDuplicate)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestResetTokenLookup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	u := newUser("usr-1", "carol@x.com")
	require.NoError(t, s.CreateUser(ctx, u))

	require.NoError(t, s.SetResetToken(ctx, u.ID, "r1", time.Now().Add(15*time.Minute)))
	require.NoError(t, s.SetResetToken(ctx, u.ID, "r2", time.Now().Add(15*time.Minute)))

	old, err := s.GetUserByResetToken(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, old)

	cur, err := s.GetUserByResetToken(ctx, "r2")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "usr-1", cur.ID)

	assert.ErrorIs(t, s.ConsumeResetToken(ctx, "r1", "stale"), storage.ErrNotFound)
	require.NoError(t, s.ConsumeResetToken(ctx, "r2", "new-hash"))

	after, err := s.GetUserByID(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", after.PasswordHash)
	assert.Empty(t, after.PasswordResetToken)
	assert.Nil(t, after.PasswordResetExpiry)

	// 之后的重置请求只写重置字段
	require.NoError(t, s.SetResetToken(ctx, "usr-1", "r3", time.Now().Add(15*time.Minute)))
	after, err = s.GetUserByID(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", after.PasswordHash)
}

func TestConcurrentConsumeVerificationToken(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	u := newUser("usr-1", "eve@x.com")
	u.SetVerificationToken("verify-token", time.Now().Add(time.Hour))
	require.NoError(t, s.CreateUser(ctx, u))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.ConsumeVerificationToken(ctx, "verify-token")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, storage.ErrNotFound)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestSavedFundCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	f := &model.SavedFund{
		ID:         "fund-1",
		UserID:     "usr-1",
		SchemeName: "HDFC Top 100",
		SchemeCode: "125497",
		FundType:   model.FundTypeEquity,
		Category:   "Large Cap",
		AMC:        "HDFC",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.CreateSavedFund(ctx, f))

	dup := *f
	dup.ID = "fund-2"
	assert.ErrorIs(t, s.CreateSavedFund(ctx, &dup), storage.ErrDuplicate)

	list, err := s.ListSavedFunds(ctx, "usr-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	other, err := s.GetSavedFund(ctx, "usr-2", "fund-1")
	require.NoError(t, err)
	assert.Nil(t, other)

	assert.ErrorIs(t, s.DeleteSavedFund(ctx, "usr-2", "fund-1"), storage.ErrNotFound)
	require.NoError(t, s.DeleteSavedFund(ctx, "usr-1", "fund-1"))

	list, err = s.ListSavedFunds(ctx, "usr-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
