package repository

import (
	"context"
	"testing"
	"time"

	"fanpoints/internal/infrastructure/dbtest"
	"fanpoints/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, repo *AccountRepository, userID string, balance int64) *model.Account {
	t.Helper()
	acc := &model.Account{UserID: userID, Balance: balance}
	require.NoError(t, repo.Create(context.Background(), nil, acc))
	return acc
}

func TestAccountRepository_CreateDuplicate(t *testing.T) {
	db := dbtest.New(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	seedAccount(t, repo, "alice", 3000)

	err := repo.Create(ctx, nil, &model.Account{UserID: "alice", Balance: 3000})
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestAccountRepository_GetByUserID(t *testing.T) {
	db := dbtest.New(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	seedAccount(t, repo, "alice", 3000)

	acc, err := repo.GetByUserID(ctx, nil, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), acc.Balance)
	assert.Equal(t, int64(0), acc.Version)

	_, err = repo.GetByUserID(ctx, nil, "nobody")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepository_CompareAndSet(t *testing.T) {
	tests := []struct {
		name        string
		userID      string
		expected    int64
		version     int64
		newBalance  int64
		wantErr     error
		wantBalance int64
		wantVersion int64
	}{
		{name: "matching_read_applies", userID: "alice", expected: 3000, version: 0, newBalance: 3100, wantBalance: 3100, wantVersion: 1},
		{name: "stale_balance_conflicts", userID: "alice", expected: 2999, version: 0, newBalance: 3100, wantErr: ErrBalanceConflict, wantBalance: 3000},
		{name: "stale_version_conflicts", userID: "alice", expected: 3000, version: 4, newBalance: 3100, wantErr: ErrBalanceConflict, wantBalance: 3000},
		{name: "unknown_user", userID: "ghost", expected: 0, version: 0, newBalance: 10, wantErr: ErrAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := dbtest.New(t)
			repo := NewAccountRepository(db)
			ctx := context.Background()
			seedAccount(t, repo, "alice", 3000)

			err := repo.CompareAndSet(ctx, nil, tt.userID, tt.expected, tt.version, tt.newBalance)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			if tt.userID != "alice" {
				return
			}
			acc, err := repo.GetByUserID(ctx, nil, "alice")
			require.NoError(t, err)
			assert.Equal(t, tt.wantBalance, acc.Balance)
			assert.Equal(t, tt.wantVersion, acc.Version)
		})
	}
}

func TestAccountRepository_CompareAndSet_SecondWriterLoses(t *testing.T) {
	db := dbtest.New(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	seedAccount(t, repo, "alice", 0)

	// 两个请求读到同一个快照
	snapA, err := repo.GetByUserID(ctx, nil, "alice")
	require.NoError(t, err)
	snapB, err := repo.GetByUserID(ctx, nil, "alice")
	require.NoError(t, err)

	require.NoError(t, repo.CompareAndSet(ctx, nil, "alice", snapA.Balance, snapA.Version, snapA.Balance+100))
	err = repo.CompareAndSet(ctx, nil, "alice", snapB.Balance, snapB.Version, snapB.Balance+100)
	assert.ErrorIs(t, err, ErrBalanceConflict)

	acc, err := repo.GetByUserID(ctx, nil, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.Balance)
}

func TestAccountRepository_ListUpdatedSince(t *testing.T) {
	db := dbtest.New(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		seedAccount(t, repo, id, 10)
	}

	since := time.Now().Add(-time.Minute)
	page, err := repo.ListUpdatedSince(ctx, since, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)

	rest, err := repo.ListUpdatedSince(ctx, since, page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", rest[0].UserID)

	none, err := repo.ListUpdatedSince(ctx, time.Now().Add(time.Hour), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
