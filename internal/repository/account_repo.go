package repository

import (
	"context"
	"errors"
	"time"

	"fanpoints/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("账户不存在")
	ErrAccountExists   = errors.New("账户已存在")
	ErrBalanceConflict = errors.New("余额已被并发修改")
)

// AccountRepository 积分余额存储
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *AccountRepository) Create(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	err := r.conn(tx).WithContext(ctx).Create(account).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAccountExists
	}
	return err
}

func (r *AccountRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID string) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// CompareAndSet 乐观锁更新余额
//
// 只有当前余额和版本号都与读取时一致才会更新，否则返回 ErrBalanceConflict，
// 由调用方决定重试还是放弃。绝不会静默覆盖并发写入。
func (r *AccountRepository) CompareAndSet(ctx context.Context, tx *gorm.DB, userID string, expectedBalance int64, expectedVersion int64, newBalance int64) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND balance = ? AND version = ?", userID, expectedBalance, expectedVersion).
		Updates(map[string]interface{}{
			"balance": newBalance,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := r.conn(tx).WithContext(ctx).Model(&model.Account{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrAccountNotFound
		}
		return ErrBalanceConflict
	}

	return nil
}

// ListUpdatedSince 按 ID 游标分页查询 since 之后有变动的账户，供对账任务使用
func (r *AccountRepository) ListUpdatedSince(ctx context.Context, since time.Time, afterID int64, limit int) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("updated_at >= ? AND id > ?", since, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}
