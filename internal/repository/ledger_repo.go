package repository

import (
	"context"
	"errors"

	"fanpoints/internal/model"
	"fanpoints/pkg/idgen"

	"gorm.io/gorm"
)

// ErrDuplicateEntry 流水号已存在，本次没有写入新流水
var ErrDuplicateEntry = errors.New("流水号已存在")

const (
	DefaultLedgerLimit = 20
	MaxLedgerLimit     = 200
)

// LedgerRepository 积分流水，只追加
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append 写入一条流水，返回流水号
//
// EntryNo 为空时自动生成；调用方传入的 EntryNo 已存在时直接返回已有流水，不重复写入，created 为 false。
// 必须与余额更新在同一个事务内调用；created 为 false 时余额变动没有对应的新流水，调用方必须回滚。
func (r *LedgerRepository) Append(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) (entryNo string, created bool, err error) {
	if tx == nil {
		tx = r.db
	}

	if entry.EntryNo == "" {
		entry.EntryNo = idgen.GenerateEntryNo()
	} else {
		existing, err := r.getByEntryNo(ctx, tx, entry.EntryNo)
		if err != nil {
			return "", false, err
		}
		if existing != nil {
			*entry = *existing
			return existing.EntryNo, false, nil
		}
	}

	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return "", false, err
	}
	return entry.EntryNo, true, nil
}

func (r *LedgerRepository) getByEntryNo(ctx context.Context, tx *gorm.DB, entryNo string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := tx.WithContext(ctx).Where("entry_no = ?", entryNo).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// ListByUser 最新的在前
func (r *LedgerRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(ClampLimit(limit)).
		Find(&entries).Error
	return entries, err
}

// ListAllByUser 按提交顺序返回用户全部流水，用于审计回放
func (r *LedgerRepository) ListAllByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*model.LedgerEntry, error) {
	if tx == nil {
		tx = r.db
	}
	var entries []*model.LedgerEntry
	err := tx.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// LatestByUser 用户最近一条流水，没有流水时返回 nil
func (r *LedgerRepository) LatestByUser(ctx context.Context, userID string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// ClampLimit 把分页大小限制在 [1, MaxLedgerLimit]，非正数取默认值
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLedgerLimit
	}
	if limit > MaxLedgerLimit {
		return MaxLedgerLimit
	}
	return limit
}
