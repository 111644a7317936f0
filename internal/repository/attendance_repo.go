package repository

import (
	"context"

	"fanpoints/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttendanceRepository struct {
	db *gorm.DB
}

func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// TryMark 插入签到记录，已存在则什么都不做
//
// 依赖 (user_id, date) 唯一索引实现原子的“插入或失败”，不先查再写。
// 返回 true 表示本次插入成功，false 表示当天已签到。
func (r *AttendanceRepository) TryMark(ctx context.Context, tx *gorm.DB, userID, date string) (bool, error) {
	if tx == nil {
		tx = r.db
	}

	marker := &model.AttendanceMarker{
		UserID: userID,
		Date:   date,
	}

	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "mark_date"}},
			DoNothing: true,
		}).
		Create(marker)

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListDates 查询用户在 [from, to] 之间的签到日期，按日期升序
func (r *AttendanceRepository) ListDates(ctx context.Context, userID, from, to string) ([]string, error) {
	var dates []string
	err := r.db.WithContext(ctx).
		Model(&model.AttendanceMarker{}).
		Where("user_id = ? AND mark_date >= ? AND mark_date <= ?", userID, from, to).
		Order("mark_date ASC").
		Pluck("mark_date", &dates).Error
	return dates, err
}
