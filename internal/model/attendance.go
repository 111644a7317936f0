package model

import (
	"time"
)

// AttendanceMarker 签到记录表
// (user_id, date) 唯一，保证每人每天只能领取一次签到奖励
type AttendanceMarker struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"type:varchar(64);uniqueIndex:uk_attendance_user_date,priority:1;not null" json:"user_id"`
	Date      string    `gorm:"column:mark_date;type:varchar(10);uniqueIndex:uk_attendance_user_date,priority:2;not null" json:"date"` // 2006-01-02
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AttendanceMarker) TableName() string {
	return "attendance_marker"
}
