package model

import (
	"time"
)

// Account 用户积分账户表
// 每个用户一条记录，Balance 只能通过 PointsService 修改
type Account struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"` // 用户ID，由认证服务传入
	Balance   int64     `gorm:"not null;default:0" json:"balance"`                    // 当前积分余额，任何时刻 >= 0
	Version   int64     `gorm:"not null;default:0" json:"version"`                    // 乐观锁版本号
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
