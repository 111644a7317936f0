package model

import (
	"time"
)

const (
	BetOutcomeWin  = "WIN"
	BetOutcomeLose = "LOSE"
)

// BetTicket 下注记录
// 保存赔率、随机数和种子，便于事后复核开奖结果
type BetTicket struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	TicketID     string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"ticket_id"`
	UserID       string    `gorm:"type:varchar(64);index;not null" json:"user_id"`
	BettingType  string    `gorm:"type:varchar(32);not null" json:"betting_type"`
	Stake        int64     `gorm:"not null" json:"stake"`
	SuccessRate  float64   `gorm:"not null" json:"success_rate"`
	Odds         float64   `gorm:"not null" json:"odds"`
	RandomValue  float64   `gorm:"not null" json:"random_value"`
	Seed         string    `gorm:"type:varchar(20);not null" json:"seed"` // uint64 十进制字符串，部分数据库不支持无符号 bigint
	Outcome      string    `gorm:"type:varchar(8);not null" json:"outcome"`
	Payout       int64     `gorm:"not null" json:"payout"`
	BalanceAfter int64     `gorm:"not null" json:"balance_after"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
}

func (BetTicket) TableName() string {
	return "bet_ticket"
}
