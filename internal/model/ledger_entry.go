package model

import (
	"time"

	"gorm.io/datatypes"
)

// ============================================================================
// 积分流水类型
// ============================================================================

const (
	EntryKindAccountOpening   = "ACCOUNT_OPENING"   // 开户初始积分
	EntryKindAttendanceCredit = "ATTENDANCE_CREDIT" // 签到奖励
	EntryKindBetStake         = "BET_STAKE"         // 下注扣除
	EntryKindBetPayout        = "BET_PAYOUT"        // 下注派奖（输时为 0）
	EntryKindDonationDebit    = "DONATION_DEBIT"    // 捐赠扣除
	EntryKindChargeCredit     = "CHARGE_CREDIT"     // 充值入账
)

// LedgerEntry 积分流水表
//
// 【流水表设计原则】
// 1. 只追加，不修改，不删除
// 2. ID 自增，按 ID 排序即为提交顺序
// 3. BalanceAfter 记录变动后的余额，账户余额必须等于最新一条流水的 BalanceAfter
type LedgerEntry struct {
	ID           int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo      string            `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`              // 流水号（全局唯一）
	UserID       string            `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Kind         string            `gorm:"type:varchar(32);not null" json:"kind"`
	Delta        int64             `gorm:"not null" json:"delta"`         // 正数入账，负数出账
	BalanceAfter int64             `gorm:"not null" json:"balance_after"` // 变动后余额
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
