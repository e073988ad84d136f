package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Payout struct {
	PayoutID      uint64          `gorm:"column:payout_id;primaryKey;autoIncrement"`
	ClaimID       string          `gorm:"column:claim_id;type:varchar(36);not null;uniqueIndex"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(20,4);not null"`
	TransactionID string          `gorm:"column:transaction_id;type:varchar(128);not null"`
	SettledAt     time.Time       `gorm:"column:settled_at;not null"`
	Notes         string          `gorm:"column:notes;type:text;not null"`
	ProcessedBy   string          `gorm:"column:processed_by;type:varchar(64);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;not null"`
}

func (Payout) TableName() string {
	return "payouts"
}
