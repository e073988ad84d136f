package model

import "time"

type AuditEntry struct {
	EntryID     uint64    `gorm:"column:entry_id;primaryKey;autoIncrement"`
	ClaimID     string    `gorm:"column:claim_id;type:varchar(36);not null;index"`
	Actor       string    `gorm:"column:actor;type:varchar(64);not null"`
	Action      string    `gorm:"column:action;type:varchar(64);not null"`
	BeforeState string    `gorm:"column:before_state;type:varchar(48);not null"`
	AfterState  string    `gorm:"column:after_state;type:varchar(48);not null"`
	Detail      string    `gorm:"column:detail;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (AuditEntry) TableName() string {
	return "audit_entries"
}
