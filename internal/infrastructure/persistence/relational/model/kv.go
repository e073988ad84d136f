package model

type CacheKV struct {
	Key       string `gorm:"column:cache_key;type:varchar(191);primaryKey"`
	Value     string `gorm:"column:value;type:text;not null"`
	ExpiresAt *int64 `gorm:"column:expires_at"`
	UpdatedAt string `gorm:"column:updated_at;type:varchar(40);not null"`
}

func (CacheKV) TableName() string {
	return "cache_kv"
}

// All returns every table model in migration order.
func All() []any {
	return []any{
		&Policy{},
		&Farmer{},
		&Insurer{},
		&Claim{},
		&AssessmentReport{},
		&AssessmentRequest{},
		&ReviewDraft{},
		&Decision{},
		&Payout{},
		&AuditEntry{},
		&CacheKV{},
	}
}
