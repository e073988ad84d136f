package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ReviewDraft struct {
	ClaimID            string         `gorm:"column:claim_id;type:varchar(36);primaryKey"`
	VerifiedArea       string         `gorm:"column:verified_area;type:varchar(255);not null"`
	DamageConfirmation string         `gorm:"column:damage_confirmation;type:varchar(16);not null"`
	Comments           string         `gorm:"column:comments;type:text;not null"`
	FieldPhotoRefs     datatypes.JSON `gorm:"column:field_photo_refs;not null"`
	UpdatedBy          string         `gorm:"column:updated_by;type:varchar(64);not null"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;not null"`
}

func (ReviewDraft) TableName() string {
	return "review_drafts"
}

// Decision rows are written once; claim_id doubles as the uniqueness guard.
type Decision struct {
	ClaimID            string          `gorm:"column:claim_id;type:varchar(36);primaryKey"`
	DecidedBy          string          `gorm:"column:decided_by;type:varchar(64);not null"`
	DecidedAt          time.Time       `gorm:"column:decided_at;not null"`
	Outcome            string          `gorm:"column:outcome;type:varchar(16);not null"`
	FinalComments      string          `gorm:"column:final_comments;type:text;not null"`
	ApprovedAmount     decimal.Decimal `gorm:"column:approved_amount;type:decimal(20,4);not null"`
	FraudSuspect       bool            `gorm:"column:fraud_suspect;not null"`
	VerifiedArea       string          `gorm:"column:verified_area;type:varchar(255);not null"`
	DamageConfirmation string          `gorm:"column:damage_confirmation;type:varchar(16);not null"`
	DraftComments      string          `gorm:"column:draft_comments;type:text;not null"`
	FieldPhotoRefs     datatypes.JSON  `gorm:"column:field_photo_refs;not null"`
}

func (Decision) TableName() string {
	return "decisions"
}
