package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type AssessmentReport struct {
	ClaimID             string              `gorm:"column:claim_id;type:varchar(36);primaryKey"`
	RequestID           string              `gorm:"column:request_id;type:varchar(36);not null"`
	AIDamagePercent     *float64            `gorm:"column:ai_damage_percent"`
	AIRecommendedAmount decimal.NullDecimal `gorm:"column:ai_recommended_amount;type:decimal(20,4)"`
	ConfidenceScore     *float64            `gorm:"column:confidence_score"`
	ValidationFlags     datatypes.JSON      `gorm:"column:validation_flags;not null"`
	WeatherSummary      string              `gorm:"column:weather_summary;type:text;not null"`
	CropHealthSummary   string              `gorm:"column:crop_health_summary;type:text;not null"`
	GeospatialSummary   string              `gorm:"column:geospatial_summary;type:text;not null"`
	ReceivedAt          time.Time           `gorm:"column:received_at;not null"`
}

func (AssessmentReport) TableName() string {
	return "assessment_reports"
}

type AssessmentRequest struct {
	RequestID    string     `gorm:"column:request_id;type:varchar(36);primaryKey"`
	ClaimID      string     `gorm:"column:claim_id;type:varchar(36);not null;index"`
	ClaimNumber  string     `gorm:"column:claim_number;type:varchar(32);not null"`
	Attempt      int        `gorm:"column:attempt;not null"`
	Status       string     `gorm:"column:status;type:varchar(16);not null;index"`
	DispatchedAt time.Time  `gorm:"column:dispatched_at;not null;index"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
	LastError    *string    `gorm:"column:last_error;type:text"`
}

func (AssessmentRequest) TableName() string {
	return "assessment_requests"
}
