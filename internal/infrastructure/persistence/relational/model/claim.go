package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Claim struct {
	ID                 string          `gorm:"column:id;type:varchar(36);primaryKey"`
	ClaimNumber        string          `gorm:"column:claim_number;type:varchar(32);not null;uniqueIndex"`
	PolicyID           string          `gorm:"column:policy_id;type:varchar(64);not null;index:idx_claims_policy_day"`
	FarmerID           string          `gorm:"column:farmer_id;type:varchar(64);not null;uniqueIndex:uq_claims_farmer_key"`
	IdempotencyKey     string          `gorm:"column:idempotency_key;type:varchar(255);not null;uniqueIndex:uq_claims_farmer_key"`
	PayloadHash        string          `gorm:"column:payload_hash;type:varchar(64);not null"`
	DateOfIncident     time.Time       `gorm:"column:date_of_incident;not null"`
	IncidentDay        string          `gorm:"column:incident_day;type:varchar(10);not null;index:idx_claims_policy_day"`
	LocationOfIncident string          `gorm:"column:location_of_incident;type:text;not null"`
	Description        string          `gorm:"column:description;type:text;not null"`
	AmountClaimed      decimal.Decimal `gorm:"column:amount_claimed;type:decimal(20,4);not null"`
	EvidenceRefs       datatypes.JSON  `gorm:"column:evidence_refs;not null"`
	Status             string          `gorm:"column:status;type:varchar(32);not null;index"`
	DecisionOutcome    string          `gorm:"column:decision_outcome;type:varchar(16);not null;default:''"`
	FraudSuspect       bool            `gorm:"column:fraud_suspect;not null;default:false"`
	AssignedReviewerID *string         `gorm:"column:assigned_reviewer_id;type:varchar(64)"`
	Version            int64           `gorm:"column:version;not null;default:1"`
	CreatedAt          time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;not null"`
}

func (Claim) TableName() string {
	return "claims"
}
