package ports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrLockNotObtained is returned by a ClaimLocker when another holder owns the key.
var ErrLockNotObtained = errors.New("claim lock not obtained")

type PolicySnapshot struct {
	PolicyID   string    `json:"policy_id"`
	CropType   string    `json:"crop_type"`
	SumInsured string    `json:"sum_insured"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}

// AssessmentDispatch is the payload handed to the assessment collaborator.
type AssessmentDispatch struct {
	RequestID      string         `json:"request_id"`
	ClaimID        string         `json:"claim_id"`
	Attempt        int            `json:"attempt"`
	DateOfIncident time.Time      `json:"date_of_incident"`
	Location       string         `json:"location"`
	EvidenceRefs   []string       `json:"evidence_refs"`
	Policy         PolicySnapshot `json:"policy_snapshot"`
}

// AssessmentDispatcher hands a request to the collaborator and returns without waiting for a result.
type AssessmentDispatcher interface {
	Dispatch(ctx context.Context, request AssessmentDispatch) error
}

// AssessmentResult is what the collaborator sends back. ClaimID is the human-facing claim number.
// ValidationFlags is kept raw: the collaborator may send a list or a name->bool object.
type AssessmentResult struct {
	ClaimID             string              `json:"claim_id"`
	RequestID           string              `json:"request_id"`
	Failed              bool                `json:"failed"`
	FailureReason       string              `json:"failure_reason,omitempty"`
	AIDamagePercent     *float64            `json:"ai_damage_percent"`
	AIRecommendedAmount decimal.NullDecimal `json:"ai_recommended_amount"`
	ConfidenceScore     *float64            `json:"confidence_score"`
	ValidationFlags     json.RawMessage     `json:"validation_flags,omitempty"`
	WeatherSummary      string              `json:"weather_summary"`
	CropHealthSummary   string              `json:"crop_health_summary"`
	GeospatialSummary   string              `json:"geospatial_summary"`
}

type AssessmentResultHandler func(ctx context.Context, result AssessmentResult) error

type Beneficiary struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
}

type PaymentRequest struct {
	ClaimID     string          `json:"claim_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
	Beneficiary Beneficiary     `json:"beneficiary"`
}

type PaymentReceipt struct {
	TransactionID string    `json:"transaction_id"`
	SettledAt     time.Time `json:"settled_at"`
}

// PaymentGateway disburses a payout synchronously.
type PaymentGateway interface {
	Disburse(ctx context.Context, request PaymentRequest) (PaymentReceipt, error)
}

// ClaimLocker serializes work on one claim, across processes when backed by a shared store.
type ClaimLocker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, err error)
}
