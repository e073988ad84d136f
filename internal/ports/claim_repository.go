package ports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	domainclaim "cropclaim/internal/domain/claim"
)

var (
	ErrClaimNotFound    = errors.New("claim not found")
	ErrPolicyNotFound   = errors.New("policy not found")
	ErrFarmerNotFound   = errors.New("farmer not found")
	ErrReportNotFound   = errors.New("assessment report not found")
	ErrDecisionNotFound = errors.New("decision record not found")
	ErrPayoutNotFound   = errors.New("payout record not found")

	// ErrStaleVersion means a conditional update matched no row at the expected version.
	ErrStaleVersion = errors.New("claim version is stale")
	// ErrDuplicateRecord means a write hit a uniqueness guard (one decision / one payout per claim).
	ErrDuplicateRecord = errors.New("duplicate record")
)

type Policy struct {
	PolicyID   string
	FarmerID   string
	InsurerID  string
	CropType   string
	SumInsured decimal.Decimal
	Status     domainclaim.PolicyStatus
	StartDate  time.Time
	EndDate    time.Time
}

type Farmer struct {
	FarmerID          string
	AccountRef        string
	Name              string
	BankAccountName   string
	BankAccountNumber string
	BankCode          string
}

type Insurer struct {
	InsurerID  string
	AccountRef string
	Name       string
}

type Claim struct {
	ID                 string
	ClaimNumber        string
	PolicyID           string
	FarmerID           string
	DateOfIncident     time.Time
	LocationOfIncident string
	Description        string
	AmountClaimed      decimal.Decimal
	EvidenceRefs       []string
	Status             domainclaim.Status
	DecisionOutcome    domainclaim.Outcome
	FraudSuspect       bool
	AssignedReviewerID *string
	IdempotencyKey     string
	PayloadHash        string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ClaimUpdate is a conditional update: it applies only while the stored version equals ExpectedVersion.
// Nil fields are left untouched; the version is always incremented.
type ClaimUpdate struct {
	ClaimID            string
	ExpectedVersion    int64
	Status             *domainclaim.Status
	DecisionOutcome    *domainclaim.Outcome
	FraudSuspect       *bool
	AssignedReviewerID *string
	UpdatedAt          time.Time
}

type ClaimFilter struct {
	Statuses []domainclaim.Status
	FarmerID string
	PolicyID string
	Limit    int
}

type AssessmentReport struct {
	ClaimID             string
	RequestID           string
	AIDamagePercent     *float64
	AIRecommendedAmount decimal.NullDecimal
	ConfidenceScore     *float64
	ValidationFlags     domainclaim.FlagSet
	WeatherSummary      string
	CropHealthSummary   string
	GeospatialSummary   string
	ReceivedAt          time.Time
}

type AssessmentRequestStatus string

const (
	AssessmentOutstanding    AssessmentRequestStatus = "OUTSTANDING"
	AssessmentCompleted      AssessmentRequestStatus = "COMPLETED"
	AssessmentSuperseded     AssessmentRequestStatus = "SUPERSEDED"
	AssessmentDispatchFailed AssessmentRequestStatus = "DISPATCH_FAILED"
)

type AssessmentRequest struct {
	RequestID    string
	ClaimID      string
	ClaimNumber  string
	Attempt      int
	Status       AssessmentRequestStatus
	DispatchedAt time.Time
	CompletedAt  *time.Time
	LastError    *string
}

type ReviewDraft struct {
	ClaimID            string
	VerifiedArea       string
	DamageConfirmation domainclaim.DamageConfirmation
	Comments           string
	FieldPhotoRefs     []string
	UpdatedBy          string
	UpdatedAt          time.Time
}

type DecisionRecord struct {
	ClaimID            string
	DecidedBy          string
	DecidedAt          time.Time
	Outcome            domainclaim.Outcome
	FinalComments      string
	ApprovedAmount     decimal.Decimal
	FraudSuspect       bool
	VerifiedArea       string
	DamageConfirmation domainclaim.DamageConfirmation
	DraftComments      string
	FieldPhotoRefs     []string
}

type PayoutRecord struct {
	ClaimID       string
	Amount        decimal.Decimal
	TransactionID string
	SettledAt     time.Time
	Notes         string
	ProcessedBy   string
	CreatedAt     time.Time
}

type AuditEntry struct {
	EntryID     uint64
	ClaimID     string
	Actor       string
	Action      string
	BeforeState string
	AfterState  string
	Detail      string
	Timestamp   time.Time
}

type ReferenceRepository interface {
	GetPolicy(ctx context.Context, policyID string) (Policy, error)
	GetPolicyForUpdate(ctx context.Context, policyID string) (Policy, error)
	GetFarmer(ctx context.Context, farmerID string) (Farmer, error)
	UpsertPolicy(ctx context.Context, policy Policy) error
	UpsertFarmer(ctx context.Context, farmer Farmer) error
	UpsertInsurer(ctx context.Context, insurer Insurer) error
}

type ClaimReadRepository interface {
	GetClaimByNumber(ctx context.Context, claimNumber string) (Claim, error)
	// GetClaimForUpdate reads the claim under a row lock when the driver supports one.
	GetClaimForUpdate(ctx context.Context, claimNumber string) (Claim, error)
	FindClaimByIdempotencyKey(ctx context.Context, farmerID string, key string) (Claim, bool, error)
	CountOpenClaimsForIncident(ctx context.Context, policyID string, dateOfIncident time.Time) (int64, error)
	ListClaims(ctx context.Context, filter ClaimFilter) ([]Claim, error)
	GetAssessmentReport(ctx context.Context, claimID string) (AssessmentReport, error)
	GetOutstandingAssessmentRequest(ctx context.Context, claimID string) (AssessmentRequest, bool, error)
	ListAssessmentRequests(ctx context.Context, claimID string) ([]AssessmentRequest, error)
	ListStaleAssessmentRequests(ctx context.Context, dispatchedBefore time.Time, limit int) ([]AssessmentRequest, error)
	GetReviewDraft(ctx context.Context, claimID string) (ReviewDraft, bool, error)
	GetDecision(ctx context.Context, claimID string) (DecisionRecord, error)
	GetPayout(ctx context.Context, claimID string) (PayoutRecord, error)
	ListAuditEntries(ctx context.Context, claimID string) ([]AuditEntry, error)
}

type ClaimRepository interface {
	ReferenceRepository
	ClaimReadRepository
	// CreateClaim inserts unless (farmer, idempotency key) already exists; created=false on conflict.
	CreateClaim(ctx context.Context, claim Claim) (bool, error)
	UpdateClaim(ctx context.Context, update ClaimUpdate) error
	SaveAssessmentReport(ctx context.Context, report AssessmentReport) error
	CreateAssessmentRequest(ctx context.Context, request AssessmentRequest) error
	UpdateAssessmentRequest(ctx context.Context, requestID string, status AssessmentRequestStatus, at time.Time, lastError *string) error
	SaveReviewDraft(ctx context.Context, draft ReviewDraft) error
	CreateDecision(ctx context.Context, record DecisionRecord) error
	CreatePayout(ctx context.Context, record PayoutRecord) error
	AppendAudit(ctx context.Context, entry AuditEntry) error
}
