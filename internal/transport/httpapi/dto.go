package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/ports"
	"cropclaim/internal/usecase/claims"
)

type submitClaimRequest struct {
	IdempotencyKey     string          `json:"idempotencyKey"`
	PolicyID           string          `json:"policyId"`
	FarmerID           string          `json:"farmerId"`
	DateOfIncident     string          `json:"dateOfIncident"`
	LocationOfIncident string          `json:"locationOfIncident"`
	Description        string          `json:"description"`
	AmountClaimed      decimal.Decimal `json:"amountClaimed"`
	EvidenceRefs       []string        `json:"evidenceRefs"`
}

type assignReviewerRequest struct {
	ReviewerID string `json:"reviewerId"`
	Actor      string `json:"actor"`
}

type retryAssessmentRequest struct {
	Operator string `json:"operator"`
}

type saveDraftRequest struct {
	ReviewerID         string   `json:"reviewerId"`
	VerifiedArea       string   `json:"verifiedArea"`
	DamageConfirmation string   `json:"damageConfirmation"`
	Comments           string   `json:"comments"`
	FieldPhotoRefs     []string `json:"fieldPhotoRefs"`
}

type submitDecisionRequest struct {
	ReviewerID     string           `json:"reviewerId"`
	Outcome        string           `json:"outcome"`
	FinalComments  string           `json:"finalComments"`
	ApprovedAmount *decimal.Decimal `json:"approvedAmount"`
	// ExpectedVersion is used when the request carries no If-Match header.
	ExpectedVersion int64 `json:"expectedVersion"`
}

type fraudFlagRequest struct {
	ReviewerID string `json:"reviewerId"`
	Reason     string `json:"reason"`
}

type releaseRequest struct {
	Actor string `json:"actor"`
}

type processPayoutRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId"`
	Notes         string          `json:"notes"`
	Operator      string          `json:"operator"`
}

type claimResponse struct {
	ClaimID            string          `json:"claimId"`
	PolicyID           string          `json:"policyId"`
	FarmerID           string          `json:"farmerId"`
	DateOfIncident     string          `json:"dateOfIncident"`
	LocationOfIncident string          `json:"locationOfIncident"`
	Description        string          `json:"description"`
	AmountClaimed      decimal.Decimal `json:"amountClaimed"`
	EvidenceRefs       []string        `json:"evidenceRefs"`
	Status             string          `json:"status"`
	StatusLabel        string          `json:"statusLabel"`
	DecisionOutcome    string          `json:"decisionOutcome,omitempty"`
	FraudSuspect       bool            `json:"fraudSuspect"`
	AssignedReviewerID *string         `json:"assignedReviewerId"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

type submitClaimResponse struct {
	Claim   claimResponse `json:"claim"`
	Created bool          `json:"created"`
}

type assessmentReportResponse struct {
	RequestID           string              `json:"requestId,omitempty"`
	AIDamagePercent     *float64            `json:"aiDamagePercent"`
	AIRecommendedAmount decimal.NullDecimal `json:"aiRecommendedAmount"`
	ConfidenceScore     *float64            `json:"confidenceScore"`
	ValidationFlags     []string            `json:"validationFlags"`
	WeatherSummary      string              `json:"weatherSummary"`
	CropHealthSummary   string              `json:"cropHealthSummary"`
	GeospatialSummary   string              `json:"geospatialSummary"`
	ReceivedAt          time.Time           `json:"receivedAt"`
}

type assessmentRequestResponse struct {
	RequestID    string     `json:"requestId"`
	Attempt      int        `json:"attempt"`
	Status       string     `json:"status"`
	DispatchedAt time.Time  `json:"dispatchedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	LastError    *string    `json:"lastError,omitempty"`
}

type draftResponse struct {
	VerifiedArea       string    `json:"verifiedArea"`
	DamageConfirmation string    `json:"damageConfirmation"`
	Comments           string    `json:"comments"`
	FieldPhotoRefs     []string  `json:"fieldPhotoRefs"`
	UpdatedBy          string    `json:"updatedBy"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type decisionResponse struct {
	DecidedBy          string          `json:"decidedBy"`
	DecidedAt          time.Time       `json:"decidedAt"`
	Outcome            string          `json:"outcome"`
	FinalComments      string          `json:"finalComments"`
	ApprovedAmount     decimal.Decimal `json:"approvedAmount"`
	FraudSuspect       bool            `json:"fraudSuspect"`
	VerifiedArea       string          `json:"verifiedArea"`
	DamageConfirmation string          `json:"damageConfirmation"`
}

type payoutResponse struct {
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId"`
	SettledAt     time.Time       `json:"settledAt"`
	Notes         string          `json:"notes"`
	ProcessedBy   string          `json:"processedBy"`
}

type auditEntryResponse struct {
	Actor       string    `json:"actor"`
	Action      string    `json:"action"`
	BeforeState string    `json:"beforeState"`
	AfterState  string    `json:"afterState"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type claimDetailResponse struct {
	claimResponse
	Assessment         *assessmentReportResponse   `json:"assessment,omitempty"`
	Draft              *draftResponse              `json:"draft,omitempty"`
	Decision           *decisionResponse           `json:"decision,omitempty"`
	Payout             *payoutResponse             `json:"payout,omitempty"`
	AssessmentRequests []assessmentRequestResponse `json:"assessmentRequests"`
}

type decisionResultResponse struct {
	Claim      claimResponse    `json:"claim"`
	Decision   decisionResponse `json:"decision"`
	HoldReason string           `json:"holdReason,omitempty"`
}

type assessmentReceiptResponse struct {
	Claim        claimResponse `json:"claim"`
	Transitioned bool          `json:"transitioned"`
	SkipReason   string        `json:"skipReason,omitempty"`
}

type payoutResultResponse struct {
	Claim  claimResponse  `json:"claim"`
	Payout payoutResponse `json:"payout"`
}

type fraudFlagResponse struct {
	Claim   claimResponse `json:"claim"`
	Changed bool          `json:"changed"`
}

func toClaimResponse(c ports.Claim) claimResponse {
	refs := c.EvidenceRefs
	if refs == nil {
		refs = []string{}
	}
	return claimResponse{
		ClaimID:            c.ClaimNumber,
		PolicyID:           c.PolicyID,
		FarmerID:           c.FarmerID,
		DateOfIncident:     c.DateOfIncident.Format(time.DateOnly),
		LocationOfIncident: c.LocationOfIncident,
		Description:        c.Description,
		AmountClaimed:      c.AmountClaimed,
		EvidenceRefs:       refs,
		Status:             string(c.Status),
		StatusLabel:        domainclaim.Label(c.Status, c.DecisionOutcome),
		DecisionOutcome:    string(c.DecisionOutcome),
		FraudSuspect:       c.FraudSuspect,
		AssignedReviewerID: c.AssignedReviewerID,
		Version:            c.Version,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

func toReportResponse(r ports.AssessmentReport) assessmentReportResponse {
	flags := []string(r.ValidationFlags)
	if flags == nil {
		flags = []string{}
	}
	return assessmentReportResponse{
		RequestID:           r.RequestID,
		AIDamagePercent:     r.AIDamagePercent,
		AIRecommendedAmount: r.AIRecommendedAmount,
		ConfidenceScore:     r.ConfidenceScore,
		ValidationFlags:     flags,
		WeatherSummary:      r.WeatherSummary,
		CropHealthSummary:   r.CropHealthSummary,
		GeospatialSummary:   r.GeospatialSummary,
		ReceivedAt:          r.ReceivedAt,
	}
}

func toDecisionResponse(d ports.DecisionRecord) decisionResponse {
	return decisionResponse{
		DecidedBy:          d.DecidedBy,
		DecidedAt:          d.DecidedAt,
		Outcome:            string(d.Outcome),
		FinalComments:      d.FinalComments,
		ApprovedAmount:     d.ApprovedAmount,
		FraudSuspect:       d.FraudSuspect,
		VerifiedArea:       d.VerifiedArea,
		DamageConfirmation: string(d.DamageConfirmation),
	}
}

func toPayoutResponse(p ports.PayoutRecord) payoutResponse {
	return payoutResponse{
		Amount:        p.Amount,
		TransactionID: p.TransactionID,
		SettledAt:     p.SettledAt,
		Notes:         p.Notes,
		ProcessedBy:   p.ProcessedBy,
	}
}

func toDetailResponse(d claims.ClaimDetail) claimDetailResponse {
	out := claimDetailResponse{
		claimResponse:      toClaimResponse(d.Claim),
		AssessmentRequests: make([]assessmentRequestResponse, 0, len(d.AssessmentRequests)),
	}
	if d.Report != nil {
		report := toReportResponse(*d.Report)
		out.Assessment = &report
	}
	if d.Draft != nil {
		out.Draft = &draftResponse{
			VerifiedArea:       d.Draft.VerifiedArea,
			DamageConfirmation: string(d.Draft.DamageConfirmation),
			Comments:           d.Draft.Comments,
			FieldPhotoRefs:     d.Draft.FieldPhotoRefs,
			UpdatedBy:          d.Draft.UpdatedBy,
			UpdatedAt:          d.Draft.UpdatedAt,
		}
	}
	if d.Decision != nil {
		decision := toDecisionResponse(*d.Decision)
		out.Decision = &decision
	}
	if d.Payout != nil {
		payout := toPayoutResponse(*d.Payout)
		out.Payout = &payout
	}
	for _, r := range d.AssessmentRequests {
		out.AssessmentRequests = append(out.AssessmentRequests, assessmentRequestResponse{
			RequestID:    r.RequestID,
			Attempt:      r.Attempt,
			Status:       string(r.Status),
			DispatchedAt: r.DispatchedAt,
			CompletedAt:  r.CompletedAt,
			LastError:    r.LastError,
		})
	}
	return out
}
