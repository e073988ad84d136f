package claim

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PolicyStatus string

const (
	PolicyActive  PolicyStatus = "Active"
	PolicyExpired PolicyStatus = "Expired"
	PolicyPending PolicyStatus = "Pending"
)

func ParsePolicyStatus(raw string) (PolicyStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return PolicyActive, nil
	case "expired":
		return PolicyExpired, nil
	case "pending":
		return PolicyPending, nil
	default:
		return "", Validation(OpSubmitClaim, "policy.status", fmt.Sprintf("unknown policy status %q", raw))
	}
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WithinWindow reports whether incident falls on or between the start and end dates, by calendar day.
func WithinWindow(start, end, incident time.Time) bool {
	day := Day(incident)
	return !day.Before(Day(start)) && !day.After(Day(end))
}

type IntakePreconditions struct {
	PolicyFound    bool
	PolicyFarmerID string
	PolicyStatus   PolicyStatus
	PolicyStart    time.Time
	PolicyEnd      time.Time

	FarmerID       string
	DateOfIncident time.Time
	EvidenceCount  int
	AmountClaimed  decimal.Decimal
}

// EvaluateIntake checks a submission against its owning policy.
func EvaluateIntake(in IntakePreconditions) error {
	if !in.PolicyFound {
		return Validation(OpSubmitClaim, "policyId", "policy does not exist")
	}
	if strings.TrimSpace(in.PolicyFarmerID) != strings.TrimSpace(in.FarmerID) {
		return Validation(OpSubmitClaim, "policyId", "policy does not belong to farmer")
	}
	if in.PolicyStatus != PolicyActive {
		return Validation(OpSubmitClaim, "policyId", fmt.Sprintf("policy is %s, not Active", in.PolicyStatus))
	}
	if in.DateOfIncident.IsZero() {
		return Validation(OpSubmitClaim, "dateOfIncident", "incident date is required")
	}
	if !WithinWindow(in.PolicyStart, in.PolicyEnd, in.DateOfIncident) {
		return Validation(OpSubmitClaim, "dateOfIncident", fmt.Sprintf(
			"incident date %s is outside policy period %s..%s",
			in.DateOfIncident.Format(time.DateOnly),
			in.PolicyStart.Format(time.DateOnly),
			in.PolicyEnd.Format(time.DateOnly),
		))
	}
	if in.EvidenceCount < 1 {
		return Validation(OpSubmitClaim, "evidenceRefs", "at least one evidence reference is required")
	}
	if !in.AmountClaimed.IsPositive() {
		return Validation(OpSubmitClaim, "amountClaimed", "must be greater than zero")
	}
	return nil
}

type Submission struct {
	PolicyID       string
	FarmerID       string
	DateOfIncident time.Time
	Location       string
	Description    string
	AmountClaimed  decimal.Decimal
	EvidenceRefs   []string
}

// Fingerprint hashes the normalized submission; two retries of the same request hash equally.
func (s Submission) Fingerprint() string {
	canonical := struct {
		PolicyID       string   `json:"policy_id"`
		FarmerID       string   `json:"farmer_id"`
		DateOfIncident string   `json:"date_of_incident"`
		Location       string   `json:"location"`
		Description    string   `json:"description"`
		AmountClaimed  string   `json:"amount_claimed"`
		EvidenceRefs   []string `json:"evidence_refs"`
	}{
		PolicyID:       strings.TrimSpace(s.PolicyID),
		FarmerID:       strings.TrimSpace(s.FarmerID),
		DateOfIncident: Day(s.DateOfIncident).Format(time.DateOnly),
		Location:       strings.TrimSpace(s.Location),
		Description:    strings.TrimSpace(s.Description),
		AmountClaimed:  s.AmountClaimed.StringFixed(4),
		EvidenceRefs:   NormalizeEvidenceRefs(s.EvidenceRefs),
	}

	raw, _ := json.Marshal(canonical)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// NormalizeEvidenceRefs trims references and drops blank or repeated ones; order is preserved.
func NormalizeEvidenceRefs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		ref := strings.TrimSpace(raw)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// FormatClaimNumber builds the human-facing claim id from the creation date and internal id.
func FormatClaimNumber(createdAt time.Time, internalID string) string {
	compact := strings.ToUpper(strings.ReplaceAll(internalID, "-", ""))
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return fmt.Sprintf("CLM-%s-%s", createdAt.UTC().Format("20060102"), compact)
}
