package claim

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Outcome is the verdict of a final decision.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
	OutcomePartial Outcome = "partial"
)

// ParseOutcome accepts approve/reject/partial (and the approved/rejected spellings).
// "pending" is a draft value and never a valid final outcome.
func ParseOutcome(raw string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve", "approved":
		return OutcomeApprove, nil
	case "reject", "rejected":
		return OutcomeReject, nil
	case "partial":
		return OutcomePartial, nil
	case "", "pending":
		return "", Validation(OpSubmitDecision, "outcome", "final outcome is required (approve, reject or partial)")
	default:
		return "", Validation(OpSubmitDecision, "outcome", "unknown outcome "+strconv.Quote(raw))
	}
}

// DamageConfirmation is the reviewer's field verification verdict held in a draft.
type DamageConfirmation string

const (
	DamagePending DamageConfirmation = "pending"
	DamageYes     DamageConfirmation = "yes"
	DamageNo      DamageConfirmation = "no"
	DamagePartial DamageConfirmation = "partial"
)

func ParseDamageConfirmation(raw string) (DamageConfirmation, error) {
	switch DamageConfirmation(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DamagePending:
		return DamagePending, nil
	case DamageYes:
		return DamageYes, nil
	case DamageNo:
		return DamageNo, nil
	case DamagePartial:
		return DamagePartial, nil
	default:
		return "", Validation(OpSaveDraft, "damageConfirmation", "unknown value "+strconv.Quote(raw))
	}
}

// ResolveApprovedAmount returns the amount a decision authorises for settlement.
// Partial decisions must name a reduced amount strictly between zero and the claimed amount.
func ResolveApprovedAmount(outcome Outcome, requested *decimal.Decimal, claimed decimal.Decimal) (decimal.Decimal, error) {
	switch outcome {
	case OutcomeReject:
		return decimal.Zero, nil
	case OutcomeApprove:
		if requested == nil {
			return claimed, nil
		}
		if !requested.IsPositive() || requested.GreaterThan(claimed) {
			return decimal.Zero, Validation(OpSubmitDecision, "approvedAmount", "must be > 0 and <= amount claimed")
		}
		return *requested, nil
	case OutcomePartial:
		if requested == nil {
			return decimal.Zero, Validation(OpSubmitDecision, "approvedAmount", "partial decision requires a reduced amount")
		}
		if !requested.IsPositive() || !requested.LessThan(claimed) {
			return decimal.Zero, Validation(OpSubmitDecision, "approvedAmount", "must be > 0 and < amount claimed")
		}
		return *requested, nil
	default:
		return decimal.Zero, Validation(OpSubmitDecision, "outcome", "final outcome is required")
	}
}
