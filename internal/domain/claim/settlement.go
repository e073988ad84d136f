package claim

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SettlementPolicy decides whether a freshly decided claim may move to payout on its own.
// It is the extra-scrutiny hook for fraud-suspect claims and large payouts.
type SettlementPolicy struct {
	HoldFraudSuspects  bool
	ManualReleaseAbove decimal.NullDecimal
}

func DefaultSettlementPolicy() SettlementPolicy {
	return SettlementPolicy{HoldFraudSuspects: true}
}

type SettlementCandidate struct {
	Outcome        Outcome
	FraudSuspect   bool
	ApprovedAmount decimal.Decimal
}

type SettlementRoute struct {
	Next   Operation
	Hold   bool
	Reason string
}

// Route picks the post-decision hop. Rejections always close; approvals are released
// unless the policy asks for a manual release.
func (p SettlementPolicy) Route(c SettlementCandidate) SettlementRoute {
	if c.Outcome == OutcomeReject {
		return SettlementRoute{Next: OpCloseRejected}
	}
	if c.FraudSuspect && p.HoldFraudSuspects {
		return SettlementRoute{Next: OpReleaseSettlement, Hold: true, Reason: "fraud suspect"}
	}
	if p.ManualReleaseAbove.Valid && c.ApprovedAmount.GreaterThan(p.ManualReleaseAbove.Decimal) {
		return SettlementRoute{
			Next:   OpReleaseSettlement,
			Hold:   true,
			Reason: fmt.Sprintf("approved amount above %s", p.ManualReleaseAbove.Decimal.String()),
		}
	}
	return SettlementRoute{Next: OpReleaseSettlement}
}

// BlockPayout reports whether the policy keeps an approved claim away from release and
// disbursement. Only held fraud suspects are blocked; a large amount needs a manual release
// but may be paid once released.
func (p SettlementPolicy) BlockPayout(c SettlementCandidate) (string, bool) {
	if c.FraudSuspect && p.HoldFraudSuspects {
		return "fraud suspicion must be cleared first", true
	}
	return "", false
}

// CheckPayoutAmount validates a disbursement against the policy cover and the decision.
func CheckPayoutAmount(amount decimal.Decimal, sumInsured decimal.Decimal, outcome Outcome, approved decimal.Decimal) error {
	if !amount.IsPositive() {
		return Validation(OpProcessPayout, "amount", "must be greater than zero")
	}
	if amount.GreaterThan(sumInsured) {
		return Validation(OpProcessPayout, "amount", fmt.Sprintf("exceeds policy sum insured %s", sumInsured.String()))
	}
	if outcome == OutcomePartial && amount.GreaterThan(approved) {
		return Validation(OpProcessPayout, "amount", fmt.Sprintf("exceeds partially approved amount %s", approved.String()))
	}
	return nil
}
