package claim

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseOutcome(t *testing.T) {
	for raw, want := range map[string]Outcome{"approve": OutcomeApprove, "Rejected": OutcomeReject, " partial ": OutcomePartial} {
		got, err := ParseOutcome(raw)
		if err != nil {
			t.Fatalf("ParseOutcome(%q) error = %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseOutcome(%q) = %s, want %s", raw, got, want)
		}
	}

	for _, raw := range []string{"", "pending", "maybe"} {
		if _, err := ParseOutcome(raw); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseOutcome(%q) error = %v, want ErrValidation", raw, err)
		}
	}
}

func TestResolveApprovedAmount(t *testing.T) {
	claimed := decimal.NewFromInt(50000)
	reduced := decimal.NewFromInt(30000)
	tooMuch := decimal.NewFromInt(50000)

	got, err := ResolveApprovedAmount(OutcomeApprove, nil, claimed)
	if err != nil || !got.Equal(claimed) {
		t.Fatalf("ResolveApprovedAmount(approve) = %s, %v", got, err)
	}

	got, err = ResolveApprovedAmount(OutcomePartial, &reduced, claimed)
	if err != nil || !got.Equal(reduced) {
		t.Fatalf("ResolveApprovedAmount(partial) = %s, %v", got, err)
	}

	if _, err := ResolveApprovedAmount(OutcomePartial, nil, claimed); !errors.Is(err, ErrValidation) {
		t.Fatalf("ResolveApprovedAmount(partial, nil) error = %v", err)
	}
	if _, err := ResolveApprovedAmount(OutcomePartial, &tooMuch, claimed); !errors.Is(err, ErrValidation) {
		t.Fatalf("ResolveApprovedAmount(partial, full) error = %v", err)
	}

	got, err = ResolveApprovedAmount(OutcomeReject, nil, claimed)
	if err != nil || !got.IsZero() {
		t.Fatalf("ResolveApprovedAmount(reject) = %s, %v", got, err)
	}
}

func TestSettlementPolicyRoute(t *testing.T) {
	policy := DefaultSettlementPolicy()

	if route := policy.Route(SettlementCandidate{Outcome: OutcomeReject, FraudSuspect: true}); route.Next != OpCloseRejected || route.Hold {
		t.Fatalf("Route(reject) = %+v", route)
	}
	if route := policy.Route(SettlementCandidate{Outcome: OutcomeApprove}); route.Next != OpReleaseSettlement || route.Hold {
		t.Fatalf("Route(approve) = %+v", route)
	}
	if route := policy.Route(SettlementCandidate{Outcome: OutcomeApprove, FraudSuspect: true}); !route.Hold {
		t.Fatalf("Route(approve, fraud) = %+v, want hold", route)
	}

	policy.HoldFraudSuspects = false
	policy.ManualReleaseAbove = decimal.NewNullDecimal(decimal.NewFromInt(100000))
	if route := policy.Route(SettlementCandidate{Outcome: OutcomeApprove, FraudSuspect: true, ApprovedAmount: decimal.NewFromInt(1000)}); route.Hold {
		t.Fatalf("Route(approve, fraud, no hold) = %+v", route)
	}
	if route := policy.Route(SettlementCandidate{Outcome: OutcomePartial, ApprovedAmount: decimal.NewFromInt(150000)}); !route.Hold {
		t.Fatalf("Route(partial, large) = %+v, want hold", route)
	}
}

func TestSettlementPolicyBlockPayout(t *testing.T) {
	policy := DefaultSettlementPolicy()
	if reason, blocked := policy.BlockPayout(SettlementCandidate{Outcome: OutcomeApprove, FraudSuspect: true}); !blocked || reason == "" {
		t.Fatalf("BlockPayout(fraud) = %q, %v, want blocked", reason, blocked)
	}
	if _, blocked := policy.BlockPayout(SettlementCandidate{Outcome: OutcomeApprove}); blocked {
		t.Fatalf("BlockPayout(clean) blocked")
	}

	policy.HoldFraudSuspects = false
	policy.ManualReleaseAbove = decimal.NewNullDecimal(decimal.Zero)
	if _, blocked := policy.BlockPayout(SettlementCandidate{Outcome: OutcomeApprove, FraudSuspect: true, ApprovedAmount: decimal.NewFromInt(500)}); blocked {
		t.Fatalf("BlockPayout(fraud, not held) blocked")
	}
}

func TestCheckPayoutAmount(t *testing.T) {
	sum := decimal.NewFromInt(80000)
	approved := decimal.NewFromInt(30000)

	if err := CheckPayoutAmount(decimal.NewFromInt(45000), sum, OutcomeApprove, approved); err != nil {
		t.Fatalf("CheckPayoutAmount() error = %v", err)
	}
	for _, tc := range []struct {
		amount  int64
		outcome Outcome
	}{{0, OutcomeApprove}, {-5, OutcomeApprove}, {80001, OutcomeApprove}, {30001, OutcomePartial}} {
		if err := CheckPayoutAmount(decimal.NewFromInt(tc.amount), sum, tc.outcome, approved); !errors.Is(err, ErrValidation) {
			t.Fatalf("CheckPayoutAmount(%d, %s) error = %v, want ErrValidation", tc.amount, tc.outcome, err)
		}
	}
}
