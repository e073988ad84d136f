package claims

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/ports"
)

type fixedReceiptGateway struct {
	receipt ports.PaymentReceipt
	calls   int
}

func (g *fixedReceiptGateway) Disburse(context.Context, ports.PaymentRequest) (ports.PaymentReceipt, error) {
	g.calls++
	return g.receipt, nil
}

func TestProcessPayoutConcurrentCallsPayOnce(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	claim := f.claimInStatus(t, "k1", domainclaim.StatusPayoutPending)

	const callers = 5
	var wg sync.WaitGroup
	errList := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errList[i] = f.svc.ProcessPayout(ctx, ProcessPayoutInput{
				ClaimRef: claim.ClaimNumber,
				Amount:   decimal.RequireFromString("45000"),
			})
		}(i)
	}
	wg.Wait()

	paid := 0
	for i, err := range errList {
		switch {
		case err == nil:
			paid++
		case errors.Is(err, domainclaim.ErrInvalidState):
		default:
			t.Fatalf("ProcessPayout()[%d] error = %v", i, err)
		}
	}
	if paid != 1 {
		t.Fatalf("successful payouts = %d, want 1", paid)
	}
	if f.gateway.Disbursed() != 1 {
		t.Fatalf("gateway disbursed %d claims, want 1", f.gateway.Disbursed())
	}
}

func TestProcessPayoutGatewayFailureLeavesClaimPending(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	claim := f.claimInStatus(t, "k1", domainclaim.StatusPayoutPending)
	f.gateway.FailNext(errors.New("bank timeout"))

	input := ProcessPayoutInput{ClaimRef: claim.ClaimNumber, Amount: decimal.RequireFromString("45000"), TransactionID: "TXN9"}
	_, err := f.svc.ProcessPayout(ctx, input)
	requireKind(t, err, domainclaim.ErrPayoutFailed)
	requireKind(t, err, domainclaim.ErrCollaboratorUnavailable)

	after := f.status(t, claim.ClaimNumber)
	if after.Status != domainclaim.StatusPayoutPending || after.Version != claim.Version {
		t.Fatalf("claim after failure = %s v%d, want PAYOUT_PENDING v%d", after.Status, after.Version, claim.Version)
	}
	if _, err := f.svc.GetPayout(ctx, claim.ClaimNumber); !errors.Is(err, domainclaim.ErrNotFound) {
		t.Fatalf("GetPayout() error = %v, want not found", err)
	}

	res, err := f.svc.ProcessPayout(ctx, input)
	if err != nil {
		t.Fatalf("ProcessPayout(retry) error = %v", err)
	}
	if res.Claim.Status != domainclaim.StatusPaid || res.Payout.TransactionID != "TXN9" {
		t.Fatalf("ProcessPayout(retry) = %+v", res)
	}
}

func TestProcessPayoutAmountLimits(t *testing.T) {
	f := setupFixture(t, func(cfg *Config) { cfg.AllowOverlappingClaims = true })
	ctx := context.Background()

	approved := f.claimInStatus(t, "k1", domainclaim.StatusPayoutPending)
	for _, amount := range []string{"0", "-5", "60000.01"} {
		_, err := f.svc.ProcessPayout(ctx, ProcessPayoutInput{ClaimRef: approved.ClaimNumber, Amount: decimal.RequireFromString(amount)})
		requireKind(t, err, domainclaim.ErrValidation)
	}
	if _, err := f.svc.ProcessPayout(ctx, ProcessPayoutInput{ClaimRef: approved.ClaimNumber, Amount: decimal.RequireFromString("60000")}); err != nil {
		t.Fatalf("ProcessPayout(sum insured) error = %v", err)
	}

	partial := f.claimInStatus(t, "k2", domainclaim.StatusUnderReview)
	reduced := decimal.RequireFromString("30000")
	res, err := f.svc.SubmitDecision(ctx, SubmitDecisionInput{
		ClaimRef:        partial.ClaimNumber,
		ReviewerID:      "R-1",
		Outcome:         "partial",
		ApprovedAmount:  &reduced,
		ExpectedVersion: partial.Version,
	})
	if err != nil {
		t.Fatalf("SubmitDecision(partial) error = %v", err)
	}
	if res.Claim.Status != domainclaim.StatusPayoutPending {
		t.Fatalf("partial status = %s, want PAYOUT_PENDING", res.Claim.Status)
	}

	_, err = f.svc.ProcessPayout(ctx, ProcessPayoutInput{ClaimRef: partial.ClaimNumber, Amount: decimal.RequireFromString("30000.50")})
	requireKind(t, err, domainclaim.ErrValidation)
	if _, err := f.svc.ProcessPayout(ctx, ProcessPayoutInput{ClaimRef: partial.ClaimNumber, Amount: reduced}); err != nil {
		t.Fatalf("ProcessPayout(partial) error = %v", err)
	}
}

func TestProcessPayoutRejectsUntrustworthyReceipt(t *testing.T) {
	settled := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		receipt ports.PaymentReceipt
		txn     string
	}{
		{name: "empty transaction id", receipt: ports.PaymentReceipt{SettledAt: settled}},
		{name: "missing settlement time", receipt: ports.PaymentReceipt{TransactionID: "TXN1"}},
		{name: "different transaction id", receipt: ports.PaymentReceipt{TransactionID: "TXN2", SettledAt: settled}, txn: "TXN1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupFixture(t)
			gateway := &fixedReceiptGateway{receipt: tt.receipt}
			f.svc.gateway = gateway
			claim := f.claimInStatus(t, "k1", domainclaim.StatusPayoutPending)

			_, err := f.svc.ProcessPayout(context.Background(), ProcessPayoutInput{
				ClaimRef:      claim.ClaimNumber,
				Amount:        decimal.RequireFromString("100"),
				TransactionID: tt.txn,
			})
			requireKind(t, err, domainclaim.ErrPayoutFailed)
			if gateway.calls != 1 {
				t.Fatalf("gateway calls = %d, want 1", gateway.calls)
			}
			if got := f.status(t, claim.ClaimNumber).Status; got != domainclaim.StatusPayoutPending {
				t.Fatalf("status = %s, want PAYOUT_PENDING", got)
			}
		})
	}
}

func TestProcessPayoutWithoutGatewayIsUnavailable(t *testing.T) {
	f := setupFixture(t)
	f.svc.gateway = nil
	claim := f.claimInStatus(t, "k1", domainclaim.StatusPayoutPending)

	_, err := f.svc.ProcessPayout(context.Background(), ProcessPayoutInput{ClaimRef: claim.ClaimNumber, Amount: decimal.RequireFromString("100")})
	requireKind(t, err, domainclaim.ErrCollaboratorUnavailable)
}

func TestProcessPayoutBlockedWhileFlagged(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	claim := f.claimInStatus(t, "k1", domainclaim.StatusPayoutPending)

	if _, err := f.svc.MarkFraudSuspect(ctx, FraudFlagInput{ClaimRef: claim.ClaimNumber, ReviewerID: "R-1"}); err != nil {
		t.Fatalf("MarkFraudSuspect() error = %v", err)
	}
	_, err := f.svc.ProcessPayout(ctx, ProcessPayoutInput{ClaimRef: claim.ClaimNumber, Amount: decimal.RequireFromString("100")})
	requireKind(t, err, domainclaim.ErrInvalidState)
	if f.gateway.Disbursed() != 0 {
		t.Fatalf("gateway called for a flagged claim")
	}
}

func TestFraudSuspectPaidWhenPolicyDoesNotHold(t *testing.T) {
	f := setupFixture(t, func(cfg *Config) {
		cfg.Settlement.HoldFraudSuspects = false
	})
	ctx := context.Background()
	claim := f.claimInStatus(t, "k1", domainclaim.StatusUnderReview)

	if _, err := f.svc.MarkFraudSuspect(ctx, FraudFlagInput{ClaimRef: claim.ClaimNumber, ReviewerID: "R-1"}); err != nil {
		t.Fatalf("MarkFraudSuspect() error = %v", err)
	}
	res := f.decide(t, claim.ClaimNumber, "approve")
	if res.Claim.Status != domainclaim.StatusPayoutPending || !res.Claim.FraudSuspect {
		t.Fatalf("decided = %s fraud=%v, want PAYOUT_PENDING fraud=true", res.Claim.Status, res.Claim.FraudSuspect)
	}

	paid, err := f.svc.ProcessPayout(ctx, ProcessPayoutInput{ClaimRef: claim.ClaimNumber, Amount: decimal.RequireFromString("100")})
	if err != nil {
		t.Fatalf("ProcessPayout() error = %v", err)
	}
	if paid.Claim.Status != domainclaim.StatusPaid {
		t.Fatalf("status = %s, want PAID", paid.Claim.Status)
	}
	if f.gateway.Disbursed() != 1 {
		t.Fatalf("disbursements = %d, want 1", f.gateway.Disbursed())
	}
}

func TestFlaggedReleaseAllowedWhenPolicyDoesNotHold(t *testing.T) {
	f := setupFixture(t, func(cfg *Config) {
		cfg.Settlement.HoldFraudSuspects = false
		cfg.Settlement.ManualReleaseAbove = decimal.NewNullDecimal(decimal.Zero)
	})
	ctx := context.Background()
	claim := f.claimInStatus(t, "k1", domainclaim.StatusUnderReview)

	if _, err := f.svc.MarkFraudSuspect(ctx, FraudFlagInput{ClaimRef: claim.ClaimNumber, ReviewerID: "R-1"}); err != nil {
		t.Fatalf("MarkFraudSuspect() error = %v", err)
	}
	if res := f.decide(t, claim.ClaimNumber, "approve"); res.Claim.Status != domainclaim.StatusDecided {
		t.Fatalf("decided status = %s, want DECIDED held for release", res.Claim.Status)
	}

	released, err := f.svc.ReleaseForSettlement(ctx, ReleaseForSettlementInput{ClaimRef: claim.ClaimNumber, Actor: "supervisor"})
	if err != nil {
		t.Fatalf("ReleaseForSettlement() error = %v", err)
	}
	if released.Status != domainclaim.StatusPayoutPending || !released.FraudSuspect {
		t.Fatalf("released = %s fraud=%v, want PAYOUT_PENDING fraud=true", released.Status, released.FraudSuspect)
	}
}

func TestProcessPayoutByInternalID(t *testing.T) {
	f := setupFixture(t)
	claim := f.claimInStatus(t, "k1", domainclaim.StatusPayoutPending)

	paid, err := f.svc.ProcessPayout(context.Background(), ProcessPayoutInput{ClaimRef: claim.ID, Amount: decimal.RequireFromString("100")})
	if err != nil {
		t.Fatalf("ProcessPayout(id) error = %v", err)
	}
	if paid.Claim.ClaimNumber != claim.ClaimNumber || paid.Claim.Status != domainclaim.StatusPaid {
		t.Fatalf("paid = %s/%s, want %s/PAID", paid.Claim.ClaimNumber, paid.Claim.Status, claim.ClaimNumber)
	}
}
