package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"cropclaim/internal/bootstrap/logging"
	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/errs"
	"cropclaim/internal/ports"
)

type ReleaseForSettlementInput struct {
	ClaimRef string `json:"claimId" validate:"required"`
	Actor    string `json:"actor" validate:"required,max=64"`
}

type ProcessPayoutInput struct {
	ClaimRef      string          `json:"claimId" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId" validate:"max=128"`
	Notes         string          `json:"notes" validate:"max=4096"`
	Operator      string          `json:"operator" validate:"max=64"`
}

type ProcessPayoutResult struct {
	Claim  ports.Claim
	Payout ports.PayoutRecord
}

// routeSettlementTx applies the settlement policy to a DECIDED claim. A held claim is returned
// unchanged together with the hold reason.
func (s *Service) routeSettlementTx(ctx context.Context, claim ports.Claim, approved decimal.Decimal) (ports.Claim, string, error) {
	route := s.cfg.Settlement.Route(domainclaim.SettlementCandidate{
		Outcome:        claim.DecisionOutcome,
		FraudSuspect:   claim.FraudSuspect,
		ApprovedAmount: approved,
	})
	if route.Hold {
		return claim, route.Reason, nil
	}

	detail := "released for payout"
	if route.Next == domainclaim.OpCloseRejected {
		detail = "rejected claim closed"
	}
	routed, err := s.transitionTx(ctx, route.Next, claim, transitionChange{actor: actorSettlementPolicy, detail: detail})
	if err != nil {
		return ports.Claim{}, "", err
	}
	return routed, "", nil
}

func settlementCandidate(claim ports.Claim) domainclaim.SettlementCandidate {
	return domainclaim.SettlementCandidate{Outcome: claim.DecisionOutcome, FraudSuspect: claim.FraudSuspect}
}

// ReleaseForSettlement moves a held approval to PAYOUT_PENDING. When the settlement policy holds
// fraud suspects, the flag must be cleared first.
func (s *Service) ReleaseForSettlement(ctx context.Context, input ReleaseForSettlementInput) (ports.Claim, error) {
	if err := s.ready(ctx); err != nil {
		return ports.Claim{}, err
	}
	if err := s.checkInput(domainclaim.OpReleaseSettlement, input); err != nil {
		return ports.Claim{}, err
	}
	claimRef := normalizeRef(input.ClaimRef)
	actor := strings.TrimSpace(input.Actor)

	var claim ports.Claim
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.lockClaimTx(txCtx, domainclaim.OpReleaseSettlement, claimRef)
		if err != nil {
			return err
		}
		if reason, blocked := s.cfg.Settlement.BlockPayout(settlementCandidate(current)); blocked {
			return domainclaim.InvalidState(domainclaim.OpReleaseSettlement, current.ClaimNumber, current.Status, reason)
		}
		claim, err = s.transitionTx(txCtx, domainclaim.OpReleaseSettlement, current, transitionChange{
			actor:  actor,
			detail: "released for payout by " + actor,
		})
		return err
	}); err != nil {
		return ports.Claim{}, err
	}

	s.cacheClaimStatus(ctx, claim)
	return claim, nil
}

// ProcessPayout disburses through the payment gateway and records the payout. The claim lock is
// held across the gateway call so only one caller can reach the gateway per claim; the payout
// row and the PAID transition commit together or not at all.
func (s *Service) ProcessPayout(ctx context.Context, input ProcessPayoutInput) (ProcessPayoutResult, error) {
	if err := s.ready(ctx); err != nil {
		return ProcessPayoutResult{}, err
	}
	if err := s.checkInput(domainclaim.OpProcessPayout, input); err != nil {
		return ProcessPayoutResult{}, err
	}
	if s.locker == nil {
		return ProcessPayoutResult{}, errors.New("claim locker is required")
	}
	target, err := s.loadClaim(ctx, domainclaim.OpProcessPayout, normalizeRef(input.ClaimRef))
	if err != nil {
		return ProcessPayoutResult{}, err
	}
	// The lock key uses the claim number whichever reference the caller passed.
	claimRef := target.ClaimNumber
	txnID := strings.TrimSpace(input.TransactionID)
	logCtx := s.logContext(ctx, domainclaim.OpProcessPayout, claimRef)

	unlock, err := s.locker.Lock(ctx, "payout:"+claimRef, s.cfg.PayoutLockTTL)
	if err != nil {
		if errors.Is(err, ports.ErrLockNotObtained) {
			return ProcessPayoutResult{}, domainclaim.ConcurrentModification(domainclaim.OpProcessPayout, claimRef, "")
		}
		return ProcessPayoutResult{}, errs.Wrap(err, "lock claim for payout")
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logging.Warn(logCtx, "release payout lock failed", slog.Any("err", errs.Loggable(err)))
		}
	}()

	claim, request, err := s.preparePayout(ctx, claimRef, input.Amount, txnID)
	if err != nil {
		return ProcessPayoutResult{}, err
	}
	if s.gateway == nil {
		return ProcessPayoutResult{}, domainclaim.CollaboratorUnavailable(domainclaim.OpProcessPayout, claim.ClaimNumber,
			"payment gateway", errors.New("no payment gateway configured"))
	}

	receipt, err := s.gateway.Disburse(ctx, request)
	if err != nil {
		logging.Error(logCtx, "disbursement failed", slog.Any("err", errs.Loggable(err)))
		return ProcessPayoutResult{}, domainclaim.PayoutFailed(claim.ClaimNumber, claim.Status, err)
	}
	if err := verifyReceipt(receipt, txnID); err != nil {
		logging.Error(logCtx, "disbursement receipt rejected", slog.Any("err", err))
		return ProcessPayoutResult{}, domainclaim.PayoutFailed(claim.ClaimNumber, claim.Status, err)
	}

	var out ProcessPayoutResult
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.lockClaimTx(txCtx, domainclaim.OpProcessPayout, claimRef)
		if err != nil {
			return err
		}
		paid, err := s.transitionTx(txCtx, domainclaim.OpProcessPayout, current, transitionChange{
			actor:  firstNonEmpty(input.Operator, "system"),
			detail: fmt.Sprintf("paid %s (transaction %s)", request.Amount.StringFixed(2), receipt.TransactionID),
		})
		if err != nil {
			return err
		}

		record := ports.PayoutRecord{
			ClaimID:       paid.ID,
			Amount:        request.Amount,
			TransactionID: receipt.TransactionID,
			SettledAt:     receipt.SettledAt.UTC(),
			Notes:         strings.TrimSpace(input.Notes),
			ProcessedBy:   firstNonEmpty(input.Operator, "system"),
			CreatedAt:     paid.UpdatedAt,
		}
		if err := s.repo.CreatePayout(txCtx, record); err != nil {
			if errors.Is(err, ports.ErrDuplicateRecord) {
				return domainclaim.InvalidState(domainclaim.OpProcessPayout, paid.ClaimNumber, current.Status, "payout already recorded")
			}
			return err
		}
		out = ProcessPayoutResult{Claim: paid, Payout: record}
		return nil
	}); err != nil {
		logging.Error(logCtx, "payout disbursed but not recorded",
			slog.String("transaction_id", receipt.TransactionID),
			slog.Any("err", errs.Loggable(err)),
		)
		return ProcessPayoutResult{}, err
	}

	logging.Info(logCtx, "payout recorded",
		slog.String("amount", out.Payout.Amount.String()),
		slog.String("transaction_id", out.Payout.TransactionID),
	)
	s.cacheClaimStatus(ctx, out.Claim)
	return out, nil
}

// preparePayout checks everything the gateway call depends on before any money moves.
func (s *Service) preparePayout(ctx context.Context, claimRef string, amount decimal.Decimal, txnID string) (ports.Claim, ports.PaymentRequest, error) {
	claim, err := s.loadClaim(ctx, domainclaim.OpProcessPayout, claimRef)
	if err != nil {
		return ports.Claim{}, ports.PaymentRequest{}, err
	}
	if _, ok := domainclaim.Next(domainclaim.OpProcessPayout, claim.Status, claim.DecisionOutcome); !ok {
		return ports.Claim{}, ports.PaymentRequest{}, domainclaim.InvalidState(domainclaim.OpProcessPayout, claim.ClaimNumber, claim.Status,
			"not allowed from "+domainclaim.Label(claim.Status, claim.DecisionOutcome))
	}
	if reason, blocked := s.cfg.Settlement.BlockPayout(settlementCandidate(claim)); blocked {
		return ports.Claim{}, ports.PaymentRequest{}, domainclaim.InvalidState(domainclaim.OpProcessPayout, claim.ClaimNumber, claim.Status, reason)
	}

	policy, err := s.repo.GetPolicy(ctx, claim.PolicyID)
	if err != nil {
		if errors.Is(err, ports.ErrPolicyNotFound) {
			return ports.Claim{}, ports.PaymentRequest{}, domainclaim.NotFound(domainclaim.OpProcessPayout, "policy", claim.PolicyID)
		}
		return ports.Claim{}, ports.PaymentRequest{}, err
	}
	decision, err := s.repo.GetDecision(ctx, claim.ID)
	if err != nil {
		return ports.Claim{}, ports.PaymentRequest{}, err
	}
	if err := domainclaim.CheckPayoutAmount(amount, policy.SumInsured, decision.Outcome, decision.ApprovedAmount); err != nil {
		return ports.Claim{}, ports.PaymentRequest{}, err
	}

	farmer, err := s.repo.GetFarmer(ctx, claim.FarmerID)
	if err != nil {
		if errors.Is(err, ports.ErrFarmerNotFound) {
			return ports.Claim{}, ports.PaymentRequest{}, domainclaim.NotFound(domainclaim.OpProcessPayout, "farmer", claim.FarmerID)
		}
		return ports.Claim{}, ports.PaymentRequest{}, err
	}

	return claim, ports.PaymentRequest{
		ClaimID:   claim.ClaimNumber,
		Amount:    amount,
		Reference: txnID,
		Beneficiary: ports.Beneficiary{
			Name:          firstNonEmpty(farmer.BankAccountName, farmer.Name),
			AccountNumber: farmer.BankAccountNumber,
			BankCode:      farmer.BankCode,
		},
	}, nil
}

func verifyReceipt(receipt ports.PaymentReceipt, expectedTxn string) error {
	got := strings.TrimSpace(receipt.TransactionID)
	switch {
	case got == "":
		return errors.New("receipt has no transaction id")
	case receipt.SettledAt.IsZero():
		return errors.New("receipt has no settlement time")
	case expectedTxn != "" && got != expectedTxn:
		return fmt.Errorf("receipt transaction id %q does not match %q", got, expectedTxn)
	}
	return nil
}
