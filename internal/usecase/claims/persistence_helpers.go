package claims

import (
	"context"
	"errors"
	"strings"

	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/ports"
)

func (s *Service) loadClaim(ctx context.Context, op domainclaim.Operation, claimRef string) (ports.Claim, error) {
	claim, err := s.repo.GetClaimByNumber(ctx, claimRef)
	if err != nil {
		if errors.Is(err, ports.ErrClaimNotFound) {
			return ports.Claim{}, domainclaim.NotFound(op, "claim", claimRef)
		}
		return ports.Claim{}, err
	}
	return claim, nil
}

func (s *Service) lockClaimTx(ctx context.Context, op domainclaim.Operation, claimRef string) (ports.Claim, error) {
	claim, err := s.repo.GetClaimForUpdate(ctx, claimRef)
	if err != nil {
		if errors.Is(err, ports.ErrClaimNotFound) {
			return ports.Claim{}, domainclaim.NotFound(op, "claim", claimRef)
		}
		return ports.Claim{}, err
	}
	return claim, nil
}

type transitionChange struct {
	actor    string
	detail   string
	outcome  *domainclaim.Outcome
	reviewer *string
}

// transitionTx moves claim along op, guarded by the version it was read at, and audits the hop.
func (s *Service) transitionTx(ctx context.Context, op domainclaim.Operation, claim ports.Claim, change transitionChange) (ports.Claim, error) {
	outcome := claim.DecisionOutcome
	if change.outcome != nil {
		outcome = *change.outcome
	}
	next, ok := domainclaim.Next(op, claim.Status, claim.DecisionOutcome)
	if !ok {
		return ports.Claim{}, domainclaim.InvalidState(op, claim.ClaimNumber, claim.Status,
			"not allowed from "+domainclaim.Label(claim.Status, claim.DecisionOutcome))
	}

	now := s.now().UTC()
	update := ports.ClaimUpdate{
		ClaimID:            claim.ID,
		ExpectedVersion:    claim.Version,
		Status:             &next,
		DecisionOutcome:    change.outcome,
		AssignedReviewerID: change.reviewer,
		UpdatedAt:          now,
	}
	if err := s.repo.UpdateClaim(ctx, update); err != nil {
		if errors.Is(err, ports.ErrStaleVersion) {
			return ports.Claim{}, domainclaim.ConcurrentModification(op, claim.ClaimNumber, claim.Status)
		}
		return ports.Claim{}, err
	}

	before := domainclaim.Label(claim.Status, claim.DecisionOutcome)
	claim.Status = next
	claim.DecisionOutcome = outcome
	if change.reviewer != nil {
		claim.AssignedReviewerID = change.reviewer
	}
	claim.Version++
	claim.UpdatedAt = now

	if err := s.auditTx(ctx, claim, change.actor, string(op), before, change.detail); err != nil {
		return ports.Claim{}, err
	}
	return claim, nil
}

// setFraudFlagTx flips the flag under the claim version and audits it.
func (s *Service) setFraudFlagTx(ctx context.Context, op domainclaim.Operation, claim ports.Claim, flagged bool, actor string, detail string) (ports.Claim, error) {
	now := s.now().UTC()
	if err := s.repo.UpdateClaim(ctx, ports.ClaimUpdate{
		ClaimID:         claim.ID,
		ExpectedVersion: claim.Version,
		FraudSuspect:    &flagged,
		UpdatedAt:       now,
	}); err != nil {
		if errors.Is(err, ports.ErrStaleVersion) {
			return ports.Claim{}, domainclaim.ConcurrentModification(op, claim.ClaimNumber, claim.Status)
		}
		return ports.Claim{}, err
	}

	claim.FraudSuspect = flagged
	claim.Version++
	claim.UpdatedAt = now

	label := domainclaim.Label(claim.Status, claim.DecisionOutcome)
	if err := s.auditTx(ctx, claim, actor, string(op), label, detail); err != nil {
		return ports.Claim{}, err
	}
	return claim, nil
}

func (s *Service) auditTx(ctx context.Context, claim ports.Claim, actor string, action string, before string, detail string) error {
	return s.repo.AppendAudit(ctx, ports.AuditEntry{
		ClaimID:     claim.ID,
		Actor:       firstNonEmpty(actor, "system"),
		Action:      action,
		BeforeState: before,
		AfterState:  domainclaim.Label(claim.Status, claim.DecisionOutcome),
		Detail:      strings.TrimSpace(detail),
		Timestamp:   s.now().UTC(),
	})
}
