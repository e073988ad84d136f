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
	"cropclaim/internal/ports"
)

type AssignReviewerInput struct {
	ClaimRef   string `json:"claimId" validate:"required"`
	ReviewerID string `json:"reviewerId" validate:"required,max=64"`
	Actor      string `json:"actor" validate:"max=64"`
}

type SaveDraftInput struct {
	ClaimRef           string   `json:"claimId" validate:"required"`
	ReviewerID         string   `json:"reviewerId" validate:"required,max=64"`
	VerifiedArea       string   `json:"verifiedArea" validate:"max=255"`
	DamageConfirmation string   `json:"damageConfirmation"`
	Comments           string   `json:"comments" validate:"max=8192"`
	FieldPhotoRefs     []string `json:"fieldPhotoRefs" validate:"dive,max=512"`
}

type SubmitDecisionInput struct {
	ClaimRef       string           `json:"claimId" validate:"required"`
	ReviewerID     string           `json:"reviewerId" validate:"required,max=64"`
	Outcome        string           `json:"outcome"`
	FinalComments  string           `json:"finalComments" validate:"max=8192"`
	ApprovedAmount *decimal.Decimal `json:"approvedAmount"`
	// ExpectedVersion is the claim version the reviewer looked at. A decision is never
	// recorded against a claim the reviewer has not seen.
	ExpectedVersion int64 `json:"expectedVersion" validate:"required,min=1"`
}

type SubmitDecisionResult struct {
	Claim    ports.Claim
	Decision ports.DecisionRecord
	// HoldReason is set when the settlement policy kept an approved claim in DECIDED.
	HoldReason string
}

type FraudFlagInput struct {
	ClaimRef   string `json:"claimId" validate:"required"`
	ReviewerID string `json:"reviewerId" validate:"required,max=64"`
	Reason     string `json:"reason" validate:"max=2048"`
}

type FraudFlagResult struct {
	Claim   ports.Claim
	Changed bool
}

func (s *Service) AssignReviewer(ctx context.Context, input AssignReviewerInput) (ports.Claim, error) {
	if err := s.ready(ctx); err != nil {
		return ports.Claim{}, err
	}
	if err := s.checkInput(domainclaim.OpAssignReviewer, input); err != nil {
		return ports.Claim{}, err
	}
	claimRef := normalizeRef(input.ClaimRef)
	reviewer := strings.TrimSpace(input.ReviewerID)

	var claim ports.Claim
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.lockClaimTx(txCtx, domainclaim.OpAssignReviewer, claimRef)
		if err != nil {
			return err
		}
		claim, err = s.transitionTx(txCtx, domainclaim.OpAssignReviewer, current, transitionChange{
			actor:    firstNonEmpty(input.Actor, reviewer),
			detail:   "assigned to " + reviewer,
			reviewer: &reviewer,
		})
		return err
	}); err != nil {
		return ports.Claim{}, err
	}

	s.cacheClaimStatus(ctx, claim)
	return claim, nil
}

// SaveDraft overwrites the review draft. Concurrent saves resolve last-writer-wins.
func (s *Service) SaveDraft(ctx context.Context, input SaveDraftInput) (ports.Claim, error) {
	if err := s.ready(ctx); err != nil {
		return ports.Claim{}, err
	}
	if err := s.checkInput(domainclaim.OpSaveDraft, input); err != nil {
		return ports.Claim{}, err
	}
	confirmation, err := domainclaim.ParseDamageConfirmation(input.DamageConfirmation)
	if err != nil {
		return ports.Claim{}, err
	}
	claimRef := normalizeRef(input.ClaimRef)
	reviewer := strings.TrimSpace(input.ReviewerID)

	var claim ports.Claim
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.lockClaimTx(txCtx, domainclaim.OpSaveDraft, claimRef)
		if err != nil {
			return err
		}

		change := transitionChange{
			actor:  reviewer,
			detail: "draft saved (damage confirmation " + string(confirmation) + ")",
		}
		if current.AssignedReviewerID == nil {
			change.reviewer = &reviewer
		}
		claim, err = s.transitionTx(txCtx, domainclaim.OpSaveDraft, current, change)
		if err != nil {
			return err
		}

		return s.repo.SaveReviewDraft(txCtx, ports.ReviewDraft{
			ClaimID:            claim.ID,
			VerifiedArea:       strings.TrimSpace(input.VerifiedArea),
			DamageConfirmation: confirmation,
			Comments:           strings.TrimSpace(input.Comments),
			FieldPhotoRefs:     domainclaim.NormalizeEvidenceRefs(input.FieldPhotoRefs),
			UpdatedBy:          reviewer,
			UpdatedAt:          claim.UpdatedAt,
		})
	}); err != nil {
		return ports.Claim{}, err
	}

	s.cacheClaimStatus(ctx, claim)
	return claim, nil
}

// SubmitDecision records the immutable decision, moves the claim to DECIDED and lets the
// settlement policy route it onward in the same transaction. A concurrent decision on the
// same claim loses with a concurrent modification error.
func (s *Service) SubmitDecision(ctx context.Context, input SubmitDecisionInput) (SubmitDecisionResult, error) {
	if err := s.ready(ctx); err != nil {
		return SubmitDecisionResult{}, err
	}
	if err := s.checkInput(domainclaim.OpSubmitDecision, input); err != nil {
		return SubmitDecisionResult{}, err
	}
	outcome, err := domainclaim.ParseOutcome(input.Outcome)
	if err != nil {
		return SubmitDecisionResult{}, err
	}
	claimRef := normalizeRef(input.ClaimRef)
	reviewer := strings.TrimSpace(input.ReviewerID)

	var out SubmitDecisionResult
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.loadClaim(txCtx, domainclaim.OpSubmitDecision, claimRef)
		if err != nil {
			return err
		}
		if input.ExpectedVersion != current.Version {
			return domainclaim.ConcurrentModification(domainclaim.OpSubmitDecision, current.ClaimNumber, current.Status)
		}
		if _, ok := domainclaim.Next(domainclaim.OpSubmitDecision, current.Status, current.DecisionOutcome); !ok {
			return domainclaim.InvalidState(domainclaim.OpSubmitDecision, current.ClaimNumber, current.Status,
				"not allowed from "+domainclaim.Label(current.Status, current.DecisionOutcome))
		}

		approved, err := domainclaim.ResolveApprovedAmount(outcome, input.ApprovedAmount, current.AmountClaimed)
		if err != nil {
			return err
		}

		decided, err := s.transitionTx(txCtx, domainclaim.OpSubmitDecision, current, transitionChange{
			actor:   reviewer,
			detail:  decisionDetail(outcome, approved),
			outcome: &outcome,
		})
		if err != nil {
			return err
		}

		draft, _, err := s.repo.GetReviewDraft(txCtx, decided.ID)
		if err != nil {
			return err
		}
		record := ports.DecisionRecord{
			ClaimID:            decided.ID,
			DecidedBy:          reviewer,
			DecidedAt:          decided.UpdatedAt,
			Outcome:            outcome,
			FinalComments:      strings.TrimSpace(input.FinalComments),
			ApprovedAmount:     approved,
			FraudSuspect:       decided.FraudSuspect,
			VerifiedArea:       draft.VerifiedArea,
			DamageConfirmation: draft.DamageConfirmation,
			DraftComments:      draft.Comments,
			FieldPhotoRefs:     draft.FieldPhotoRefs,
		}
		if record.DamageConfirmation == "" {
			record.DamageConfirmation = domainclaim.DamagePending
		}
		if err := s.repo.CreateDecision(txCtx, record); err != nil {
			if errors.Is(err, ports.ErrDuplicateRecord) {
				return domainclaim.ConcurrentModification(domainclaim.OpSubmitDecision, current.ClaimNumber, current.Status)
			}
			return err
		}

		routed, holdReason, err := s.routeSettlementTx(txCtx, decided, approved)
		if err != nil {
			return err
		}
		out = SubmitDecisionResult{Claim: routed, Decision: record, HoldReason: holdReason}
		return nil
	}); err != nil {
		return SubmitDecisionResult{}, err
	}

	logCtx := s.logContext(ctx, domainclaim.OpSubmitDecision, out.Claim.ClaimNumber)
	logging.Info(logCtx, "decision recorded",
		slog.String("outcome", string(outcome)),
		slog.String("status", string(out.Claim.Status)),
		slog.String("hold_reason", out.HoldReason),
	)
	s.cacheClaimStatus(ctx, out.Claim)
	return out, nil
}

// MarkFraudSuspect flags the claim. Flagging an already flagged claim changes nothing.
func (s *Service) MarkFraudSuspect(ctx context.Context, input FraudFlagInput) (FraudFlagResult, error) {
	if err := s.ready(ctx); err != nil {
		return FraudFlagResult{}, err
	}
	if err := s.checkInput(domainclaim.OpMarkFraudSuspect, input); err != nil {
		return FraudFlagResult{}, err
	}
	claimRef := normalizeRef(input.ClaimRef)
	reviewer := strings.TrimSpace(input.ReviewerID)

	var out FraudFlagResult
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.lockClaimTx(txCtx, domainclaim.OpMarkFraudSuspect, claimRef)
		if err != nil {
			return err
		}
		if !domainclaim.CanFlagFraud(current.Status) {
			return domainclaim.InvalidState(domainclaim.OpMarkFraudSuspect, current.ClaimNumber, current.Status,
				"terminal claims cannot be flagged")
		}
		if current.FraudSuspect {
			out = FraudFlagResult{Claim: current}
			return nil
		}

		flagged, err := s.setFraudFlagTx(txCtx, domainclaim.OpMarkFraudSuspect, current, true, reviewer,
			firstNonEmpty(input.Reason, "flagged as fraud suspect"))
		if err != nil {
			return err
		}
		out = FraudFlagResult{Claim: flagged, Changed: true}
		return nil
	}); err != nil {
		return FraudFlagResult{}, err
	}

	if out.Changed {
		logging.Warn(s.logContext(ctx, domainclaim.OpMarkFraudSuspect, out.Claim.ClaimNumber), "claim flagged as fraud suspect",
			slog.String("reviewer", reviewer))
	}
	return out, nil
}

// ClearFraudSuspect removes the flag and resumes the progression the flag was holding back:
// a stored assessment report moves the claim to AI_PROCESSED, and a held approval is routed
// to settlement again.
func (s *Service) ClearFraudSuspect(ctx context.Context, input FraudFlagInput) (FraudFlagResult, error) {
	if err := s.ready(ctx); err != nil {
		return FraudFlagResult{}, err
	}
	if err := s.checkInput(domainclaim.OpClearFraudSuspect, input); err != nil {
		return FraudFlagResult{}, err
	}
	claimRef := normalizeRef(input.ClaimRef)
	reviewer := strings.TrimSpace(input.ReviewerID)

	var out FraudFlagResult
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.lockClaimTx(txCtx, domainclaim.OpClearFraudSuspect, claimRef)
		if err != nil {
			return err
		}
		if !domainclaim.CanFlagFraud(current.Status) {
			return domainclaim.InvalidState(domainclaim.OpClearFraudSuspect, current.ClaimNumber, current.Status,
				"terminal claims cannot be unflagged")
		}
		if !current.FraudSuspect {
			out = FraudFlagResult{Claim: current}
			return nil
		}

		cleared, err := s.setFraudFlagTx(txCtx, domainclaim.OpClearFraudSuspect, current, false, reviewer,
			firstNonEmpty(input.Reason, "fraud suspicion cleared"))
		if err != nil {
			return err
		}

		switch {
		case cleared.Status.AwaitingAssessment():
			if _, err := s.repo.GetAssessmentReport(txCtx, cleared.ID); err != nil {
				if errors.Is(err, ports.ErrReportNotFound) {
					break
				}
				return err
			}
			cleared, err = s.transitionTx(txCtx, domainclaim.OpAssessmentArrived, cleared, transitionChange{
				actor:  reviewer,
				detail: "assessment report applied after fraud flag cleared",
			})
			if err != nil {
				return err
			}
		case cleared.Status == domainclaim.StatusDecided:
			decision, err := s.repo.GetDecision(txCtx, cleared.ID)
			if err != nil {
				return err
			}
			cleared, _, err = s.routeSettlementTx(txCtx, cleared, decision.ApprovedAmount)
			if err != nil {
				return err
			}
		}

		out = FraudFlagResult{Claim: cleared, Changed: true}
		return nil
	}); err != nil {
		return FraudFlagResult{}, err
	}

	if out.Changed {
		s.cacheClaimStatus(ctx, out.Claim)
		logging.Info(s.logContext(ctx, domainclaim.OpClearFraudSuspect, out.Claim.ClaimNumber), "fraud flag cleared",
			slog.String("reviewer", reviewer), slog.String("status", string(out.Claim.Status)))
	}
	return out, nil
}

func decisionDetail(outcome domainclaim.Outcome, approved decimal.Decimal) string {
	if outcome == domainclaim.OutcomeReject {
		return "decision: reject"
	}
	return fmt.Sprintf("decision: %s, approved amount %s", outcome, approved.StringFixed(2))
}
