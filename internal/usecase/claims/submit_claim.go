package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cropclaim/internal/bootstrap/logging"
	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/ports"
)

type SubmitClaimInput struct {
	IdempotencyKey string          `json:"idempotencyKey" validate:"required,max=255"`
	PolicyID       string          `json:"policyId" validate:"required,max=64"`
	FarmerID       string          `json:"farmerId" validate:"required,max=64"`
	DateOfIncident time.Time       `json:"dateOfIncident" validate:"required"`
	Location       string          `json:"locationOfIncident" validate:"max=1024"`
	Description    string          `json:"description" validate:"max=8192"`
	AmountClaimed  decimal.Decimal `json:"amountClaimed"`
	EvidenceRefs   []string        `json:"evidenceRefs" validate:"required,min=1,dive,max=512"`
}

type SubmitClaimResult struct {
	Claim   ports.Claim
	Created bool
}

// SubmitClaim creates a claim exactly once per (farmer, idempotency key). A retry with the
// same payload returns the stored claim; a retry with a different payload is a conflict.
func (s *Service) SubmitClaim(ctx context.Context, input SubmitClaimInput) (SubmitClaimResult, error) {
	if err := s.ready(ctx); err != nil {
		return SubmitClaimResult{}, err
	}

	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	input.PolicyID = strings.TrimSpace(input.PolicyID)
	input.FarmerID = strings.TrimSpace(input.FarmerID)
	input.EvidenceRefs = domainclaim.NormalizeEvidenceRefs(input.EvidenceRefs)
	if err := s.checkInput(domainclaim.OpSubmitClaim, input); err != nil {
		return SubmitClaimResult{}, err
	}

	fingerprint := domainclaim.Submission{
		PolicyID:       input.PolicyID,
		FarmerID:       input.FarmerID,
		DateOfIncident: input.DateOfIncident,
		Location:       input.Location,
		Description:    input.Description,
		AmountClaimed:  input.AmountClaimed,
		EvidenceRefs:   input.EvidenceRefs,
	}.Fingerprint()

	logCtx := logging.WithAttrs(s.logContext(ctx, domainclaim.OpSubmitClaim, ""),
		slog.String("farmer", input.FarmerID), slog.String("policy", input.PolicyID))

	existing, found, err := s.repo.FindClaimByIdempotencyKey(ctx, input.FarmerID, input.IdempotencyKey)
	if err != nil {
		return SubmitClaimResult{}, err
	}
	if found {
		return replayedClaim(existing, fingerprint)
	}

	var created ports.Claim
	var request ports.AssessmentRequest
	inserted := false
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		policy, err := s.repo.GetPolicyForUpdate(txCtx, input.PolicyID)
		policyFound := true
		if err != nil {
			if !errors.Is(err, ports.ErrPolicyNotFound) {
				return err
			}
			policyFound = false
		}

		if err := domainclaim.EvaluateIntake(domainclaim.IntakePreconditions{
			PolicyFound:    policyFound,
			PolicyFarmerID: policy.FarmerID,
			PolicyStatus:   policy.Status,
			PolicyStart:    policy.StartDate,
			PolicyEnd:      policy.EndDate,
			FarmerID:       input.FarmerID,
			DateOfIncident: input.DateOfIncident,
			EvidenceCount:  len(input.EvidenceRefs),
			AmountClaimed:  input.AmountClaimed,
		}); err != nil {
			return err
		}

		if !s.cfg.AllowOverlappingClaims {
			// A replay of this key must not trip the overlap rule.
			if _, replay, err := s.repo.FindClaimByIdempotencyKey(txCtx, input.FarmerID, input.IdempotencyKey); err != nil {
				return err
			} else if !replay {
				open, err := s.repo.CountOpenClaimsForIncident(txCtx, input.PolicyID, input.DateOfIncident)
				if err != nil {
					return err
				}
				if open > 0 {
					return domainclaim.Validation(domainclaim.OpSubmitClaim, "dateOfIncident", fmt.Sprintf(
						"an open claim already covers policy %s on %s",
						input.PolicyID, domainclaim.Day(input.DateOfIncident).Format(time.DateOnly),
					))
				}
			}
		}

		now := s.now().UTC()
		id := s.newID()
		claim := ports.Claim{
			ID:                 id,
			ClaimNumber:        domainclaim.FormatClaimNumber(now, id),
			PolicyID:           input.PolicyID,
			FarmerID:           input.FarmerID,
			DateOfIncident:     domainclaim.Day(input.DateOfIncident),
			LocationOfIncident: strings.TrimSpace(input.Location),
			Description:        strings.TrimSpace(input.Description),
			AmountClaimed:      input.AmountClaimed,
			EvidenceRefs:       input.EvidenceRefs,
			Status:             domainclaim.StatusSubmitted,
			IdempotencyKey:     input.IdempotencyKey,
			PayloadHash:        fingerprint,
			Version:            1,
			CreatedAt:          now,
			UpdatedAt:          now,
		}

		ok, err := s.repo.CreateClaim(txCtx, claim)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		inserted = true
		created = claim

		if err := s.auditTx(txCtx, claim, input.FarmerID, string(domainclaim.OpSubmitClaim), "", "claim submitted"); err != nil {
			return err
		}

		request, err = s.openAssessmentRequestTx(txCtx, claim, 1)
		return err
	}); err != nil {
		return SubmitClaimResult{}, err
	}

	if !inserted {
		// Lost the insert race: the winner has committed by now.
		winner, found, err := s.repo.FindClaimByIdempotencyKey(ctx, input.FarmerID, input.IdempotencyKey)
		if err != nil {
			return SubmitClaimResult{}, err
		}
		if !found {
			return SubmitClaimResult{}, domainclaim.ConcurrentModification(domainclaim.OpSubmitClaim, "", "")
		}
		return replayedClaim(winner, fingerprint)
	}

	logCtx = logging.WithAttrs(logCtx, slog.String("claim", created.ClaimNumber))
	logging.Info(logCtx, "claim submitted")
	s.cacheClaimStatus(ctx, created)
	s.dispatchAssessment(logCtx, created, request)

	return SubmitClaimResult{Claim: created, Created: true}, nil
}

func replayedClaim(existing ports.Claim, fingerprint string) (SubmitClaimResult, error) {
	if existing.PayloadHash != fingerprint {
		return SubmitClaimResult{}, domainclaim.Conflict(domainclaim.OpSubmitClaim, existing.ClaimNumber,
			"idempotency key was already used with a different payload")
	}
	return SubmitClaimResult{Claim: existing, Created: false}, nil
}
