package claims

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"cropclaim/internal/bootstrap/logging"
	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/errs"
	"cropclaim/internal/ports"
)

// ClaimDetail is a claim together with everything recorded against it. Records that do not
// exist yet are nil.
type ClaimDetail struct {
	Claim              ports.Claim
	Report             *ports.AssessmentReport
	Draft              *ports.ReviewDraft
	Decision           *ports.DecisionRecord
	Payout             *ports.PayoutRecord
	AssessmentRequests []ports.AssessmentRequest
}

type ListClaimsInput struct {
	Statuses []string `json:"statuses"`
	FarmerID string   `json:"farmerId" validate:"max=64"`
	PolicyID string   `json:"policyId" validate:"max=64"`
	Limit    int      `json:"limit" validate:"min=0,max=1000"`
}

func (s *Service) GetClaim(ctx context.Context, claimRef string) (ports.Claim, error) {
	if err := s.ready(ctx); err != nil {
		return ports.Claim{}, err
	}
	return s.loadClaim(ctx, domainclaim.OpGetClaim, normalizeRef(claimRef))
}

func (s *Service) GetClaimDetail(ctx context.Context, claimRef string) (ClaimDetail, error) {
	if err := s.ready(ctx); err != nil {
		return ClaimDetail{}, err
	}
	claim, err := s.loadClaim(ctx, domainclaim.OpGetClaim, normalizeRef(claimRef))
	if err != nil {
		return ClaimDetail{}, err
	}

	detail := ClaimDetail{Claim: claim}
	report, err := s.repo.GetAssessmentReport(ctx, claim.ID)
	switch {
	case err == nil:
		detail.Report = &report
	case !errors.Is(err, ports.ErrReportNotFound):
		return ClaimDetail{}, err
	}

	draft, found, err := s.repo.GetReviewDraft(ctx, claim.ID)
	if err != nil {
		return ClaimDetail{}, err
	}
	if found {
		detail.Draft = &draft
	}

	decision, err := s.repo.GetDecision(ctx, claim.ID)
	switch {
	case err == nil:
		detail.Decision = &decision
	case !errors.Is(err, ports.ErrDecisionNotFound):
		return ClaimDetail{}, err
	}

	payout, err := s.repo.GetPayout(ctx, claim.ID)
	switch {
	case err == nil:
		detail.Payout = &payout
	case !errors.Is(err, ports.ErrPayoutNotFound):
		return ClaimDetail{}, err
	}

	detail.AssessmentRequests, err = s.repo.ListAssessmentRequests(ctx, claim.ID)
	if err != nil {
		return ClaimDetail{}, err
	}
	return detail, nil
}

// GetClaimStatus answers from the status cache and falls back to the store on a miss.
func (s *Service) GetClaimStatus(ctx context.Context, claimRef string) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	claimRef = normalizeRef(claimRef)
	key := cacheClaimStatusKey(claimRef)

	if s.cache != nil {
		value, found, err := s.cache.Get(ctx, key)
		if err != nil {
			logging.Warn(ctx, "cache read skipped", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
		} else if found && value != "" {
			return value, nil
		}
	}

	claim, err := s.loadClaim(ctx, domainclaim.OpGetClaim, claimRef)
	if err != nil {
		return "", err
	}
	s.cacheClaimStatus(ctx, claim)
	return domainclaim.Label(claim.Status, claim.DecisionOutcome), nil
}

func (s *Service) ListClaims(ctx context.Context, input ListClaimsInput) ([]ports.Claim, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := s.checkInput(domainclaim.OpGetClaim, input); err != nil {
		return nil, err
	}

	filter := ports.ClaimFilter{
		FarmerID: strings.TrimSpace(input.FarmerID),
		PolicyID: strings.TrimSpace(input.PolicyID),
		Limit:    input.Limit,
	}
	for _, raw := range input.Statuses {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, err := domainclaim.ParseStatus(raw)
		if err != nil {
			return nil, domainclaim.Validation(domainclaim.OpGetClaim, "status", "unknown status "+raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}
	return s.repo.ListClaims(ctx, filter)
}

func (s *Service) GetAssessmentReport(ctx context.Context, claimRef string) (ports.AssessmentReport, error) {
	claim, err := s.GetClaim(ctx, claimRef)
	if err != nil {
		return ports.AssessmentReport{}, err
	}
	report, err := s.repo.GetAssessmentReport(ctx, claim.ID)
	if errors.Is(err, ports.ErrReportNotFound) {
		return ports.AssessmentReport{}, domainclaim.NotFound(domainclaim.OpGetClaim, "assessment report", claim.ClaimNumber)
	}
	return report, err
}

func (s *Service) GetDecision(ctx context.Context, claimRef string) (ports.DecisionRecord, error) {
	claim, err := s.GetClaim(ctx, claimRef)
	if err != nil {
		return ports.DecisionRecord{}, err
	}
	decision, err := s.repo.GetDecision(ctx, claim.ID)
	if errors.Is(err, ports.ErrDecisionNotFound) {
		return ports.DecisionRecord{}, domainclaim.NotFound(domainclaim.OpGetClaim, "decision", claim.ClaimNumber)
	}
	return decision, err
}

func (s *Service) GetPayout(ctx context.Context, claimRef string) (ports.PayoutRecord, error) {
	claim, err := s.GetClaim(ctx, claimRef)
	if err != nil {
		return ports.PayoutRecord{}, err
	}
	payout, err := s.repo.GetPayout(ctx, claim.ID)
	if errors.Is(err, ports.ErrPayoutNotFound) {
		return ports.PayoutRecord{}, domainclaim.NotFound(domainclaim.OpGetClaim, "payout", claim.ClaimNumber)
	}
	return payout, err
}

// ListAudit returns the claim's audit trail oldest first.
func (s *Service) ListAudit(ctx context.Context, claimRef string) ([]ports.AuditEntry, error) {
	claim, err := s.GetClaim(ctx, claimRef)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditEntries(ctx, claim.ID)
}
