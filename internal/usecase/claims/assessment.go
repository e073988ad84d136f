package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cropclaim/internal/bootstrap/logging"
	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/errs"
	"cropclaim/internal/ports"
)

type RequestAssessmentInput struct {
	ClaimRef string `json:"claimId" validate:"required"`
}

type RetryAssessmentInput struct {
	ClaimRef string `json:"claimId" validate:"required"`
	Operator string `json:"operator" validate:"required,max=64"`
}

type AssessmentRequestResult struct {
	Request    ports.AssessmentRequest
	Dispatched bool
}

type ReceiveAssessmentResult struct {
	Claim        ports.Claim
	Report       ports.AssessmentReport
	Transitioned bool
	// SkipReason says why a stored report did not move the claim.
	SkipReason string
}

type StaleAssessment struct {
	Request ports.AssessmentRequest
	Age     time.Duration
}

// RequestAssessment opens an assessment request unless one is already open; the open one is returned as is.
func (s *Service) RequestAssessment(ctx context.Context, input RequestAssessmentInput) (AssessmentRequestResult, error) {
	if err := s.ready(ctx); err != nil {
		return AssessmentRequestResult{}, err
	}
	if err := s.checkInput(domainclaim.OpRequestAssessment, input); err != nil {
		return AssessmentRequestResult{}, err
	}
	claimRef := normalizeRef(input.ClaimRef)

	var claim ports.Claim
	var request ports.AssessmentRequest
	opened := false
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		claim, err = s.lockClaimTx(txCtx, domainclaim.OpRequestAssessment, claimRef)
		if err != nil {
			return err
		}
		if !claim.Status.AwaitingAssessment() {
			return domainclaim.InvalidState(domainclaim.OpRequestAssessment, claim.ClaimNumber, claim.Status,
				"assessment is only requested before the claim is AI_PROCESSED")
		}

		current, found, err := s.repo.GetOutstandingAssessmentRequest(txCtx, claim.ID)
		if err != nil {
			return err
		}
		if found {
			request = current
			return nil
		}

		attempt, err := s.nextAttemptTx(txCtx, claim.ID)
		if err != nil {
			return err
		}
		request, err = s.openAssessmentRequestTx(txCtx, claim, attempt)
		opened = err == nil
		return err
	}); err != nil {
		return AssessmentRequestResult{}, err
	}

	if !opened {
		return AssessmentRequestResult{Request: request}, nil
	}
	request = s.dispatchAssessment(s.logContext(ctx, domainclaim.OpRequestAssessment, claim.ClaimNumber), claim, request)
	return AssessmentRequestResult{Request: request, Dispatched: request.Status == ports.AssessmentOutstanding}, nil
}

// RetryAssessment re-dispatches once the open request has timed out or failed to dispatch.
// The old request is superseded; a late result for it is still accepted.
func (s *Service) RetryAssessment(ctx context.Context, input RetryAssessmentInput) (AssessmentRequestResult, error) {
	if err := s.ready(ctx); err != nil {
		return AssessmentRequestResult{}, err
	}
	if err := s.checkInput(domainclaim.OpRetryAssessment, input); err != nil {
		return AssessmentRequestResult{}, err
	}
	claimRef := normalizeRef(input.ClaimRef)
	operator := strings.TrimSpace(input.Operator)

	var claim ports.Claim
	var request ports.AssessmentRequest
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		claim, err = s.lockClaimTx(txCtx, domainclaim.OpRetryAssessment, claimRef)
		if err != nil {
			return err
		}
		if !claim.Status.AwaitingAssessment() {
			return domainclaim.InvalidState(domainclaim.OpRetryAssessment, claim.ClaimNumber, claim.Status,
				"assessment already arrived")
		}

		now := s.now().UTC()
		current, found, err := s.repo.GetOutstandingAssessmentRequest(txCtx, claim.ID)
		if err != nil {
			return err
		}
		detail := "fresh assessment request"
		if found {
			if current.Status == ports.AssessmentOutstanding && now.Sub(current.DispatchedAt) < s.cfg.AssessmentTimeout {
				return domainclaim.InvalidState(domainclaim.OpRetryAssessment, claim.ClaimNumber, claim.Status, fmt.Sprintf(
					"request %s dispatched at %s has not timed out (timeout %s)",
					current.RequestID, current.DispatchedAt.Format(time.RFC3339), s.cfg.AssessmentTimeout,
				))
			}
			if err := s.repo.UpdateAssessmentRequest(txCtx, current.RequestID, ports.AssessmentSuperseded, now, nil); err != nil {
				return err
			}
			detail = fmt.Sprintf("superseded request %s (%s)", current.RequestID, strings.ToLower(string(current.Status)))
		}

		attempt, err := s.nextAttemptTx(txCtx, claim.ID)
		if err != nil {
			return err
		}
		request, err = s.openAssessmentRequestTx(txCtx, claim, attempt)
		if err != nil {
			return err
		}

		label := domainclaim.Label(claim.Status, claim.DecisionOutcome)
		return s.auditTx(txCtx, claim, operator, string(domainclaim.OpRetryAssessment), label,
			detail+"; dispatched "+request.RequestID)
	}); err != nil {
		return AssessmentRequestResult{}, err
	}

	request = s.dispatchAssessment(s.logContext(ctx, domainclaim.OpRetryAssessment, claim.ClaimNumber), claim, request)
	return AssessmentRequestResult{Request: request, Dispatched: request.Status == ports.AssessmentOutstanding}, nil
}

// ReceiveAssessmentResult stores the collaborator's report and advances SUBMITTED/ASSIGNED
// claims to AI_PROCESSED. Fraud-flagged claims and claims already past assessment keep their
// state; the report is still stored and the call succeeds.
func (s *Service) ReceiveAssessmentResult(ctx context.Context, result ports.AssessmentResult) (ReceiveAssessmentResult, error) {
	if err := s.ready(ctx); err != nil {
		return ReceiveAssessmentResult{}, err
	}
	claimRef := normalizeRef(result.ClaimID)
	if claimRef == "" {
		return ReceiveAssessmentResult{}, domainclaim.Validation(domainclaim.OpReceiveAssessment, "claimId", "is required")
	}

	report, err := normalizeAssessmentResult(result)
	if err != nil {
		return ReceiveAssessmentResult{}, err
	}
	report.ReceivedAt = s.now().UTC()

	var out ReceiveAssessmentResult
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		claim, err := s.lockClaimTx(txCtx, domainclaim.OpReceiveAssessment, claimRef)
		if err != nil {
			return err
		}
		report.ClaimID = claim.ID

		if err := s.repo.SaveAssessmentReport(txCtx, report); err != nil {
			return err
		}
		if err := s.completeOpenRequestsTx(txCtx, claim.ID, report.ReceivedAt); err != nil {
			return err
		}

		out = ReceiveAssessmentResult{Claim: claim, Report: report}
		switch {
		case claim.FraudSuspect:
			out.SkipReason = "claim is flagged as fraud suspect"
			return nil
		case !claim.Status.AwaitingAssessment():
			out.SkipReason = "claim already " + domainclaim.Label(claim.Status, claim.DecisionOutcome)
			return nil
		}

		detail := "assessment report stored"
		if report.ValidationFlags.Has(domainclaim.FlagAssessmentUnavailable) {
			detail = "assessment unavailable"
		}
		moved, err := s.transitionTx(txCtx, domainclaim.OpAssessmentArrived, claim, transitionChange{
			actor:  actorAssessmentService,
			detail: detail,
		})
		if err != nil {
			return err
		}
		out.Claim = moved
		out.Transitioned = true
		return nil
	}); err != nil {
		return ReceiveAssessmentResult{}, err
	}

	logCtx := s.logContext(ctx, domainclaim.OpReceiveAssessment, out.Claim.ClaimNumber)
	if out.Transitioned {
		s.cacheClaimStatus(ctx, out.Claim)
		logging.Info(logCtx, "assessment result applied", slog.String("request_id", report.RequestID))
	} else {
		logging.Info(logCtx, "assessment result stored without transition", slog.String("reason", out.SkipReason))
	}
	return out, nil
}

// ListStaleAssessments returns open requests older than the assessment timeout, plus failed dispatches.
func (s *Service) ListStaleAssessments(ctx context.Context, limit int) ([]StaleAssessment, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	requests, err := s.repo.ListStaleAssessmentRequests(ctx, now.Add(-s.cfg.AssessmentTimeout), limit)
	if err != nil {
		return nil, err
	}

	out := make([]StaleAssessment, 0, len(requests))
	for _, request := range requests {
		out = append(out, StaleAssessment{Request: request, Age: now.Sub(request.DispatchedAt)})
	}
	return out, nil
}

func normalizeAssessmentResult(result ports.AssessmentResult) (ports.AssessmentReport, error) {
	report := ports.AssessmentReport{
		RequestID:         strings.TrimSpace(result.RequestID),
		WeatherSummary:    strings.TrimSpace(result.WeatherSummary),
		CropHealthSummary: strings.TrimSpace(result.CropHealthSummary),
		GeospatialSummary: strings.TrimSpace(result.GeospatialSummary),
	}

	if result.Failed {
		report.ValidationFlags = domainclaim.NewFlagSet(domainclaim.FlagAssessmentUnavailable)
		return report, nil
	}

	var rawFlags any
	if len(result.ValidationFlags) > 0 {
		rawFlags = json.RawMessage(result.ValidationFlags)
	}
	flags, err := domainclaim.NormalizeValidationFlags(rawFlags)
	if err != nil {
		return ports.AssessmentReport{}, domainclaim.Validation(domainclaim.OpReceiveAssessment, "validationFlags",
			strings.TrimPrefix(err.Error(), domainclaim.ErrValidation.Error()+": "))
	}
	report.ValidationFlags = flags

	if p := result.AIDamagePercent; p != nil && (*p < 0 || *p > 100) {
		return ports.AssessmentReport{}, domainclaim.Validation(domainclaim.OpReceiveAssessment, "aiDamagePercent", "must be within 0..100")
	}
	if c := result.ConfidenceScore; c != nil && (*c < 0 || *c > 1) {
		return ports.AssessmentReport{}, domainclaim.Validation(domainclaim.OpReceiveAssessment, "confidenceScore", "must be within 0..1")
	}
	if result.AIRecommendedAmount.Valid && result.AIRecommendedAmount.Decimal.IsNegative() {
		return ports.AssessmentReport{}, domainclaim.Validation(domainclaim.OpReceiveAssessment, "aiRecommendedAmount", "must not be negative")
	}
	report.AIDamagePercent = result.AIDamagePercent
	report.ConfidenceScore = result.ConfidenceScore
	report.AIRecommendedAmount = result.AIRecommendedAmount
	return report, nil
}

func (s *Service) nextAttemptTx(ctx context.Context, claimID string) (int, error) {
	requests, err := s.repo.ListAssessmentRequests(ctx, claimID)
	if err != nil {
		return 0, err
	}
	attempt := 1
	for _, r := range requests {
		if r.Attempt >= attempt {
			attempt = r.Attempt + 1
		}
	}
	return attempt, nil
}

func (s *Service) openAssessmentRequestTx(ctx context.Context, claim ports.Claim, attempt int) (ports.AssessmentRequest, error) {
	request := ports.AssessmentRequest{
		RequestID:    s.newID(),
		ClaimID:      claim.ID,
		ClaimNumber:  claim.ClaimNumber,
		Attempt:      attempt,
		Status:       ports.AssessmentOutstanding,
		DispatchedAt: s.now().UTC(),
	}
	if err := s.repo.CreateAssessmentRequest(ctx, request); err != nil {
		return ports.AssessmentRequest{}, err
	}
	return request, nil
}

func (s *Service) completeOpenRequestsTx(ctx context.Context, claimID string, at time.Time) error {
	requests, err := s.repo.ListAssessmentRequests(ctx, claimID)
	if err != nil {
		return err
	}
	for _, r := range requests {
		if r.Status != ports.AssessmentOutstanding && r.Status != ports.AssessmentDispatchFailed {
			continue
		}
		if err := s.repo.UpdateAssessmentRequest(ctx, r.RequestID, ports.AssessmentCompleted, at, nil); err != nil {
			return err
		}
	}
	return nil
}

// dispatchAssessment hands the request over after commit. Failures are recorded on the
// request row and never surface to the caller.
func (s *Service) dispatchAssessment(ctx context.Context, claim ports.Claim, request ports.AssessmentRequest) ports.AssessmentRequest {
	if s.dispatcher == nil {
		return request
	}

	dispatch := ports.AssessmentDispatch{
		RequestID:      request.RequestID,
		ClaimID:        claim.ClaimNumber,
		Attempt:        request.Attempt,
		DateOfIncident: claim.DateOfIncident,
		Location:       claim.LocationOfIncident,
		EvidenceRefs:   claim.EvidenceRefs,
	}
	if policy, err := s.repo.GetPolicy(ctx, claim.PolicyID); err == nil {
		dispatch.Policy = ports.PolicySnapshot{
			PolicyID:   policy.PolicyID,
			CropType:   policy.CropType,
			SumInsured: policy.SumInsured.String(),
			StartDate:  policy.StartDate,
			EndDate:    policy.EndDate,
		}
	}

	logCtx := logging.WithAttrs(ctx, slog.String("request_id", request.RequestID), slog.Int("attempt", request.Attempt))
	err := s.dispatcher.Dispatch(ctx, dispatch)
	if err == nil {
		logging.Info(logCtx, "assessment request dispatched")
		return request
	}

	logging.Warn(logCtx, "assessment dispatch failed", slog.Any("err", errs.Loggable(err)))
	message := err.Error()
	if updateErr := s.repo.UpdateAssessmentRequest(ctx, request.RequestID, ports.AssessmentDispatchFailed, s.now().UTC(), &message); updateErr != nil {
		logging.Error(logCtx, "record dispatch failure", slog.Any("err", errs.Loggable(errors.Join(err, updateErr))))
		return request
	}
	request.Status = ports.AssessmentDispatchFailed
	request.LastError = &message
	return request
}
