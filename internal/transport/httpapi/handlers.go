package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/ports"
	"cropclaim/internal/usecase/claims"
)

func claimRef(r *http.Request) string {
	return chi.URLParam(r, "claim")
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	payload, err := readBody(w, r, h.cfg.MaxBodyBytes)
	if err == nil {
		err = decodeJSON(payload, into)
	}
	if err != nil {
		writeError(r.Context(), w, err)
		return false
	}
	return true
}

func parseDate(field string, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domainclaim.Validation(domainclaim.OpSubmitClaim, field, "expected YYYY-MM-DD")
	}
	return t, nil
}

func (h *handler) submitClaim(w http.ResponseWriter, r *http.Request) {
	var req submitClaimRequest
	if !h.decode(w, r, &req) {
		return
	}
	incident, err := parseDate("dateOfIncident", req.DateOfIncident)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	res, err := h.svc.SubmitClaim(r.Context(), claims.SubmitClaimInput{
		IdempotencyKey: firstNonEmpty(r.Header.Get("Idempotency-Key"), req.IdempotencyKey),
		PolicyID:       req.PolicyID,
		FarmerID:       req.FarmerID,
		DateOfIncident: incident,
		Location:       req.LocationOfIncident,
		Description:    req.Description,
		AmountClaimed:  req.AmountClaimed,
		EvidenceRefs:   req.EvidenceRefs,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
		w.Header().Set("Location", "/v1/claims/"+res.Claim.ClaimNumber)
	}
	writeJSON(w, status, submitClaimResponse{Claim: toClaimResponse(res.Claim), Created: res.Created})
}

func (h *handler) listClaims(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := claims.ListClaimsInput{
		FarmerID: q.Get("farmer_id"),
		PolicyID: q.Get("policy_id"),
	}
	for _, raw := range q["status"] {
		input.Statuses = append(input.Statuses, strings.Split(raw, ",")...)
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(r.Context(), w, domainclaim.Validation(domainclaim.OpGetClaim, "limit", "must be an integer"))
			return
		}
		input.Limit = limit
	}

	list, err := h.svc.ListClaims(r.Context(), input)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	out := make([]claimResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toClaimResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": out})
}

func (h *handler) getClaim(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetClaimDetail(r.Context(), claimRef(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(detail.Claim.Version, 10)))
	writeJSON(w, http.StatusOK, toDetailResponse(detail))
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListAudit(r.Context(), claimRef(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			Actor:       e.Actor,
			Action:      e.Action,
			BeforeState: e.BeforeState,
			AfterState:  e.AfterState,
			Detail:      e.Detail,
			Timestamp:   e.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *handler) getAssessment(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.GetAssessmentReport(r.Context(), claimRef(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(report))
}

// receiveAssessment is the collaborator callback. The body is the raw result; the claim in the
// path wins over any claim id in the body.
func (h *handler) receiveAssessment(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if err := validateCallbackSignature(h.cfg.CallbackSecret, r.Header.Get(signatureHeader), payload); err != nil {
		writeProblem(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	var result ports.AssessmentResult
	if err := decodeJSON(payload, &result); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	ref := claimRef(r)
	if body := strings.TrimSpace(result.ClaimID); body != "" && !strings.EqualFold(body, ref) {
		writeError(r.Context(), w, domainclaim.Validation(domainclaim.OpReceiveAssessment, "claim_id", "does not match the claim in the path"))
		return
	}
	result.ClaimID = ref

	res, err := h.svc.ReceiveAssessmentResult(r.Context(), result)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessmentReceiptResponse{
		Claim:        toClaimResponse(res.Claim),
		Transitioned: res.Transitioned,
		SkipReason:   res.SkipReason,
	})
}

func (h *handler) retryAssessment(w http.ResponseWriter, r *http.Request) {
	var req retryAssessmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.RetryAssessment(r.Context(), claims.RetryAssessmentInput{ClaimRef: claimRef(r), Operator: req.Operator})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"requestId":  res.Request.RequestID,
		"attempt":    res.Request.Attempt,
		"status":     string(res.Request.Status),
		"dispatched": res.Dispatched,
	})
}

func (h *handler) assignReviewer(w http.ResponseWriter, r *http.Request) {
	var req assignReviewerRequest
	if !h.decode(w, r, &req) {
		return
	}
	claim, err := h.svc.AssignReviewer(r.Context(), claims.AssignReviewerInput{
		ClaimRef:   claimRef(r),
		ReviewerID: req.ReviewerID,
		Actor:      req.Actor,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(claim))
}

func (h *handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	var req saveDraftRequest
	if !h.decode(w, r, &req) {
		return
	}
	claim, err := h.svc.SaveDraft(r.Context(), claims.SaveDraftInput{
		ClaimRef:           claimRef(r),
		ReviewerID:         req.ReviewerID,
		VerifiedArea:       req.VerifiedArea,
		DamageConfirmation: req.DamageConfirmation,
		Comments:           req.Comments,
		FieldPhotoRefs:     req.FieldPhotoRefs,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(claim))
}

func (h *handler) getDecision(w http.ResponseWriter, r *http.Request) {
	decision, err := h.svc.GetDecision(r.Context(), claimRef(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDecisionResponse(decision))
}

func (h *handler) submitDecision(w http.ResponseWriter, r *http.Request) {
	var req submitDecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	expected, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if expected == 0 {
		expected = req.ExpectedVersion
	}

	res, err := h.svc.SubmitDecision(r.Context(), claims.SubmitDecisionInput{
		ClaimRef:        claimRef(r),
		ReviewerID:      req.ReviewerID,
		Outcome:         req.Outcome,
		FinalComments:   req.FinalComments,
		ApprovedAmount:  req.ApprovedAmount,
		ExpectedVersion: expected,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResultResponse{
		Claim:      toClaimResponse(res.Claim),
		Decision:   toDecisionResponse(res.Decision),
		HoldReason: res.HoldReason,
	})
}

func (h *handler) markFraudSuspect(w http.ResponseWriter, r *http.Request) {
	h.toggleFraudFlag(w, r, h.svc.MarkFraudSuspect)
}

func (h *handler) clearFraudSuspect(w http.ResponseWriter, r *http.Request) {
	h.toggleFraudFlag(w, r, h.svc.ClearFraudSuspect)
}

func (h *handler) toggleFraudFlag(w http.ResponseWriter, r *http.Request, apply func(context.Context, claims.FraudFlagInput) (claims.FraudFlagResult, error)) {
	var req fraudFlagRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := apply(r.Context(), claims.FraudFlagInput{ClaimRef: claimRef(r), ReviewerID: req.ReviewerID, Reason: req.Reason})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, fraudFlagResponse{Claim: toClaimResponse(res.Claim), Changed: res.Changed})
}

func (h *handler) releaseForSettlement(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	claim, err := h.svc.ReleaseForSettlement(r.Context(), claims.ReleaseForSettlementInput{ClaimRef: claimRef(r), Actor: req.Actor})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(claim))
}

func (h *handler) getPayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.svc.GetPayout(r.Context(), claimRef(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutResponse(payout))
}

func (h *handler) processPayout(w http.ResponseWriter, r *http.Request) {
	var req processPayoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.ProcessPayout(r.Context(), claims.ProcessPayoutInput{
		ClaimRef:      claimRef(r),
		Amount:        req.Amount,
		TransactionID: req.TransactionID,
		Notes:         req.Notes,
		Operator:      req.Operator,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, payoutResultResponse{Claim: toClaimResponse(res.Claim), Payout: toPayoutResponse(res.Payout)})
}

func parseIfMatch(raw string) (int64, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "W/"))
	if raw == "" || raw == "*" {
		return 0, nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version <= 0 {
		return 0, domainclaim.Validation(domainclaim.OpSubmitDecision, "If-Match", "expected a claim version")
	}
	return version, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
