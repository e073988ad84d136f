package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cropclaim/internal/bootstrap/logging"
	"cropclaim/internal/ports"
	"cropclaim/internal/usecase/claims"
)

// ClaimService is the slice of the claims usecase the HTTP surface drives.
type ClaimService interface {
	SubmitClaim(ctx context.Context, input claims.SubmitClaimInput) (claims.SubmitClaimResult, error)
	ListClaims(ctx context.Context, input claims.ListClaimsInput) ([]ports.Claim, error)
	GetClaimDetail(ctx context.Context, claimRef string) (claims.ClaimDetail, error)
	GetAssessmentReport(ctx context.Context, claimRef string) (ports.AssessmentReport, error)
	GetDecision(ctx context.Context, claimRef string) (ports.DecisionRecord, error)
	GetPayout(ctx context.Context, claimRef string) (ports.PayoutRecord, error)
	ListAudit(ctx context.Context, claimRef string) ([]ports.AuditEntry, error)
	AssignReviewer(ctx context.Context, input claims.AssignReviewerInput) (ports.Claim, error)
	ReceiveAssessmentResult(ctx context.Context, result ports.AssessmentResult) (claims.ReceiveAssessmentResult, error)
	RetryAssessment(ctx context.Context, input claims.RetryAssessmentInput) (claims.AssessmentRequestResult, error)
	SaveDraft(ctx context.Context, input claims.SaveDraftInput) (ports.Claim, error)
	SubmitDecision(ctx context.Context, input claims.SubmitDecisionInput) (claims.SubmitDecisionResult, error)
	MarkFraudSuspect(ctx context.Context, input claims.FraudFlagInput) (claims.FraudFlagResult, error)
	ClearFraudSuspect(ctx context.Context, input claims.FraudFlagInput) (claims.FraudFlagResult, error)
	ReleaseForSettlement(ctx context.Context, input claims.ReleaseForSettlementInput) (ports.Claim, error)
	ProcessPayout(ctx context.Context, input claims.ProcessPayoutInput) (claims.ProcessPayoutResult, error)
}

type Config struct {
	// CallbackSecret signs assessment callbacks (X-Assessment-Signature). Empty disables the check.
	CallbackSecret string
	MaxBodyBytes   int64
}

type handler struct {
	svc ClaimService
	cfg Config
}

func NewRouter(svc ClaimService, cfg Config) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	h := &handler{svc: svc, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/claims", func(r chi.Router) {
		r.Post("/", h.submitClaim)
		r.Get("/", h.listClaims)

		r.Route("/{claim}", func(r chi.Router) {
			r.Get("/", h.getClaim)
			r.Get("/audit", h.listAudit)
			r.Get("/assessment", h.getAssessment)
			r.Post("/assessment", h.receiveAssessment)
			r.Post("/assessment/retry", h.retryAssessment)
			r.Post("/assignment", h.assignReviewer)
			r.Put("/draft", h.saveDraft)
			r.Get("/decision", h.getDecision)
			r.Post("/decision", h.submitDecision)
			r.Post("/fraud-flag", h.markFraudSuspect)
			r.Delete("/fraud-flag", h.clearFraudSuspect)
			r.Post("/settlement/release", h.releaseForSettlement)
			r.Get("/payout", h.getPayout)
			r.Post("/payout", h.processPayout)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithAttrs(r.Context(),
			slog.String("component", "transport.http"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.Info(ctx, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}
