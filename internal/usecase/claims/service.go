package claims

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"cropclaim/internal/bootstrap/logging"
	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/errs"
	"cropclaim/internal/ports"
)

const (
	actorAssessmentService = "assessment-service"
	actorSettlementPolicy  = "settlement-policy"
)

type Config struct {
	AllowOverlappingClaims bool
	AssessmentTimeout      time.Duration
	PayoutLockTTL          time.Duration
	StatusCacheTTL         time.Duration
	Settlement             domainclaim.SettlementPolicy
}

func DefaultConfig() Config {
	return Config{
		AssessmentTimeout: 24 * time.Hour,
		PayoutLockTTL:     time.Minute,
		StatusCacheTTL:    5 * time.Minute,
		Settlement:        domainclaim.DefaultSettlementPolicy(),
	}
}

// Collaborators groups the external systems the engine talks to. A nil dispatcher leaves
// requests for manual processing; payouts need both a gateway and a locker.
type Collaborators struct {
	Dispatcher ports.AssessmentDispatcher
	Gateway    ports.PaymentGateway
	Locker     ports.ClaimLocker
}

type Service struct {
	repo       ports.ClaimRepository
	uow        ports.UnitOfWork
	cache      ports.Cache
	dispatcher ports.AssessmentDispatcher
	gateway    ports.PaymentGateway
	locker     ports.ClaimLocker
	cfg        Config
	validate   *validator.Validate
	now        func() time.Time
	newID      func() string
}

// NewService wires claim usecases with the claim store and its collaborators.
func NewService(repo ports.ClaimRepository, uow ports.UnitOfWork, cache ports.Cache, collab Collaborators, cfg Config) *Service {
	defaults := DefaultConfig()
	if cfg.AssessmentTimeout <= 0 {
		cfg.AssessmentTimeout = defaults.AssessmentTimeout
	}
	if cfg.PayoutLockTTL <= 0 {
		cfg.PayoutLockTTL = defaults.PayoutLockTTL
	}
	if cfg.StatusCacheTTL <= 0 {
		cfg.StatusCacheTTL = defaults.StatusCacheTTL
	}

	return &Service{
		repo:       repo,
		uow:        uow,
		cache:      cache,
		dispatcher: collab.Dispatcher,
		gateway:    collab.Gateway,
		locker:     collab.Locker,
		cfg:        cfg,
		validate:   newValidator(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

func (s *Service) ready(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return errors.New("claim repository is required")
	}
	if s.uow == nil {
		return errors.New("claim unit of work is required")
	}
	return nil
}

// checkInput runs the struct tags and reports the first failing field as a validation error.
func (s *Service) checkInput(op domainclaim.Operation, input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		detail := "failed " + fe.Tag()
		if fe.Tag() == "required" {
			detail = "is required"
		}
		return domainclaim.Validation(op, fe.Field(), detail)
	}
	return errs.Wrap(err, "validate input")
}

func (s *Service) logContext(ctx context.Context, op domainclaim.Operation, claimRef string) context.Context {
	attrs := []slog.Attr{slog.String("component", "usecase.claims"), slog.String("op", string(op))}
	if claimRef != "" {
		attrs = append(attrs, slog.String("claim", claimRef))
	}
	return logging.WithAttrs(ctx, attrs...)
}

func (s *Service) setCacheBestEffort(ctx context.Context, key string, value string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.StatusCacheTTL); err != nil {
		logging.Warn(ctx, "cache write skipped", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
	}
}

func (s *Service) cacheClaimStatus(ctx context.Context, claim ports.Claim) {
	s.setCacheBestEffort(ctx, cacheClaimStatusKey(claim.ClaimNumber), domainclaim.Label(claim.Status, claim.DecisionOutcome))
}

func cacheClaimStatusKey(claimNumber string) string {
	return "claim_status:" + claimNumber
}

func normalizeRef(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
