package claims

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"cropclaim/internal/bootstrap/database"
	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/infrastructure/collaborator"
	"cropclaim/internal/infrastructure/lock"
	"cropclaim/internal/infrastructure/persistence/relational/model"
	"cropclaim/internal/infrastructure/persistence/relational/repository"
	"cropclaim/internal/infrastructure/persistence/relational/uow"
	"cropclaim/internal/ports"
)

type testCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newTestCache() *testCache {
	return &testCache{data: make(map[string]string)}
}

func (c *testCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *testCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *testCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *testCache) value(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key]
}

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []ports.AssessmentDispatch
	failures []error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, request ports.AssessmentDispatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return err
	}
	d.requests = append(d.requests, request)
	return nil
}

func (d *recordingDispatcher) failNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, err)
}

func (d *recordingDispatcher) dispatched() []ports.AssessmentDispatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ports.AssessmentDispatch, len(d.requests))
	copy(out, d.requests)
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc        *Service
	repo       *repository.ClaimRepository
	cache      *testCache
	dispatcher *recordingDispatcher
	gateway    *collaborator.SimulatedGateway
	clock      *testClock
}

func setupFixture(t *testing.T, configure ...func(*Config)) *fixture {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "claims.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), database.GormConfig(context.Background()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	cfg := DefaultConfig()
	for _, fn := range configure {
		fn(&cfg)
	}

	f := &fixture{
		repo:       repository.NewClaimRepository(db),
		cache:      newTestCache(),
		dispatcher: &recordingDispatcher{},
		gateway:    collaborator.NewSimulatedGateway(),
		clock:      &testClock{now: time.Date(2024, 7, 16, 8, 0, 0, 0, time.UTC)},
	}
	f.svc = NewService(f.repo, uow.NewUnitOfWork(db), f.cache, Collaborators{
		Dispatcher: f.dispatcher,
		Gateway:    f.gateway,
		Locker:     lock.NewLocalLocker(),
	}, cfg)
	f.svc.now = f.clock.Now

	seedReferenceData(t, f.svc)
	return f
}

func seedReferenceData(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()

	if _, err := svc.PutInsurer(ctx, PutInsurerInput{InsurerID: "I-1", Name: "Harvest Mutual"}); err != nil {
		t.Fatalf("PutInsurer() error = %v", err)
	}
	if _, err := svc.PutFarmer(ctx, PutFarmerInput{
		FarmerID:          "F-1",
		Name:              "Asha Rao",
		BankAccountName:   "A RAO",
		BankAccountNumber: "001122334455",
		BankCode:          "SBIN0001",
	}); err != nil {
		t.Fatalf("PutFarmer() error = %v", err)
	}
	if _, err := svc.PutPolicy(ctx, PutPolicyInput{
		PolicyID:   "P-1",
		FarmerID:   "F-1",
		InsurerID:  "I-1",
		CropType:   "wheat",
		SumInsured: decimal.RequireFromString("60000"),
		Status:     "Active",
		StartDate:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("PutPolicy() error = %v", err)
	}
}

func submitInput(key string) SubmitClaimInput {
	return SubmitClaimInput{
		IdempotencyKey: key,
		PolicyID:       "P-1",
		FarmerID:       "F-1",
		DateOfIncident: time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
		Location:       "north field, plot 7",
		Description:    "hailstorm flattened the crop",
		AmountClaimed:  decimal.RequireFromString("50000"),
		EvidenceRefs:   []string{"photo-1", "photo-2"},
	}
}

func (f *fixture) submit(t *testing.T, key string) ports.Claim {
	t.Helper()
	res, err := f.svc.SubmitClaim(context.Background(), submitInput(key))
	if err != nil {
		t.Fatalf("SubmitClaim(%s) error = %v", key, err)
	}
	return res.Claim
}

func (f *fixture) assess(t *testing.T, claimNumber string) ReceiveAssessmentResult {
	t.Helper()
	damage, confidence := 62.0, 0.81
	res, err := f.svc.ReceiveAssessmentResult(context.Background(), ports.AssessmentResult{
		ClaimID:         claimNumber,
		AIDamagePercent: &damage,
		ConfidenceScore: &confidence,
		ValidationFlags: []byte(`["weather_match"]`),
	})
	if err != nil {
		t.Fatalf("ReceiveAssessmentResult() error = %v", err)
	}
	return res
}

func (f *fixture) decide(t *testing.T, claimNumber string, outcome string) SubmitDecisionResult {
	t.Helper()
	res, err := f.svc.SubmitDecision(context.Background(), SubmitDecisionInput{
		ClaimRef:        claimNumber,
		ReviewerID:      "R-1",
		Outcome:         outcome,
		ExpectedVersion: f.status(t, claimNumber).Version,
	})
	if err != nil {
		t.Fatalf("SubmitDecision(%s) error = %v", outcome, err)
	}
	return res
}

func (f *fixture) status(t *testing.T, claimNumber string) ports.Claim {
	t.Helper()
	claim, err := f.svc.GetClaim(context.Background(), claimNumber)
	if err != nil {
		t.Fatalf("GetClaim() error = %v", err)
	}
	return claim
}

func requireKind(t *testing.T, err error, kind error) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %v", kind)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want kind %v", err, kind)
	}
}

func auditActions(t *testing.T, svc *Service, claimNumber string) []string {
	t.Helper()
	entries, err := svc.ListAudit(context.Background(), claimNumber)
	if err != nil {
		t.Fatalf("ListAudit() error = %v", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func TestClaimLifecycleScenario(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	first, err := f.svc.SubmitClaim(ctx, submitInput("k1"))
	if err != nil {
		t.Fatalf("SubmitClaim() error = %v", err)
	}
	if !first.Created || first.Claim.Status != domainclaim.StatusSubmitted {
		t.Fatalf("SubmitClaim() = created %v status %s, want created SUBMITTED", first.Created, first.Claim.Status)
	}
	claimNumber := first.Claim.ClaimNumber

	replay, err := f.svc.SubmitClaim(ctx, submitInput("k1"))
	if err != nil {
		t.Fatalf("SubmitClaim(replay) error = %v", err)
	}
	if replay.Created || replay.Claim.ID != first.Claim.ID {
		t.Fatalf("SubmitClaim(replay) = created %v id %s, want same claim %s", replay.Created, replay.Claim.ID, first.Claim.ID)
	}

	if got := f.dispatcher.dispatched(); len(got) != 1 || got[0].ClaimID != claimNumber {
		t.Fatalf("dispatched = %+v, want one request for %s", got, claimNumber)
	}

	assessed := f.assess(t, claimNumber)
	if !assessed.Transitioned || assessed.Claim.Status != domainclaim.StatusAIProcessed {
		t.Fatalf("ReceiveAssessmentResult() = %+v, want AI_PROCESSED", assessed)
	}

	drafted, err := f.svc.SaveDraft(ctx, SaveDraftInput{ClaimRef: claimNumber, ReviewerID: "R-1", DamageConfirmation: "pending"})
	if err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}
	if drafted.Status != domainclaim.StatusUnderReview {
		t.Fatalf("SaveDraft() status = %s, want UNDER_REVIEW", drafted.Status)
	}

	decided := f.decide(t, claimNumber, "approve")
	if decided.Decision.Outcome != domainclaim.OutcomeApprove {
		t.Fatalf("decision outcome = %s, want approve", decided.Decision.Outcome)
	}
	if !decided.Decision.ApprovedAmount.Equal(decimal.RequireFromString("50000")) {
		t.Fatalf("approved amount = %s, want 50000", decided.Decision.ApprovedAmount)
	}
	if decided.Claim.Status != domainclaim.StatusPayoutPending {
		t.Fatalf("status after approve = %s, want PAYOUT_PENDING", decided.Claim.Status)
	}

	paid, err := f.svc.ProcessPayout(ctx, ProcessPayoutInput{
		ClaimRef:      claimNumber,
		Amount:        decimal.RequireFromString("45000"),
		TransactionID: "TXN1",
		Notes:         "season 2024 hail",
	})
	if err != nil {
		t.Fatalf("ProcessPayout() error = %v", err)
	}
	if paid.Claim.Status != domainclaim.StatusPaid {
		t.Fatalf("ProcessPayout() status = %s, want PAID", paid.Claim.Status)
	}
	if !paid.Payout.Amount.Equal(decimal.RequireFromString("45000")) || paid.Payout.TransactionID != "TXN1" {
		t.Fatalf("payout = %+v", paid.Payout)
	}

	_, err = f.svc.ProcessPayout(ctx, ProcessPayoutInput{
		ClaimRef:      claimNumber,
		Amount:        decimal.RequireFromString("45000"),
		TransactionID: "TXN1",
	})
	requireKind(t, err, domainclaim.ErrInvalidState)
	if f.gateway.Disbursed() != 1 {
		t.Fatalf("gateway disbursed %d claims, want 1", f.gateway.Disbursed())
	}

	payout, err := f.svc.GetPayout(ctx, claimNumber)
	if err != nil {
		t.Fatalf("GetPayout() error = %v", err)
	}
	if payout.TransactionID != "TXN1" {
		t.Fatalf("stored payout transaction = %q", payout.TransactionID)
	}

	want := []string{
		string(domainclaim.OpSubmitClaim),
		string(domainclaim.OpAssessmentArrived),
		string(domainclaim.OpSaveDraft),
		string(domainclaim.OpSubmitDecision),
		string(domainclaim.OpReleaseSettlement),
		string(domainclaim.OpProcessPayout),
	}
	got := auditActions(t, f.svc, claimNumber)
	if len(got) != len(want) {
		t.Fatalf("audit actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audit actions = %v, want %v", got, want)
		}
	}

	if f.cache.value(cacheClaimStatusKey(claimNumber)) != string(domainclaim.StatusPaid) {
		t.Fatalf("cached status = %q, want PAID", f.cache.value(cacheClaimStatusKey(claimNumber)))
	}
}

func TestServiceRejectsCanceledContext(t *testing.T) {
	f := setupFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.SubmitClaim(ctx, submitInput("k1")); !errors.Is(err, context.Canceled) {
		t.Fatalf("SubmitClaim(canceled) error = %v, want context.Canceled", err)
	}
}

func TestGetClaimStatusPrefersCache(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	claim := f.submit(t, "k1")

	label, err := f.svc.GetClaimStatus(ctx, claim.ClaimNumber)
	if err != nil {
		t.Fatalf("GetClaimStatus() error = %v", err)
	}
	if label != string(domainclaim.StatusSubmitted) {
		t.Fatalf("GetClaimStatus() = %q, want SUBMITTED", label)
	}

	_ = f.cache.Set(ctx, cacheClaimStatusKey(claim.ClaimNumber), "CACHED", time.Minute)
	label, err = f.svc.GetClaimStatus(ctx, claim.ClaimNumber)
	if err != nil {
		t.Fatalf("GetClaimStatus(cached) error = %v", err)
	}
	if label != "CACHED" {
		t.Fatalf("GetClaimStatus(cached) = %q, want cached value", label)
	}

	_ = f.cache.Delete(ctx, cacheClaimStatusKey(claim.ClaimNumber))
	label, err = f.svc.GetClaimStatus(ctx, claim.ClaimNumber)
	if err != nil {
		t.Fatalf("GetClaimStatus(miss) error = %v", err)
	}
	if label != string(domainclaim.StatusSubmitted) || f.cache.value(cacheClaimStatusKey(claim.ClaimNumber)) != label {
		t.Fatalf("GetClaimStatus(miss) = %q, cache = %q", label, f.cache.value(cacheClaimStatusKey(claim.ClaimNumber)))
	}
}

func TestGetClaimDetailCollectsRecords(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	claim := f.submit(t, "k1")

	detail, err := f.svc.GetClaimDetail(ctx, claim.ClaimNumber)
	if err != nil {
		t.Fatalf("GetClaimDetail() error = %v", err)
	}
	if detail.Report != nil || detail.Draft != nil || detail.Decision != nil || detail.Payout != nil {
		t.Fatalf("fresh claim detail has records: %+v", detail)
	}
	if len(detail.AssessmentRequests) != 1 {
		t.Fatalf("assessment requests = %d, want 1", len(detail.AssessmentRequests))
	}

	f.assess(t, claim.ClaimNumber)
	if _, err := f.svc.SaveDraft(ctx, SaveDraftInput{
		ClaimRef:           claim.ClaimNumber,
		ReviewerID:         "R-1",
		DamageConfirmation: "yes",
		FieldPhotoRefs:     []string{"site-1"},
	}); err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}

	detail, err = f.svc.GetClaimDetail(ctx, claim.ClaimNumber)
	if err != nil {
		t.Fatalf("GetClaimDetail() error = %v", err)
	}
	if detail.Report == nil || detail.Draft == nil {
		t.Fatalf("detail = %+v, want report and draft", detail)
	}
	if detail.Draft.DamageConfirmation != domainclaim.DamageYes || len(detail.Draft.FieldPhotoRefs) != 1 {
		t.Fatalf("draft = %+v", detail.Draft)
	}
	if detail.AssessmentRequests[0].Status != ports.AssessmentCompleted {
		t.Fatalf("request status = %s, want COMPLETED", detail.AssessmentRequests[0].Status)
	}
}

func TestGetClaimUnknownIsNotFound(t *testing.T) {
	f := setupFixture(t)
	_, err := f.svc.GetClaim(context.Background(), "CLM-20240101-DEADBEEF")
	requireKind(t, err, domainclaim.ErrNotFound)
}

func TestListClaimsFiltersByStatus(t *testing.T) {
	f := setupFixture(t, func(cfg *Config) { cfg.AllowOverlappingClaims = true })
	ctx := context.Background()
	first := f.submit(t, "k1")
	f.submit(t, "k2")
	f.assess(t, first.ClaimNumber)

	claims, err := f.svc.ListClaims(ctx, ListClaimsInput{Statuses: []string{"ai_processed"}})
	if err != nil {
		t.Fatalf("ListClaims() error = %v", err)
	}
	if len(claims) != 1 || claims[0].ID != first.ID {
		t.Fatalf("ListClaims(AI_PROCESSED) = %+v", claims)
	}

	all, err := f.svc.ListClaims(ctx, ListClaimsInput{FarmerID: "F-1"})
	if err != nil {
		t.Fatalf("ListClaims(farmer) error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListClaims(farmer) = %d claims, want 2", len(all))
	}

	_, err = f.svc.ListClaims(ctx, ListClaimsInput{Statuses: []string{"lost"}})
	requireKind(t, err, domainclaim.ErrValidation)
}

func TestPutPolicyValidates(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	base := PutPolicyInput{
		PolicyID:   "P-2",
		FarmerID:   "F-1",
		InsurerID:  "I-1",
		CropType:   "rice",
		SumInsured: decimal.RequireFromString("1000"),
		Status:     "Active",
		StartDate:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name   string
		mutate func(*PutPolicyInput)
	}{
		{name: "missing id", mutate: func(in *PutPolicyInput) { in.PolicyID = "" }},
		{name: "unknown status", mutate: func(in *PutPolicyInput) { in.Status = "lapsed" }},
		{name: "zero sum insured", mutate: func(in *PutPolicyInput) { in.SumInsured = decimal.Zero }},
		{name: "inverted window", mutate: func(in *PutPolicyInput) { in.EndDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := f.svc.PutPolicy(ctx, in)
			requireKind(t, err, domainclaim.ErrValidation)
		})
	}
}
