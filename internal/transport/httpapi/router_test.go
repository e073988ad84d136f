package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cropclaim/internal/bootstrap/database"
	"cropclaim/internal/infrastructure/collaborator"
	"cropclaim/internal/infrastructure/lock"
	"cropclaim/internal/infrastructure/persistence/relational/model"
	"cropclaim/internal/infrastructure/persistence/relational/repository"
	"cropclaim/internal/infrastructure/persistence/relational/uow"
	"cropclaim/internal/usecase/claims"
)

const testSecret = "callback-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "api.sqlite")), database.GormConfig(context.Background()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))

	svc := claims.NewService(repository.NewClaimRepository(db), uow.NewUnitOfWork(db), nil, claims.Collaborators{
		Dispatcher: collaborator.ManualDispatcher{},
		Gateway:    collaborator.NewSimulatedGateway(),
		Locker:     lock.NewLocalLocker(),
	}, claims.DefaultConfig())

	ctx := context.Background()
	_, err = svc.PutFarmer(ctx, claims.PutFarmerInput{FarmerID: "F-1", Name: "Asha Rao", BankAccountNumber: "0011", BankCode: "SBIN0001"})
	require.NoError(t, err)
	_, err = svc.PutPolicy(ctx, claims.PutPolicyInput{
		PolicyID:   "P-1",
		FarmerID:   "F-1",
		InsurerID:  "I-1",
		CropType:   "wheat",
		SumInsured: decimal.RequireFromString("60000"),
		Status:     "Active",
		StartDate:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(svc, Config{CallbackSecret: testSecret}))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method string, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var payload []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		payload = v
	default:
		var err error
		payload, err = json.Marshal(v)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

var claimBody = map[string]any{
	"policyId":           "P-1",
	"farmerId":           "F-1",
	"dateOfIncident":     "2024-07-15",
	"locationOfIncident": "north field",
	"description":        "hail",
	"amountClaimed":      "50000",
	"evidenceRefs":       []string{"photo-1"},
}

func submitClaim(t *testing.T, srv *httptest.Server, key string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/claims", claimBody, map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	claim := body["claim"].(map[string]any)
	return claim["claimId"].(string)
}

func signedCallback(t *testing.T, srv *httptest.Server, claimID string, result map[string]any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(result)
	require.NoError(t, err)
	return doJSON(t, http.MethodPost, srv.URL+"/v1/claims/"+claimID+"/assessment", payload,
		map[string]string{signatureHeader: SignCallback(testSecret, payload)})
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestSubmitClaimCreatedThenReplayed(t *testing.T) {
	srv := newTestServer(t)

	claimID := submitClaim(t, srv, "k1")
	assert.NotEmpty(t, claimID)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/claims", claimBody, map[string]string{"Idempotency-Key": "k1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["created"])
	assert.Equal(t, claimID, body["claim"].(map[string]any)["claimId"])

	changed := map[string]any{}
	for k, v := range claimBody {
		changed[k] = v
	}
	changed["amountClaimed"] = "49000"
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/claims", changed, map[string]string{"Idempotency-Key": "k1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", body["kind"])
}

func TestSubmitClaimValidationErrorBody(t *testing.T) {
	srv := newTestServer(t)

	outside := map[string]any{}
	for k, v := range claimBody {
		outside[k] = v
	}
	outside["dateOfIncident"] = "2024-12-01"
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/claims", outside, map[string]string{"Idempotency-Key": "k1"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "validation", body["kind"])
	assert.Equal(t, "dateOfIncident", body["field"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/claims", []byte(`{"policyId":`), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "body", body["field"])
}

func TestAssessmentCallbackRequiresSignature(t *testing.T) {
	srv := newTestServer(t)
	claimID := submitClaim(t, srv, "k1")

	payload := []byte(`{"ai_damage_percent": 62.0}`)
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/claims/"+claimID+"/assessment", payload, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["kind"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/claims/"+claimID+"/assessment", payload,
		map[string]string{signatureHeader: SignCallback("wrong", payload)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = signedCallback(t, srv, claimID, map[string]any{"claim_id": "CLM-OTHER"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "claim_id", body["field"])
}

func TestClaimFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	claimID := submitClaim(t, srv, "k1")
	base := srv.URL + "/v1/claims/" + claimID

	resp, body := signedCallback(t, srv, claimID, map[string]any{
		"ai_damage_percent": 62.0,
		"confidence_score":  0.81,
		"validation_flags":  map[string]bool{"weather_match": true},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["transitioned"])

	resp, body = doJSON(t, http.MethodGet, base+"/assessment", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"weather_match"}, body["validationFlags"])

	resp, body = doJSON(t, http.MethodPut, base+"/draft", map[string]any{"reviewerId": "R-1", "damageConfirmation": "pending"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "UNDER_REVIEW", body["status"])

	resp, _ = doJSON(t, http.MethodGet, base, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	resp, body = doJSON(t, http.MethodPost, base+"/decision", map[string]any{"reviewerId": "R-1", "outcome": "approve"},
		map[string]string{"If-Match": `"1"`})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "concurrent_modification", body["kind"])

	resp, body = doJSON(t, http.MethodPost, base+"/decision", map[string]any{"reviewerId": "R-1", "outcome": "approve"},
		map[string]string{"If-Match": etag})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "PAYOUT_PENDING", body["claim"].(map[string]any)["status"])

	resp, body = doJSON(t, http.MethodPost, base+"/payout", map[string]any{"amount": 45000, "transactionId": "TXN1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "PAID", body["claim"].(map[string]any)["status"])
	assert.Equal(t, "TXN1", body["payout"].(map[string]any)["transactionId"])

	resp, body = doJSON(t, http.MethodPost, base+"/payout", map[string]any{"amount": 45000, "transactionId": "TXN1"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_state", body["kind"])
	assert.Equal(t, "PAID", body["state"])

	resp, body = doJSON(t, http.MethodGet, base+"/audit", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["entries"], 6)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/claims?status=PAID", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["claims"], 1)
}

func TestSubmitDecisionNeedsClaimVersion(t *testing.T) {
	srv := newTestServer(t)
	claimID := submitClaim(t, srv, "k1")
	base := srv.URL + "/v1/claims/" + claimID

	resp, body := signedCallback(t, srv, claimID, map[string]any{"ai_damage_percent": 40.0})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = doJSON(t, http.MethodPost, base+"/decision", map[string]any{"reviewerId": "R-1", "outcome": "reject"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "validation", body["kind"])
	assert.Equal(t, "expectedVersion", body["field"])

	resp, body = doJSON(t, http.MethodGet, base, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	version := body["version"]

	resp, body = doJSON(t, http.MethodPost, base+"/decision",
		map[string]any{"reviewerId": "R-1", "outcome": "reject", "expectedVersion": version}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "CLOSED", body["claim"].(map[string]any)["status"])
}

func TestFraudFlagEndpoints(t *testing.T) {
	srv := newTestServer(t)
	claimID := submitClaim(t, srv, "k1")
	base := srv.URL + "/v1/claims/" + claimID

	resp, body := doJSON(t, http.MethodPost, base+"/fraud-flag", map[string]any{"reviewerId": "R-1", "reason": "reused photos"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["changed"])
	assert.Equal(t, true, body["claim"].(map[string]any)["fraudSuspect"])

	resp, body = doJSON(t, http.MethodDelete, base+"/fraud-flag", map[string]any{"reviewerId": "R-1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, false, body["claim"].(map[string]any)["fraudSuspect"])
}

func TestUnknownClaimIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/claims/CLM-20240101-00000000", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["kind"])
}

func TestParseIfMatch(t *testing.T) {
	v, err := parseIfMatch(`W/"7"`)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = parseIfMatch("")
	require.NoError(t, err)
	assert.Zero(t, v)

	_, err = parseIfMatch("abc")
	assert.Error(t, err)
}
