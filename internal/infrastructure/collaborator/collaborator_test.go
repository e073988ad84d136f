package collaborator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropclaim/internal/ports"
)

func TestHTTPDispatcherPostsRequest(t *testing.T) {
	var got ports.AssessmentDispatch
	var key string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	dispatcher, err := NewHTTPDispatcher(server.URL, time.Second)
	require.NoError(t, err)

	err = dispatcher.Dispatch(context.Background(), ports.AssessmentDispatch{
		RequestID:    "req-1",
		ClaimID:      "CLM-20240716-0A1B2C3D",
		Attempt:      1,
		EvidenceRefs: []string{"ev-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", key)
	assert.Equal(t, "CLM-20240716-0A1B2C3D", got.ClaimID)
	assert.Equal(t, []string{"ev-1"}, got.EvidenceRefs)
}

func TestHTTPDispatcherReportsRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	dispatcher, err := NewHTTPDispatcher(server.URL, time.Second)
	require.NoError(t, err)
	assert.Error(t, dispatcher.Dispatch(context.Background(), ports.AssessmentDispatch{RequestID: "req-1"}))
}

func TestHTTPGatewayReturnsReceipt(t *testing.T) {
	settled := time.Date(2024, 8, 2, 10, 0, 0, 0, time.UTC)
	var got ports.PaymentRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CLM-1", r.Header.Get("Idempotency-Key"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ports.PaymentReceipt{TransactionID: "TXN1", SettledAt: settled})
	}))
	defer server.Close()

	gateway, err := NewHTTPGateway(server.URL, time.Second)
	require.NoError(t, err)

	receipt, err := gateway.Disburse(context.Background(), ports.PaymentRequest{
		ClaimID:   "CLM-1",
		Amount:    decimal.NewFromInt(45000),
		Reference: "TXN1",
	})
	require.NoError(t, err)
	assert.Equal(t, "TXN1", receipt.TransactionID)
	assert.True(t, receipt.SettledAt.Equal(settled))
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(45000)))
}

func TestHTTPGatewaySurfacesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"bank offline"}`))
	}))
	defer server.Close()

	gateway, err := NewHTTPGateway(server.URL, time.Second)
	require.NoError(t, err)

	_, err = gateway.Disburse(context.Background(), ports.PaymentRequest{ClaimID: "CLM-1", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bank offline")
}

func TestSimulatedGatewayEchoesReferenceAndDeduplicates(t *testing.T) {
	gateway := NewSimulatedGateway()
	ctx := context.Background()

	first, err := gateway.Disburse(ctx, ports.PaymentRequest{ClaimID: "CLM-1", Amount: decimal.NewFromInt(10), Reference: "TXN1"})
	require.NoError(t, err)
	assert.Equal(t, "TXN1", first.TransactionID)
	assert.False(t, first.SettledAt.IsZero())

	again, err := gateway.Disburse(ctx, ports.PaymentRequest{ClaimID: "CLM-1", Amount: decimal.NewFromInt(10), Reference: "TXN9"})
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, gateway.Disbursed())

	minted, err := gateway.Disburse(ctx, ports.PaymentRequest{ClaimID: "CLM-2", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Regexp(t, `^TXN-[0-9A-F-]{36}$`, minted.TransactionID)
}

func TestSimulatedGatewayFailNext(t *testing.T) {
	gateway := NewSimulatedGateway()
	down := errors.New("gateway down")
	gateway.FailNext(down)

	_, err := gateway.Disburse(context.Background(), ports.PaymentRequest{ClaimID: "CLM-1", Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 0, gateway.Disbursed())

	_, err = gateway.Disburse(context.Background(), ports.PaymentRequest{ClaimID: "CLM-1", Amount: decimal.NewFromInt(10)})
	assert.NoError(t, err)
}
