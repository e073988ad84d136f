package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"cropclaim/internal/bootstrap/logging"
	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/errs"
)

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Claim   string `json:"claim,omitempty"`
	State   string `json:"state,omitempty"`
	Field   string `json:"field,omitempty"`
}

func statusForKind(kind string) int {
	switch kind {
	case "validation":
		return http.StatusUnprocessableEntity
	case "invalid_state", "conflict", "concurrent_modification":
		return http.StatusConflict
	case "payout_failed", "collaborator_unavailable":
		return http.StatusBadGateway
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := domainclaim.Kind(err)
	status := statusForKind(kind)

	body := errorResponse{Kind: kind, Message: err.Error()}
	if detail, ok := domainclaim.Details(err); ok {
		body.Claim = detail.Claim
		body.State = string(detail.State)
		body.Field = detail.Field
	}
	if status == http.StatusInternalServerError {
		logging.Error(ctx, "request failed", slog.Any("err", errs.Loggable(err)))
		body.Message = "internal error"
	}
	writeJSON(w, status, body)
}

func writeProblem(w http.ResponseWriter, status int, kind string, message string) {
	writeJSON(w, status, errorResponse{Kind: kind, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// readBody reads at most limit bytes; an oversized body is a validation error.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domainclaim.Validation("", "body", "request body too large")
		}
		return nil, domainclaim.Validation("", "body", "failed to read request body")
	}
	return payload, nil
}

func decodeJSON(payload []byte, into any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return domainclaim.Validation("", "body", "malformed JSON: "+err.Error())
	}
	return nil
}
