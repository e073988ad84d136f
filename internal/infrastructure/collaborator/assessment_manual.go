package collaborator

import (
	"context"
	"log/slog"

	"cropclaim/internal/bootstrap/logging"
	"cropclaim/internal/ports"
)

// ManualDispatcher only records the hand-off. Results are fed back by an operator
// through the CLI or the HTTP callback.
type ManualDispatcher struct{}

var _ ports.AssessmentDispatcher = ManualDispatcher{}

func (ManualDispatcher) Dispatch(ctx context.Context, request ports.AssessmentDispatch) error {
	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "collaborator.assessment.manual")),
		"assessment request recorded for manual processing",
		slog.String("claim", request.ClaimID),
		slog.String("request_id", request.RequestID),
		slog.Int("attempt", request.Attempt),
	)
	return nil
}
