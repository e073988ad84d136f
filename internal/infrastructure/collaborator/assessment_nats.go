package collaborator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"cropclaim/internal/bootstrap/logging"
	"cropclaim/internal/errs"
	"cropclaim/internal/ports"
)

// NATSDispatcher publishes assessment requests as JSON on a subject.
type NATSDispatcher struct {
	conn    *nats.Conn
	subject string
}

var _ ports.AssessmentDispatcher = (*NATSDispatcher)(nil)

func NewNATSDispatcher(conn *nats.Conn, subject string) (*NATSDispatcher, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, errors.New("assessment subject is required")
	}
	return &NATSDispatcher{conn: conn, subject: subject}, nil
}

func (d *NATSDispatcher) Dispatch(ctx context.Context, request ports.AssessmentDispatch) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return errs.Wrap(err, "encode assessment request")
	}

	msg := nats.NewMsg(d.subject)
	msg.Data = payload
	msg.Header.Set("Claim-Id", request.ClaimID)
	msg.Header.Set("Request-Id", request.RequestID)
	if err := d.conn.PublishMsg(msg); err != nil {
		return errs.Wrapf(err, "publish assessment request on %s", d.subject)
	}
	return nil
}

// SubscribeAssessmentResults feeds every message on subject to handle. Undecodable messages
// are logged and dropped; handler errors are logged and the message is not redelivered.
func SubscribeAssessmentResults(
	ctx context.Context,
	conn *nats.Conn,
	subject string,
	handle ports.AssessmentResultHandler,
) (*nats.Subscription, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	if handle == nil {
		return nil, errors.New("result handler is required")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, errors.New("result subject is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "collaborator.assessment.nats"), slog.String("subject", subject))

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		var result ports.AssessmentResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			logging.Warn(logCtx, "drop undecodable assessment result", slog.Any("err", errs.Loggable(err)))
			return
		}
		if strings.TrimSpace(result.ClaimID) == "" {
			result.ClaimID = msg.Header.Get("Claim-Id")
		}

		msgCtx := logging.WithAttrs(logCtx, slog.String("claim", result.ClaimID), slog.String("request_id", result.RequestID))
		if err := handle(msgCtx, result); err != nil {
			logging.Error(msgCtx, "assessment result rejected", slog.Any("err", errs.Loggable(err)))
			return
		}
		logging.Info(msgCtx, "assessment result consumed")
	})
	if err != nil {
		return nil, errs.Wrapf(err, "subscribe %s", subject)
	}
	return sub, nil
}
