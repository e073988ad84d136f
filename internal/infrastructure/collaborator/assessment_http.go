package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cropclaim/internal/errs"
	"cropclaim/internal/ports"
)

// HTTPDispatcher posts the request to the assessment service, which only acknowledges it.
// The result comes back later through the callback endpoint.
type HTTPDispatcher struct {
	client *http.Client
	url    string
}

var _ ports.AssessmentDispatcher = (*HTTPDispatcher)(nil)

func NewHTTPDispatcher(url string, timeout time.Duration) (*HTTPDispatcher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("assessment url is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDispatcher{client: &http.Client{Timeout: timeout}, url: url}, nil
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, request ports.AssessmentDispatch) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return errs.Wrap(err, "encode assessment request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return errs.Wrap(err, "build assessment request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", request.RequestID)

	resp, err := d.client.Do(req)
	if err != nil {
		return errs.Wrap(err, "post assessment request")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("assessment service responded %d", resp.StatusCode)
	}
	return nil
}
