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

// HTTPGateway disburses through a JSON payment API. The claim number travels as the
// Idempotency-Key so the provider can deduplicate retried disbursements.
type HTTPGateway struct {
	client *http.Client
	url    string
}

var _ ports.PaymentGateway = (*HTTPGateway)(nil)

type paymentErrorBody struct {
	Error string `json:"error"`
}

func NewHTTPGateway(url string, timeout time.Duration) (*HTTPGateway, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("payment url is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{client: &http.Client{Timeout: timeout}, url: url}, nil
}

func (g *HTTPGateway) Disburse(ctx context.Context, request ports.PaymentRequest) (ports.PaymentReceipt, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return ports.PaymentReceipt{}, errs.Wrap(err, "encode payment request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return ports.PaymentReceipt{}, errs.Wrap(err, "build payment request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", request.ClaimID)

	resp, err := g.client.Do(req)
	if err != nil {
		return ports.PaymentReceipt{}, errs.Wrap(err, "post payment request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ports.PaymentReceipt{}, errs.Wrap(err, "read payment response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure paymentErrorBody
		if json.Unmarshal(body, &failure) == nil && strings.TrimSpace(failure.Error) != "" {
			return ports.PaymentReceipt{}, fmt.Errorf("payment gateway responded %d: %s", resp.StatusCode, failure.Error)
		}
		return ports.PaymentReceipt{}, fmt.Errorf("payment gateway responded %d", resp.StatusCode)
	}

	var receipt ports.PaymentReceipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return ports.PaymentReceipt{}, errs.Wrap(err, "decode payment receipt")
	}
	return receipt, nil
}
