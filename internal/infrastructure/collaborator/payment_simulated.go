package collaborator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cropclaim/internal/errs"
	"cropclaim/internal/ports"
)

// SimulatedGateway settles instantly. It echoes the caller's transaction id or mints one,
// and returns the same receipt when the same claim is disbursed twice.
type SimulatedGateway struct {
	mu       sync.Mutex
	receipts map[string]ports.PaymentReceipt
	failures []error
	now      func() time.Time
}

var _ ports.PaymentGateway = (*SimulatedGateway)(nil)

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{
		receipts: make(map[string]ports.PaymentReceipt),
		now:      time.Now,
	}
}

// FailNext queues err for the next disbursement.
func (g *SimulatedGateway) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, err)
}

// Disbursed reports how many distinct claims were paid.
func (g *SimulatedGateway) Disbursed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.receipts)
}

func (g *SimulatedGateway) Disburse(ctx context.Context, request ports.PaymentRequest) (ports.PaymentReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ports.PaymentReceipt{}, errs.Wrap(err, "check context")
	}
	if !request.Amount.IsPositive() {
		return ports.PaymentReceipt{}, errors.New("amount must be positive")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.failures) > 0 {
		err := g.failures[0]
		g.failures = g.failures[1:]
		return ports.PaymentReceipt{}, err
	}
	if receipt, ok := g.receipts[request.ClaimID]; ok {
		return receipt, nil
	}

	txn := strings.TrimSpace(request.Reference)
	if txn == "" {
		txn = "TXN-" + strings.ToUpper(uuid.NewString())
	}
	receipt := ports.PaymentReceipt{TransactionID: txn, SettledAt: g.now().UTC()}
	g.receipts[request.ClaimID] = receipt
	return receipt, nil
}
