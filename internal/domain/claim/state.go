package claim

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusSubmitted     Status = "SUBMITTED"
	StatusAssigned      Status = "ASSIGNED"
	StatusAIProcessed   Status = "AI_PROCESSED"
	StatusUnderReview   Status = "UNDER_REVIEW"
	StatusDecided       Status = "DECIDED"
	StatusPayoutPending Status = "PAYOUT_PENDING"
	StatusPaid          Status = "PAID"
	StatusClosed        Status = "CLOSED"
)

var allStatuses = []Status{
	StatusSubmitted,
	StatusAssigned,
	StatusAIProcessed,
	StatusUnderReview,
	StatusDecided,
	StatusPayoutPending,
	StatusPaid,
	StatusClosed,
}

// Statuses returns every claim status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func ParseStatus(raw string) (Status, error) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(raw)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
}

// IsTerminal reports whether no further transition can leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusClosed
}

// AwaitingAssessment reports whether an assessment result may still advance the claim.
func (s Status) AwaitingAssessment() bool {
	return s == StatusSubmitted || s == StatusAssigned
}

// Label renders DECIDED together with its outcome, e.g. DECIDED(approve).
func Label(status Status, outcome Outcome) string {
	if status == StatusDecided && outcome != "" {
		return fmt.Sprintf("%s(%s)", status, outcome)
	}
	return string(status)
}

// Operation names an engine action; it tags transitions and error context.
type Operation string

const (
	OpAssignReviewer    Operation = "assign_reviewer"
	OpAssessmentArrived Operation = "assessment_arrived"
	OpSaveDraft         Operation = "save_draft"
	OpSubmitDecision    Operation = "submit_decision"
	OpReleaseSettlement Operation = "release_settlement"
	OpCloseRejected     Operation = "close_rejected"
	OpProcessPayout     Operation = "process_payout"
	OpMarkFraudSuspect  Operation = "mark_fraud_suspect"
	OpClearFraudSuspect Operation = "clear_fraud_suspect"
	OpSubmitClaim       Operation = "submit_claim"
	OpRequestAssessment Operation = "request_assessment"
	OpRetryAssessment   Operation = "retry_assessment"
	OpReceiveAssessment Operation = "receive_assessment"
	OpGetClaim          Operation = "get_claim"
)

var transitionOps = []Operation{
	OpAssignReviewer,
	OpAssessmentArrived,
	OpSaveDraft,
	OpSubmitDecision,
	OpReleaseSettlement,
	OpCloseRejected,
	OpProcessPayout,
}

// TransitionOperations returns the operations governed by the transition table.
func TransitionOperations() []Operation {
	out := make([]Operation, len(transitionOps))
	copy(out, transitionOps)
	return out
}

type edge struct {
	op   Operation
	from Status
}

type transition struct {
	op   Operation
	from Status
	to   Status
}

var transitionTable = []transition{
	{op: OpAssignReviewer, from: StatusSubmitted, to: StatusAssigned},
	{op: OpAssessmentArrived, from: StatusSubmitted, to: StatusAIProcessed},
	{op: OpAssessmentArrived, from: StatusAssigned, to: StatusAIProcessed},
	{op: OpSaveDraft, from: StatusAIProcessed, to: StatusUnderReview},
	{op: OpSaveDraft, from: StatusUnderReview, to: StatusUnderReview},
	{op: OpSubmitDecision, from: StatusAIProcessed, to: StatusDecided},
	{op: OpSubmitDecision, from: StatusUnderReview, to: StatusDecided},
	{op: OpReleaseSettlement, from: StatusDecided, to: StatusPayoutPending},
	{op: OpCloseRejected, from: StatusDecided, to: StatusClosed},
	{op: OpProcessPayout, from: StatusPayoutPending, to: StatusPaid},
}

var transitions = func() map[edge]Status {
	out := make(map[edge]Status, len(transitionTable))
	for _, t := range transitionTable {
		out[edge{op: t.op, from: t.from}] = t.to
	}
	return out
}()

// Next resolves the target status of op applied to a claim in status from.
// outcome is the recorded decision outcome and only matters once the claim is DECIDED.
func Next(op Operation, from Status, outcome Outcome) (Status, bool) {
	to, ok := transitions[edge{op: op, from: from}]
	if !ok {
		return "", false
	}

	switch op {
	case OpReleaseSettlement:
		if outcome != OutcomeApprove && outcome != OutcomePartial {
			return "", false
		}
	case OpCloseRejected:
		if outcome != OutcomeReject {
			return "", false
		}
	}
	return to, true
}

// CanFlagFraud reports whether the fraud flag may be toggled in status.
func CanFlagFraud(status Status) bool {
	return !status.IsTerminal()
}
