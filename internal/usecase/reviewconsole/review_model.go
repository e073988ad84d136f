package reviewconsole

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"cropclaim/internal/bootstrap/logging"
	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/ports"
	"cropclaim/internal/usecase/claims"
)

const maxAuditLines = 8

// ClaimService is the part of the claims engine the console drives.
type ClaimService interface {
	ListClaims(ctx context.Context, input claims.ListClaimsInput) ([]ports.Claim, error)
	GetClaimDetail(ctx context.Context, claimRef string) (claims.ClaimDetail, error)
	AssignReviewer(ctx context.Context, input claims.AssignReviewerInput) (ports.Claim, error)
	SubmitDecision(ctx context.Context, input claims.SubmitDecisionInput) (claims.SubmitDecisionResult, error)
	MarkFraudSuspect(ctx context.Context, input claims.FraudFlagInput) (claims.FraudFlagResult, error)
	ClearFraudSuspect(ctx context.Context, input claims.FraudFlagInput) (claims.FraudFlagResult, error)
	ReleaseForSettlement(ctx context.Context, input claims.ReleaseForSettlementInput) (ports.Claim, error)
}

type Options struct {
	ReviewerID string
	// OnlyMine hides claims assigned to other reviewers.
	OnlyMine        bool
	StatusFilter    string
	RefreshInterval time.Duration
}

type reviewModel struct {
	ctx             context.Context
	service         ClaimService
	reviewerID      string
	onlyMine        bool
	statuses        []string
	refreshInterval time.Duration

	claims        []ports.Claim
	selectedIndex int
	detail        claims.ClaimDetail
	hasDetail     bool
	status        string
	auditLogs     []string
}

type claimsLoadedMsg struct {
	items []ports.Claim
	err   error
}

type claimDetailLoadedMsg struct {
	claimRef string
	detail   claims.ClaimDetail
	err      error
}

type tickMsg struct{}

type actionDoneMsg struct {
	action   string
	claimRef string
	result   string
	err      error
}

// reviewQueueStatuses are the states a reviewer can still act on.
var reviewQueueStatuses = []string{
	string(domainclaim.StatusSubmitted),
	string(domainclaim.StatusAssigned),
	string(domainclaim.StatusAIProcessed),
	string(domainclaim.StatusUnderReview),
	string(domainclaim.StatusDecided),
}

func NewReviewModel(ctx context.Context, service ClaimService, options Options) tea.Model {
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	reviewer := strings.TrimSpace(options.ReviewerID)
	if reviewer == "" {
		reviewer = "console-reviewer"
	}

	return &reviewModel{
		ctx:             logging.WithAttrs(ctx, slog.String("component", "usecase.reviewconsole")),
		service:         service,
		reviewerID:      reviewer,
		onlyMine:        options.OnlyMine,
		statuses:        normalizeStatusFilter(options.StatusFilter),
		refreshInterval: interval,
		status:          "loading",
	}
}

func (m *reviewModel) Init() tea.Cmd {
	return tea.Batch(m.loadClaimsCmd(), m.tickCmd())
}

func (m *reviewModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		return m, tea.Batch(m.loadClaimsCmd(), m.tickCmd())
	case claimsLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.claims = msg.items
		if len(m.claims) == 0 {
			m.selectedIndex = 0
			m.hasDetail = false
			m.status = "queue is empty"
			return m, nil
		}
		if m.selectedIndex < 0 {
			m.selectedIndex = 0
		}
		if m.selectedIndex >= len(m.claims) {
			m.selectedIndex = len(m.claims) - 1
		}
		m.status = fmt.Sprintf("refreshed, %d claims", len(m.claims))
		return m, m.loadSelectedDetailCmd()
	case claimDetailLoadedMsg:
		if !m.isCurrentSelection(msg.claimRef) {
			return m, nil
		}
		if msg.err != nil {
			m.hasDetail = false
			m.status = "detail failed: " + msg.err.Error()
			return m, nil
		}
		m.detail = msg.detail
		m.hasDetail = true
		return m, nil
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %s", msg.action, describeError(msg.err))
			m.appendAuditLog(msg.action, msg.claimRef, "", msg.err)
		} else {
			m.status = fmt.Sprintf("%s done: %s", msg.action, msg.result)
			m.appendAuditLog(msg.action, msg.claimRef, msg.result, nil)
		}
		return m, m.loadClaimsCmd()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, m.loadClaimsCmd()
		case "up", "k":
			if m.selectedIndex > 0 {
				m.selectedIndex--
				return m, m.loadSelectedDetailCmd()
			}
			return m, nil
		case "down", "j":
			if m.selectedIndex < len(m.claims)-1 {
				m.selectedIndex++
				return m, m.loadSelectedDetailCmd()
			}
			return m, nil
		case "a":
			return m, m.assignCmd()
		case "y":
			return m, m.decideCmd(domainclaim.OutcomeApprove)
		case "p":
			return m, m.decideCmd(domainclaim.OutcomePartial)
		case "n":
			return m, m.decideCmd(domainclaim.OutcomeReject)
		case "f":
			return m, m.toggleFraudCmd()
		case "r":
			return m, m.releaseCmd()
		}
	}
	return m, nil
}

func (m *reviewModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("Claim Review Console"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"reviewer=%s mine=%t statuses=%s refresh=%s",
		m.reviewerID,
		m.onlyMine,
		strings.Join(m.statuses, ","),
		m.refreshInterval,
	)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Queue"))
	builder.WriteString("\n")
	if len(m.claims) == 0 {
		builder.WriteString(dimStyle.Render("- no claims"))
		builder.WriteString("\n\n")
	} else {
		for index, item := range m.claims {
			line := queueLine(item)
			switch {
			case index == m.selectedIndex:
				builder.WriteString(selectedStyle.Render("> " + line))
			case item.FraudSuspect:
				builder.WriteString("  " + warnStyle.Render(line))
			default:
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Detail"))
	builder.WriteString("\n")
	if !m.hasDetail {
		builder.WriteString(dimStyle.Render("- no detail"))
		builder.WriteString("\n\n")
	} else {
		builder.WriteString(renderDetail(m.detail))
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + firstNonEmpty(m.status, "ready"))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Audit Log"))
	builder.WriteString("\n")
	if len(m.auditLogs) == 0 {
		builder.WriteString(dimStyle.Render("- no actions"))
		builder.WriteString("\n\n")
	} else {
		for _, line := range m.auditLogs {
			builder.WriteString("- " + line)
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(dimStyle.Render("Keys: ↑/k ↓/j move  g refresh  a assign  y approve  p partial  n reject  f fraud  r release  q quit"))
	return builder.String()
}

func (m *reviewModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *reviewModel) loadClaimsCmd() tea.Cmd {
	return func() tea.Msg {
		items, err := m.service.ListClaims(m.ctx, claims.ListClaimsInput{Statuses: m.statuses})
		if err != nil {
			return claimsLoadedMsg{err: err}
		}
		return claimsLoadedMsg{items: filterClaims(items, m.reviewerID, m.onlyMine)}
	}
}

func (m *reviewModel) loadSelectedDetailCmd() tea.Cmd {
	selected, ok := m.selectedClaim()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		detail, err := m.service.GetClaimDetail(m.ctx, selected.ClaimNumber)
		return claimDetailLoadedMsg{claimRef: selected.ClaimNumber, detail: detail, err: err}
	}
}

func (m *reviewModel) assignCmd() tea.Cmd {
	selected, ok := m.selectedClaim()
	if !ok {
		m.status = "no claim selected"
		return nil
	}
	m.status = "assigning..."
	return func() tea.Msg {
		claim, err := m.service.AssignReviewer(m.ctx, claims.AssignReviewerInput{
			ClaimRef:   selected.ClaimNumber,
			ReviewerID: m.reviewerID,
			Actor:      m.reviewerID,
		})
		if err != nil {
			return actionDoneMsg{action: "assign", claimRef: selected.ClaimNumber, err: err}
		}
		return actionDoneMsg{action: "assign", claimRef: claim.ClaimNumber, result: string(claim.Status)}
	}
}

// decideCmd submits against the version shown in the detail pane so a concurrent change
// surfaces as a conflict instead of being overwritten.
func (m *reviewModel) decideCmd(outcome domainclaim.Outcome) tea.Cmd {
	if !m.hasDetail {
		m.status = "no claim selected"
		return nil
	}
	detail := m.detail
	action := "decide " + string(outcome)

	var approved *decimal.Decimal
	if outcome == domainclaim.OutcomePartial {
		amount, err := partialAmount(detail)
		if err != nil {
			m.status = action + " failed: " + err.Error()
			return nil
		}
		approved = &amount
	}

	m.status = action + "..."
	return func() tea.Msg {
		result, err := m.service.SubmitDecision(m.ctx, claims.SubmitDecisionInput{
			ClaimRef:        detail.Claim.ClaimNumber,
			ReviewerID:      m.reviewerID,
			Outcome:         string(outcome),
			FinalComments:   "decided in review console",
			ApprovedAmount:  approved,
			ExpectedVersion: detail.Claim.Version,
		})
		if err != nil {
			return actionDoneMsg{action: action, claimRef: detail.Claim.ClaimNumber, err: err}
		}
		out := domainclaim.Label(result.Claim.Status, result.Claim.DecisionOutcome)
		if result.HoldReason != "" {
			out += " held: " + result.HoldReason
		}
		return actionDoneMsg{action: action, claimRef: result.Claim.ClaimNumber, result: out}
	}
}

func (m *reviewModel) toggleFraudCmd() tea.Cmd {
	selected, ok := m.selectedClaim()
	if !ok {
		m.status = "no claim selected"
		return nil
	}
	input := claims.FraudFlagInput{ClaimRef: selected.ClaimNumber, ReviewerID: m.reviewerID}
	if selected.FraudSuspect {
		return func() tea.Msg {
			result, err := m.service.ClearFraudSuspect(m.ctx, input)
			if err != nil {
				return actionDoneMsg{action: "clear fraud", claimRef: selected.ClaimNumber, err: err}
			}
			return actionDoneMsg{action: "clear fraud", claimRef: selected.ClaimNumber, result: string(result.Claim.Status)}
		}
	}
	input.Reason = "flagged in review console"
	return func() tea.Msg {
		result, err := m.service.MarkFraudSuspect(m.ctx, input)
		if err != nil {
			return actionDoneMsg{action: "flag fraud", claimRef: selected.ClaimNumber, err: err}
		}
		return actionDoneMsg{action: "flag fraud", claimRef: selected.ClaimNumber, result: string(result.Claim.Status)}
	}
}

func (m *reviewModel) releaseCmd() tea.Cmd {
	selected, ok := m.selectedClaim()
	if !ok {
		m.status = "no claim selected"
		return nil
	}
	if selected.Status != domainclaim.StatusDecided {
		m.status = "release: claim is not DECIDED"
		return nil
	}
	return func() tea.Msg {
		claim, err := m.service.ReleaseForSettlement(m.ctx, claims.ReleaseForSettlementInput{
			ClaimRef: selected.ClaimNumber,
			Actor:    m.reviewerID,
		})
		if err != nil {
			return actionDoneMsg{action: "release", claimRef: selected.ClaimNumber, err: err}
		}
		return actionDoneMsg{action: "release", claimRef: claim.ClaimNumber, result: string(claim.Status)}
	}
}

func (m *reviewModel) selectedClaim() (ports.Claim, bool) {
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.claims) {
		return ports.Claim{}, false
	}
	return m.claims[m.selectedIndex], true
}

func (m *reviewModel) isCurrentSelection(claimRef string) bool {
	selected, ok := m.selectedClaim()
	return ok && selected.ClaimNumber == claimRef
}

func (m *reviewModel) appendAuditLog(action string, claimRef string, result string, opErr error) {
	outcome := strings.TrimSpace(result)
	if opErr != nil {
		outcome = "error: " + describeError(opErr)
	}
	if outcome == "" {
		outcome = "ok"
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s reviewer=%s claim=%s action=%s result=%s", timestamp, m.reviewerID, claimRef, action, outcome)
	m.auditLogs = append([]string{line}, m.auditLogs...)
	if len(m.auditLogs) > maxAuditLines {
		m.auditLogs = m.auditLogs[:maxAuditLines]
	}

	logging.Info(m.ctx, "review console action",
		slog.String("reviewer", m.reviewerID),
		slog.String("claim", claimRef),
		slog.String("action", action),
		slog.String("result", outcome),
	)
}

func filterClaims(items []ports.Claim, reviewerID string, onlyMine bool) []ports.Claim {
	if !onlyMine {
		return items
	}
	filtered := make([]ports.Claim, 0, len(items))
	for _, item := range items {
		if item.AssignedReviewerID == nil || *item.AssignedReviewerID == reviewerID {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// normalizeStatusFilter turns "ai_processed,under_review" into known statuses; empty or
// unknown input falls back to the review queue.
func normalizeStatusFilter(input string) []string {
	out := make([]string, 0)
	for _, raw := range strings.Split(input, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, err := domainclaim.ParseStatus(raw)
		if err != nil {
			continue
		}
		out = append(out, string(status))
	}
	if len(out) == 0 {
		return append([]string(nil), reviewQueueStatuses...)
	}
	return out
}

// partialAmount proposes the AI recommendation when it is a valid reduced amount.
func partialAmount(detail claims.ClaimDetail) (decimal.Decimal, error) {
	if detail.Report == nil || !detail.Report.AIRecommendedAmount.Valid {
		return decimal.Zero, errors.New("no AI recommendation to settle partially; use the CLI with --approved-amount")
	}
	amount := detail.Report.AIRecommendedAmount.Decimal
	if !amount.IsPositive() || !amount.LessThan(detail.Claim.AmountClaimed) {
		return decimal.Zero, fmt.Errorf("AI recommendation %s is not below the claimed amount", amount.StringFixed(2))
	}
	return amount, nil
}

func queueLine(item ports.Claim) string {
	reviewer := "-"
	if item.AssignedReviewerID != nil {
		reviewer = firstNonEmpty(*item.AssignedReviewerID, "-")
	}
	fraud := ""
	if item.FraudSuspect {
		fraud = " FRAUD?"
	}
	return fmt.Sprintf(
		"%s [%s] farmer=%s amount=%s reviewer=%s%s",
		item.ClaimNumber,
		domainclaim.Label(item.Status, item.DecisionOutcome),
		item.FarmerID,
		item.AmountClaimed.StringFixed(2),
		reviewer,
		fraud,
	)
}

func renderDetail(detail claims.ClaimDetail) string {
	claim := detail.Claim
	var b strings.Builder
	fmt.Fprintf(&b, "Claim: %s policy=%s farmer=%s version=%d\n", claim.ClaimNumber, claim.PolicyID, claim.FarmerID, claim.Version)
	fmt.Fprintf(&b, "Status: %s fraud=%t\n", domainclaim.Label(claim.Status, claim.DecisionOutcome), claim.FraudSuspect)
	fmt.Fprintf(&b, "Incident: %s %s\n", claim.DateOfIncident.Format(time.DateOnly), firstNonEmpty(claim.LocationOfIncident, "-"))
	fmt.Fprintf(&b, "Claimed: %s\n", claim.AmountClaimed.StringFixed(2))
	if line := firstNonEmptyLine(claim.Description); line != "" {
		fmt.Fprintf(&b, "Description: %s\n", line)
	}

	if detail.Report == nil {
		b.WriteString("Assessment: pending\n")
	} else {
		report := detail.Report
		recommended := "-"
		if report.AIRecommendedAmount.Valid {
			recommended = report.AIRecommendedAmount.Decimal.StringFixed(2)
		}
		fmt.Fprintf(&b, "Assessment: damage=%s recommended=%s confidence=%s\n",
			formatFloat(report.AIDamagePercent), recommended, formatFloat(report.ConfidenceScore))
		if len(report.ValidationFlags) > 0 {
			fmt.Fprintf(&b, "Flags: %s\n", strings.Join(report.ValidationFlags, ","))
		}
		if report.WeatherSummary != "" {
			fmt.Fprintf(&b, "Weather: %s\n", firstNonEmptyLine(report.WeatherSummary))
		}
	}

	if detail.Draft != nil {
		fmt.Fprintf(&b, "Draft: by=%s area=%s damage=%s\n", detail.Draft.UpdatedBy, firstNonEmpty(detail.Draft.VerifiedArea, "-"), detail.Draft.DamageConfirmation)
	}
	if detail.Decision != nil {
		fmt.Fprintf(&b, "Decision: %s approved=%s by=%s\n", detail.Decision.Outcome, detail.Decision.ApprovedAmount.StringFixed(2), detail.Decision.DecidedBy)
	}
	if detail.Payout != nil {
		fmt.Fprintf(&b, "Payout: %s txn=%s\n", detail.Payout.Amount.StringFixed(2), detail.Payout.TransactionID)
	}
	return b.String()
}

// describeError keeps the console line short: kind plus detail.
func describeError(err error) string {
	if detail, ok := domainclaim.Details(err); ok {
		return fmt.Sprintf("%s (%s)", domainclaim.Kind(err), firstNonEmpty(detail.Detail, string(detail.State), detail.Field))
	}
	return err.Error()
}

func formatFloat(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *value)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func firstNonEmptyLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
