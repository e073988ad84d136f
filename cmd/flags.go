package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/errs"
	"cropclaim/internal/ports"
)

// resolveBody reads --body or --body-file.
func resolveBody(cmd *cobra.Command, required bool) (string, error) {
	inlineBody, _ := cmd.Flags().GetString("body")
	bodyFile, _ := cmd.Flags().GetString("body-file")

	if strings.TrimSpace(inlineBody) != "" && strings.TrimSpace(bodyFile) != "" {
		return "", errors.New("body and body-file are mutually exclusive")
	}

	if strings.TrimSpace(bodyFile) != "" {
		var raw []byte
		var err error
		if bodyFile == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(bodyFile)
		}
		if err != nil {
			return "", errs.Wrapf(err, "read body file %q", bodyFile)
		}
		inlineBody = string(raw)
	}

	if required && strings.TrimSpace(inlineBody) == "" {
		return "", errors.New("body is required (set --body or --body-file)")
	}
	return inlineBody, nil
}

func parseAmountFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("--%s: invalid amount %q", name, raw)
	}
	return value, nil
}

// parseOptionalAmountFlag returns nil when the flag was not given.
func parseOptionalAmountFlag(cmd *cobra.Command, name string) (*decimal.Decimal, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	value, err := parseAmountFlag(cmd, name)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// parseDateFlag accepts YYYY-MM-DD or RFC3339.
func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if value, err := time.Parse(time.DateOnly, raw); err == nil {
		return value, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: invalid date %q (want YYYY-MM-DD)", name, raw)
	}
	return value, nil
}

func writeClaimLine(w io.Writer, claim ports.Claim) error {
	reviewer := "-"
	if claim.AssignedReviewerID != nil && *claim.AssignedReviewerID != "" {
		reviewer = *claim.AssignedReviewerID
	}
	_, err := fmt.Fprintf(
		w,
		"%s [%s] policy=%s farmer=%s amount=%s incident=%s reviewer=%s fraud=%t version=%d\n",
		claim.ClaimNumber,
		domainclaim.Label(claim.Status, claim.DecisionOutcome),
		claim.PolicyID,
		claim.FarmerID,
		claim.AmountClaimed.StringFixed(2),
		claim.DateOfIncident.Format(time.DateOnly),
		reviewer,
		claim.FraudSuspect,
		claim.Version,
	)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func formatPercent(value *float64) string {
	if value == nil {
		return "-"
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}

func formatNullAmount(report *ports.AssessmentReport) string {
	if !report.AIRecommendedAmount.Valid {
		return "-"
	}
	return report.AIRecommendedAmount.Decimal.StringFixed(2)
}
