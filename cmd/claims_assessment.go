package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cropclaim/internal/bootstrap"
	"cropclaim/internal/bootstrap/logging"
	"cropclaim/internal/errs"
	"cropclaim/internal/ports"
	"cropclaim/internal/usecase/claims"
)

var claimsAssessmentCmd = &cobra.Command{
	Use:   "assessment",
	Short: "Request, retry and record AI assessments",
}

var claimsAssessmentRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Open an assessment request unless one is already outstanding",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		claimRef, _ := cmd.Flags().GetString("claim")
		result, err := svc.RequestAssessment(ctx, claims.RequestAssessmentInput{ClaimRef: claimRef})
		if err != nil {
			logging.Error(ctx, "request assessment failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "request assessment")
		}
		return writeAssessmentRequest(cmd, result)
	}),
}

var claimsAssessmentRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Supersede the outstanding assessment request with a new attempt",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		claimRef, _ := cmd.Flags().GetString("claim")
		operator, _ := cmd.Flags().GetString("operator")
		result, err := svc.RetryAssessment(ctx, claims.RetryAssessmentInput{
			ClaimRef: claimRef,
			Operator: operator,
		})
		if err != nil {
			logging.Error(ctx, "retry assessment failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "retry assessment")
		}
		return writeAssessmentRequest(cmd, result)
	}),
}

var claimsAssessmentResultCmd = &cobra.Command{
	Use:   "result",
	Short: "Record an assessment result given as collaborator JSON",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		body, err := resolveBody(cmd, true)
		if err != nil {
			return err
		}
		var payload ports.AssessmentResult
		if err := json.Unmarshal([]byte(body), &payload); err != nil {
			return errs.Wrap(err, "decode assessment result")
		}
		if claimRef, _ := cmd.Flags().GetString("claim"); strings.TrimSpace(claimRef) != "" {
			payload.ClaimID = claimRef
		}

		result, err := svc.ReceiveAssessmentResult(ctx, payload)
		if err != nil {
			logging.Error(ctx, "receive assessment result failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "receive assessment result")
		}

		line := fmt.Sprintf("assessment recorded: %s status=%s transitioned=%t", result.Claim.ClaimNumber, result.Claim.Status, result.Transitioned)
		if result.SkipReason != "" {
			line += " reason=" + result.SkipReason
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return errs.Wrap(err, "write result output")
		}
		return nil
	}),
}

var claimsAssessmentStaleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List assessment requests outstanding past the timeout",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		limit, _ := cmd.Flags().GetInt("limit")
		items, err := svc.ListStaleAssessments(ctx, limit)
		if err != nil {
			logging.Error(ctx, "list stale assessments failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list stale assessments")
		}

		if len(items) == 0 {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), "no stale assessments"); err != nil {
				return errs.Wrap(err, "write stale output")
			}
			return nil
		}
		for _, item := range items {
			if _, err := fmt.Fprintf(
				cmd.OutOrStdout(),
				"%s request=%s attempt=%d age=%s\n",
				item.Request.ClaimNumber,
				item.Request.RequestID,
				item.Request.Attempt,
				item.Age.Truncate(time.Second),
			); err != nil {
				return errs.Wrap(err, "write stale item")
			}
		}
		return nil
	}),
}

func writeAssessmentRequest(cmd *cobra.Command, result claims.AssessmentRequestResult) error {
	if _, err := fmt.Fprintf(
		cmd.OutOrStdout(),
		"assessment request: %s claim=%s attempt=%d status=%s dispatched=%t\n",
		result.Request.RequestID,
		result.Request.ClaimNumber,
		result.Request.Attempt,
		result.Request.Status,
		result.Dispatched,
	); err != nil {
		return errs.Wrap(err, "write assessment output")
	}
	return nil
}

func init() {
	claimsCmd.AddCommand(claimsAssessmentCmd)
	claimsAssessmentCmd.AddCommand(claimsAssessmentRequestCmd)
	claimsAssessmentCmd.AddCommand(claimsAssessmentRetryCmd)
	claimsAssessmentCmd.AddCommand(claimsAssessmentResultCmd)
	claimsAssessmentCmd.AddCommand(claimsAssessmentStaleCmd)

	claimsAssessmentRequestCmd.Flags().String("claim", "", "Claim number or id")
	_ = claimsAssessmentRequestCmd.MarkFlagRequired("claim")
	claimsAssessmentRetryCmd.Flags().String("claim", "", "Claim number or id")
	claimsAssessmentRetryCmd.Flags().String("operator", "", "Operator requesting the retry")
	_ = claimsAssessmentRetryCmd.MarkFlagRequired("claim")

	claimsAssessmentResultCmd.Flags().String("claim", "", "Claim number (overrides claim_id in the payload)")
	claimsAssessmentResultCmd.Flags().String("body", "", "Result JSON")
	claimsAssessmentResultCmd.Flags().String("body-file", "", "Result JSON file path (- for stdin)")

	claimsAssessmentStaleCmd.Flags().Int("limit", 100, "Max requests")
}
