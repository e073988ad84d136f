package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cropclaim/internal/bootstrap"
	"cropclaim/internal/bootstrap/logging"
	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/errs"
	"cropclaim/internal/usecase/claims"
)

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Submit, review and settle crop insurance claims",
}

var claimsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a claim (idempotent per farmer and --key)",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		amount, err := parseAmountFlag(cmd, "amount")
		if err != nil {
			return err
		}
		incident, err := parseDateFlag(cmd, "incident")
		if err != nil {
			return err
		}
		key, _ := cmd.Flags().GetString("key")
		policyID, _ := cmd.Flags().GetString("policy")
		farmerID, _ := cmd.Flags().GetString("farmer")
		location, _ := cmd.Flags().GetString("location")
		evidence, _ := cmd.Flags().GetStringSlice("evidence")
		description, err := resolveBody(cmd, false)
		if err != nil {
			return err
		}

		result, err := svc.SubmitClaim(ctx, claims.SubmitClaimInput{
			IdempotencyKey: key,
			PolicyID:       policyID,
			FarmerID:       farmerID,
			DateOfIncident: incident,
			Location:       location,
			Description:    description,
			AmountClaimed:  amount,
			EvidenceRefs:   evidence,
		})
		if err != nil {
			logging.Error(ctx, "submit claim failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "submit claim")
		}

		verb := "submitted"
		if !result.Created {
			verb = "replayed"
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s claim: ", verb); err != nil {
			return errs.Wrap(err, "write submit output")
		}
		if err := writeClaimLine(cmd.OutOrStdout(), result.Claim); err != nil {
			return errs.Wrap(err, "write submit output")
		}
		return nil
	}),
}

var claimsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a claim with its assessment, review, decision and payout",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		claimRef, _ := cmd.Flags().GetString("claim")
		detail, err := svc.GetClaimDetail(ctx, claimRef)
		if err != nil {
			logging.Error(ctx, "show claim failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "show claim")
		}

		if err := writeClaimDetail(cmd.OutOrStdout(), detail); err != nil {
			return errs.Wrap(err, "write show output")
		}
		return nil
	}),
}

var claimsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List claims",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		statuses, _ := cmd.Flags().GetStringSlice("status")
		farmerID, _ := cmd.Flags().GetString("farmer")
		policyID, _ := cmd.Flags().GetString("policy")
		limit, _ := cmd.Flags().GetInt("limit")

		items, err := svc.ListClaims(ctx, claims.ListClaimsInput{
			Statuses: statuses,
			FarmerID: farmerID,
			PolicyID: policyID,
			Limit:    limit,
		})
		if err != nil {
			logging.Error(ctx, "list claims failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list claims")
		}

		if len(items) == 0 {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), "no claims"); err != nil {
				return errs.Wrap(err, "write list output")
			}
			return nil
		}
		for _, item := range items {
			if err := writeClaimLine(cmd.OutOrStdout(), item); err != nil {
				return errs.Wrap(err, "write list item")
			}
		}
		return nil
	}),
}

var claimsAssignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Assign a reviewer to a submitted claim",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		claimRef, _ := cmd.Flags().GetString("claim")
		reviewer, _ := cmd.Flags().GetString("reviewer")
		actor, _ := cmd.Flags().GetString("actor")

		claim, err := svc.AssignReviewer(ctx, claims.AssignReviewerInput{
			ClaimRef:   claimRef,
			ReviewerID: reviewer,
			Actor:      actor,
		})
		if err != nil {
			logging.Error(ctx, "assign reviewer failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "assign reviewer")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "assigned claim: %s reviewer=%s\n", claim.ClaimNumber, reviewer); err != nil {
			return errs.Wrap(err, "write assign output")
		}
		return nil
	}),
}

var claimsDraftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Save the reviewer's working draft (last write wins)",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		claimRef, _ := cmd.Flags().GetString("claim")
		reviewer, _ := cmd.Flags().GetString("reviewer")
		area, _ := cmd.Flags().GetString("verified-area")
		damage, _ := cmd.Flags().GetString("damage")
		photos, _ := cmd.Flags().GetStringSlice("photo")
		comments, err := resolveBody(cmd, false)
		if err != nil {
			return err
		}

		claim, err := svc.SaveDraft(ctx, claims.SaveDraftInput{
			ClaimRef:           claimRef,
			ReviewerID:         reviewer,
			VerifiedArea:       area,
			DamageConfirmation: damage,
			Comments:           comments,
			FieldPhotoRefs:     photos,
		})
		if err != nil {
			logging.Error(ctx, "save review draft failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "save review draft")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "saved draft: %s [%s]\n", claim.ClaimNumber, claim.Status); err != nil {
			return errs.Wrap(err, "write draft output")
		}
		return nil
	}),
}

var claimsDecideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Submit the final decision (approve|reject|partial)",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		approved, err := parseOptionalAmountFlag(cmd, "approved-amount")
		if err != nil {
			return err
		}
		claimRef, _ := cmd.Flags().GetString("claim")
		reviewer, _ := cmd.Flags().GetString("reviewer")
		outcome, _ := cmd.Flags().GetString("outcome")
		version, _ := cmd.Flags().GetInt64("expected-version")
		comments, err := resolveBody(cmd, false)
		if err != nil {
			return err
		}

		result, err := svc.SubmitDecision(ctx, claims.SubmitDecisionInput{
			ClaimRef:        claimRef,
			ReviewerID:      reviewer,
			Outcome:         outcome,
			FinalComments:   comments,
			ApprovedAmount:  approved,
			ExpectedVersion: version,
		})
		if err != nil {
			logging.Error(ctx, "submit decision failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "submit decision")
		}

		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(
			out,
			"decided claim: %s outcome=%s approved=%s status=%s\n",
			result.Claim.ClaimNumber,
			result.Decision.Outcome,
			result.Decision.ApprovedAmount.StringFixed(2),
			result.Claim.Status,
		); err != nil {
			return errs.Wrap(err, "write decide output")
		}
		if result.HoldReason != "" {
			if _, err := fmt.Fprintf(out, "held for manual release: %s\n", result.HoldReason); err != nil {
				return errs.Wrap(err, "write decide output")
			}
		}
		return nil
	}),
}

var claimsFlagCmd = &cobra.Command{
	Use:   "flag",
	Short: "Mark a claim as fraud suspect",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		input, err := fraudFlagInput(cmd)
		if err != nil {
			return err
		}
		result, err := svc.MarkFraudSuspect(ctx, input)
		if err != nil {
			logging.Error(ctx, "mark fraud suspect failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "mark fraud suspect")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "fraud flag set: %s changed=%t\n", result.Claim.ClaimNumber, result.Changed); err != nil {
			return errs.Wrap(err, "write flag output")
		}
		return nil
	}),
}

var claimsUnflagCmd = &cobra.Command{
	Use:   "unflag",
	Short: "Clear the fraud suspect flag",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		input, err := fraudFlagInput(cmd)
		if err != nil {
			return err
		}
		result, err := svc.ClearFraudSuspect(ctx, input)
		if err != nil {
			logging.Error(ctx, "clear fraud suspect failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "clear fraud suspect")
		}

		if _, err := fmt.Fprintf(
			cmd.OutOrStdout(),
			"fraud flag cleared: %s changed=%t status=%s\n",
			result.Claim.ClaimNumber,
			result.Changed,
			result.Claim.Status,
		); err != nil {
			return errs.Wrap(err, "write unflag output")
		}
		return nil
	}),
}

var claimsReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release a held approval for payout",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		claimRef, _ := cmd.Flags().GetString("claim")
		actor, _ := cmd.Flags().GetString("actor")

		claim, err := svc.ReleaseForSettlement(ctx, claims.ReleaseForSettlementInput{
			ClaimRef: claimRef,
			Actor:    actor,
		})
		if err != nil {
			logging.Error(ctx, "release for settlement failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "release for settlement")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "released claim: %s [%s]\n", claim.ClaimNumber, claim.Status); err != nil {
			return errs.Wrap(err, "write release output")
		}
		return nil
	}),
}

var claimsPayoutCmd = &cobra.Command{
	Use:   "payout",
	Short: "Disburse the payout of a PAYOUT_PENDING claim",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		amount, err := parseAmountFlag(cmd, "amount")
		if err != nil {
			return err
		}
		claimRef, _ := cmd.Flags().GetString("claim")
		txnID, _ := cmd.Flags().GetString("txn")
		operator, _ := cmd.Flags().GetString("operator")
		notes, err := resolveBody(cmd, false)
		if err != nil {
			return err
		}

		result, err := svc.ProcessPayout(ctx, claims.ProcessPayoutInput{
			ClaimRef:      claimRef,
			Amount:        amount,
			TransactionID: txnID,
			Notes:         notes,
			Operator:      operator,
		})
		if err != nil {
			logging.Error(ctx, "process payout failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "process payout")
		}

		if _, err := fmt.Fprintf(
			cmd.OutOrStdout(),
			"paid claim: %s amount=%s txn=%s settled_at=%s\n",
			result.Claim.ClaimNumber,
			result.Payout.Amount.StringFixed(2),
			result.Payout.TransactionID,
			result.Payout.SettledAt.UTC().Format(time.RFC3339),
		); err != nil {
			return errs.Wrap(err, "write payout output")
		}
		return nil
	}),
}

var claimsAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit trail of a claim",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		claimRef, _ := cmd.Flags().GetString("claim")
		entries, err := svc.ListAudit(ctx, claimRef)
		if err != nil {
			logging.Error(ctx, "list audit failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list audit")
		}

		for _, entry := range entries {
			if _, err := fmt.Fprintf(
				cmd.OutOrStdout(),
				"a%d %s %s %s -> %s %s\n",
				entry.EntryID,
				entry.Timestamp.UTC().Format(time.RFC3339),
				entry.Actor,
				firstNonEmpty(entry.BeforeState, "-"),
				firstNonEmpty(entry.AfterState, "-"),
				firstNonEmpty(entry.Detail, entry.Action),
			); err != nil {
				return errs.Wrap(err, "write audit entry")
			}
		}
		return nil
	}),
}

func fraudFlagInput(cmd *cobra.Command) (claims.FraudFlagInput, error) {
	claimRef, _ := cmd.Flags().GetString("claim")
	reviewer, _ := cmd.Flags().GetString("reviewer")
	reason, err := resolveBody(cmd, false)
	if err != nil {
		return claims.FraudFlagInput{}, err
	}
	return claims.FraudFlagInput{
		ClaimRef:   claimRef,
		ReviewerID: reviewer,
		Reason:     reason,
	}, nil
}

func writeClaimDetail(w io.Writer, detail claims.ClaimDetail) error {
	claim := detail.Claim
	var b strings.Builder
	fmt.Fprintf(&b, "Claim: %s (%s)\n", claim.ClaimNumber, claim.ID)
	fmt.Fprintf(&b, "Status: %s fraud_suspect=%t version=%d\n", domainclaim.Label(claim.Status, claim.DecisionOutcome), claim.FraudSuspect, claim.Version)
	fmt.Fprintf(&b, "Policy: %s Farmer: %s\n", claim.PolicyID, claim.FarmerID)
	fmt.Fprintf(&b, "Incident: %s at %s\n", claim.DateOfIncident.Format(time.DateOnly), firstNonEmpty(claim.LocationOfIncident, "-"))
	fmt.Fprintf(&b, "Amount claimed: %s\n", claim.AmountClaimed.StringFixed(2))
	fmt.Fprintf(&b, "Evidence: %s\n", strings.Join(claim.EvidenceRefs, ","))

	b.WriteString("\nAssessment:\n")
	for _, request := range detail.AssessmentRequests {
		fmt.Fprintf(&b, "- request %s attempt=%d %s dispatched=%s\n", request.RequestID, request.Attempt, request.Status, request.DispatchedAt.UTC().Format(time.RFC3339))
	}
	if detail.Report == nil {
		b.WriteString("- no report\n")
	} else {
		report := detail.Report
		fmt.Fprintf(&b, "- damage=%s recommended=%s confidence=%s flags=%s\n",
			formatPercent(report.AIDamagePercent),
			formatNullAmount(report),
			formatPercent(report.ConfidenceScore),
			firstNonEmpty(strings.Join(report.ValidationFlags, ","), "-"),
		)
	}

	b.WriteString("\nReview:\n")
	if detail.Draft == nil {
		b.WriteString("- no draft\n")
	} else {
		fmt.Fprintf(&b, "- draft by %s area=%s damage=%s\n", detail.Draft.UpdatedBy, firstNonEmpty(detail.Draft.VerifiedArea, "-"), detail.Draft.DamageConfirmation)
	}
	if detail.Decision != nil {
		fmt.Fprintf(&b, "- decision %s by %s approved=%s\n", detail.Decision.Outcome, detail.Decision.DecidedBy, detail.Decision.ApprovedAmount.StringFixed(2))
	}

	if detail.Payout != nil {
		fmt.Fprintf(&b, "\nPayout: %s txn=%s settled_at=%s\n", detail.Payout.Amount.StringFixed(2), detail.Payout.TransactionID, detail.Payout.SettledAt.UTC().Format(time.RFC3339))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func init() {
	rootCmd.AddCommand(claimsCmd)
	claimsCmd.AddCommand(claimsSubmitCmd)
	claimsCmd.AddCommand(claimsShowCmd)
	claimsCmd.AddCommand(claimsListCmd)
	claimsCmd.AddCommand(claimsAssignCmd)
	claimsCmd.AddCommand(claimsDraftCmd)
	claimsCmd.AddCommand(claimsDecideCmd)
	claimsCmd.AddCommand(claimsFlagCmd)
	claimsCmd.AddCommand(claimsUnflagCmd)
	claimsCmd.AddCommand(claimsReleaseCmd)
	claimsCmd.AddCommand(claimsPayoutCmd)
	claimsCmd.AddCommand(claimsAuditCmd)

	claimsSubmitCmd.Flags().String("key", "", "Idempotency key")
	claimsSubmitCmd.Flags().String("policy", "", "Policy id")
	claimsSubmitCmd.Flags().String("farmer", "", "Farmer id")
	claimsSubmitCmd.Flags().String("incident", "", "Date of incident (YYYY-MM-DD)")
	claimsSubmitCmd.Flags().String("location", "", "Location of incident")
	claimsSubmitCmd.Flags().String("amount", "", "Amount claimed (decimal)")
	claimsSubmitCmd.Flags().StringSlice("evidence", nil, "Evidence reference (repeatable)")
	claimsSubmitCmd.Flags().String("body", "", "Description")
	claimsSubmitCmd.Flags().String("body-file", "", "Description file path (- for stdin)")

	for _, c := range []*cobra.Command{
		claimsShowCmd, claimsAssignCmd, claimsDraftCmd, claimsDecideCmd, claimsFlagCmd,
		claimsUnflagCmd, claimsReleaseCmd, claimsPayoutCmd, claimsAuditCmd,
	} {
		c.Flags().String("claim", "", "Claim number or id")
		_ = c.MarkFlagRequired("claim")
	}
	for _, c := range []*cobra.Command{claimsDraftCmd, claimsDecideCmd, claimsFlagCmd, claimsUnflagCmd, claimsPayoutCmd} {
		c.Flags().String("body", "", "Comments")
		c.Flags().String("body-file", "", "Comments file path (- for stdin)")
	}
	for _, c := range []*cobra.Command{claimsAssignCmd, claimsDraftCmd, claimsDecideCmd, claimsFlagCmd, claimsUnflagCmd} {
		c.Flags().String("reviewer", "", "Reviewer id")
	}

	claimsListCmd.Flags().StringSlice("status", nil, "Status filter (repeatable)")
	claimsListCmd.Flags().String("farmer", "", "Farmer id filter")
	claimsListCmd.Flags().String("policy", "", "Policy id filter")
	claimsListCmd.Flags().Int("limit", 0, "Max claims (default 100)")

	claimsAssignCmd.Flags().String("actor", "", "Acting operator (defaults to the reviewer)")

	claimsDraftCmd.Flags().String("verified-area", "", "Verified affected area")
	claimsDraftCmd.Flags().String("damage", "", "Damage confirmation (pending|yes|no|partial)")
	claimsDraftCmd.Flags().StringSlice("photo", nil, "Field photo reference (repeatable)")

	claimsDecideCmd.Flags().String("outcome", "", "Decision outcome (approve|reject|partial)")
	claimsDecideCmd.Flags().String("approved-amount", "", "Approved amount (defaults by outcome)")
	claimsDecideCmd.Flags().Int64("expected-version", 0, "Claim version the decision is based on")
	_ = claimsDecideCmd.MarkFlagRequired("expected-version")

	claimsReleaseCmd.Flags().String("actor", "", "Acting operator")

	claimsPayoutCmd.Flags().String("amount", "", "Payout amount (decimal)")
	claimsPayoutCmd.Flags().String("txn", "", "Gateway transaction id")
	claimsPayoutCmd.Flags().String("operator", "", "Acting operator")
}
