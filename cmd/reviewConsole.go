package cmd

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"cropclaim/internal/bootstrap"
	"cropclaim/internal/bootstrap/logging"
	"cropclaim/internal/errs"
	"cropclaim/internal/usecase/claims"
	"cropclaim/internal/usecase/reviewconsole"
)

var reviewConsoleCmd = &cobra.Command{
	Use:   "review-console",
	Short: "Start the reviewer queue console",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		reviewer, _ := cmd.Flags().GetString("reviewer")
		onlyMine, _ := cmd.Flags().GetBool("mine")
		status, _ := cmd.Flags().GetString("status")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
		if refreshInterval <= 0 {
			refreshInterval = 5 * time.Second
		}

		model := reviewconsole.NewReviewModel(ctx, svc, reviewconsole.Options{
			ReviewerID:      reviewer,
			OnlyMine:        onlyMine,
			StatusFilter:    status,
			RefreshInterval: refreshInterval,
		})

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run review console")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(reviewConsoleCmd)
	reviewConsoleCmd.Flags().String("reviewer", "", "Reviewer id used for assignments and decisions")
	reviewConsoleCmd.Flags().Bool("mine", false, "Hide claims assigned to other reviewers")
	reviewConsoleCmd.Flags().String("status", "", "Comma separated status filter (default: open review queue)")
	reviewConsoleCmd.Flags().Duration("refresh-interval", 5*time.Second, "Auto refresh interval")
	_ = reviewConsoleCmd.MarkFlagRequired("reviewer")
}
