package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cropclaim/internal/bootstrap"
	"cropclaim/internal/bootstrap/logging"
	"cropclaim/internal/errs"
	"cropclaim/internal/infrastructure/collaborator"
	"cropclaim/internal/ports"
	"cropclaim/internal/transport/httpapi"
	"cropclaim/internal/usecase/claims"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the claims HTTP API and consume assessment results",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *claims.Service) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		addr, _ := cmd.Flags().GetString("addr")
		addr = strings.TrimSpace(addr)
		if addr == "" {
			addr = app.Config.HTTP.Addr
		}
		staleInterval, _ := cmd.Flags().GetDuration("stale-scan-interval")

		if app.NATS != nil {
			sub, err := collaborator.SubscribeAssessmentResults(ctx, app.NATS, app.Config.Assessment.ResultSubject, assessmentResultHandler(svc))
			if err != nil {
				logging.Error(ctx, "subscribe assessment results failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "subscribe assessment results")
			}
			defer func() {
				if err := sub.Unsubscribe(); err != nil {
					logging.Warn(ctx, "unsubscribe assessment results failed", slog.Any("err", errs.Loggable(err)))
				}
			}()
		}

		if staleInterval > 0 {
			go scanStaleAssessments(ctx, svc, staleInterval)
		}

		server := &http.Server{
			Addr: addr,
			Handler: httpapi.NewRouter(svc, httpapi.Config{
				CallbackSecret: app.Config.Assessment.CallbackSecret,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- server.ListenAndServe()
		}()
		logging.Info(ctx, "claims api started", slog.String("addr", addr), slog.Bool("nats", app.NATS != nil))

		select {
		case err := <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error(ctx, "claims api failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "serve claims api")
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(err, "shutdown claims api")
		}
		logging.Info(ctx, "claims api stopped")
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (defaults to http.addr)")
	serveCmd.Flags().Duration("stale-scan-interval", 0, "Log overdue assessment requests at this interval (0 disables)")
}

func assessmentResultHandler(svc *claims.Service) ports.AssessmentResultHandler {
	return func(ctx context.Context, result ports.AssessmentResult) error {
		out, err := svc.ReceiveAssessmentResult(ctx, result)
		if err != nil {
			return err
		}
		if out.SkipReason != "" {
			logging.Info(ctx, "assessment result stored without transition", slog.String("reason", out.SkipReason))
		}
		return nil
	}
}

func scanStaleAssessments(ctx context.Context, svc *claims.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stale, err := svc.ListStaleAssessments(ctx, 100)
		if err != nil {
			logging.Warn(ctx, "list stale assessments failed", slog.Any("err", errs.Loggable(err)))
			continue
		}
		for _, item := range stale {
			logging.Warn(
				ctx,
				"assessment overdue",
				slog.String("claim", item.Request.ClaimNumber),
				slog.String("request_id", item.Request.RequestID),
				slog.Int("attempt", item.Request.Attempt),
				slog.Duration("age", item.Age),
			)
		}
	}
}
