package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"
	"gorm.io/gorm"

	"cropclaim/internal/bootstrap/config"
	"cropclaim/internal/bootstrap/logging"
	"cropclaim/internal/errs"
	"cropclaim/internal/infrastructure/persistence/relational/model"
)

type App struct {
	Config config.Config
	DB     *gorm.DB
	// NATS is nil unless assessment.nats_url is configured.
	NATS *nats.Conn
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration", slog.String("database_driver", a.Config.Database.Driver))

	if err := a.DB.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}
