package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"cropclaim/internal/bootstrap/config"
	"cropclaim/internal/bootstrap/database"
	"cropclaim/internal/bootstrap/logging"
	"cropclaim/internal/errs"
	cacheinfra "cropclaim/internal/infrastructure/cache"
	"cropclaim/internal/infrastructure/collaborator"
	lockinfra "cropclaim/internal/infrastructure/lock"
	"cropclaim/internal/infrastructure/persistence/relational/repository"
	"cropclaim/internal/infrastructure/persistence/relational/uow"
	"cropclaim/internal/infrastructure/policyfile"
	"cropclaim/internal/ports"
	"cropclaim/internal/usecase/claims"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(provideRedis),
	fx.Provide(provideNATS),
	fx.Provide(
		fx.Annotate(
			repository.NewClaimRepository,
			fx.As(new(ports.ClaimRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			uow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(provideCache),
	fx.Provide(provideLocker),
	fx.Provide(provideDispatcher),
	fx.Provide(provideGateway),
	fx.Provide(provideCollaborators),
	fx.Provide(provideServiceConfig),
	fx.Provide(claims.NewService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	cfg, err := config.Load(ctx, p.ConfigFile)
	if err != nil {
		return config.Config{}, err
	}

	logger, err := logging.NewLogger(os.Stderr, cfg.Logging.Format, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, errs.Wrap(err, "configure logging")
	}
	logging.SetDefault(logger)
	return cfg, nil
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB, conn *nats.Conn) *App {
	return &App{
		Config: cfg,
		DB:     db,
		NATS:   conn,
	}
}

// provideRedis returns nil when neither the cache nor the lock uses redis.
func provideRedis(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if !strings.EqualFold(cfg.Cache.Driver, "redis") && !strings.EqualFold(cfg.Lock.Driver, "redis") {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return errs.Wrap(err, "ping redis")
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})
	return client
}

// provideNATS connects only when a NATS url is configured.
func provideNATS(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*nats.Conn, error) {
	url := strings.TrimSpace(cfg.Assessment.NATSURL)
	if url == "" {
		return nil, nil
	}
	conn, err := nats.Connect(url, nats.Name(cfg.App.Name))
	if err != nil {
		return nil, errs.Wrap(err, "connect nats")
	}
	logging.Info(logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")), "nats connected", slog.String("url", conn.ConnectedUrlRedacted()))
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return conn.Drain()
		},
	})
	return conn, nil
}

func provideCache(cfg config.Config, db *gorm.DB, rdb *redis.Client) ports.Cache {
	switch strings.ToLower(cfg.Cache.Driver) {
	case "redis":
		return cacheinfra.NewRedisCache(rdb, cfg.Redis.Prefix)
	case "none":
		return nil
	default:
		return cacheinfra.NewKVCache(db)
	}
}

func provideLocker(cfg config.Config, rdb *redis.Client) ports.ClaimLocker {
	if strings.EqualFold(cfg.Lock.Driver, "redis") {
		return lockinfra.NewRedisLocker(rdb, cfg.Redis.Prefix)
	}
	return lockinfra.NewLocalLocker()
}

func provideDispatcher(cfg config.Config, conn *nats.Conn) (ports.AssessmentDispatcher, error) {
	switch strings.ToLower(cfg.Assessment.Dispatcher) {
	case "nats":
		if conn == nil {
			return nil, errors.New("nats dispatcher requires assessment.nats_url")
		}
		return collaborator.NewNATSDispatcher(conn, cfg.Assessment.Subject)
	case "http":
		return collaborator.NewHTTPDispatcher(cfg.Assessment.HTTPURL, cfg.Assessment.HTTPTimeout)
	default:
		return collaborator.ManualDispatcher{}, nil
	}
}

func provideGateway(cfg config.Config) (ports.PaymentGateway, error) {
	if strings.EqualFold(cfg.Payment.Gateway, "http") {
		return collaborator.NewHTTPGateway(cfg.Payment.HTTPURL, cfg.Payment.Timeout)
	}
	return collaborator.NewSimulatedGateway(), nil
}

func provideCollaborators(dispatcher ports.AssessmentDispatcher, gateway ports.PaymentGateway, locker ports.ClaimLocker) claims.Collaborators {
	return claims.Collaborators{
		Dispatcher: dispatcher,
		Gateway:    gateway,
		Locker:     locker,
	}
}

func provideServiceConfig(ctx context.Context, cfg config.Config) (claims.Config, error) {
	policy, err := policyfile.LoadSettlementPolicy(cfg.Settlement.PolicyFile)
	if err != nil {
		return claims.Config{}, errs.Wrap(err, "load settlement policy")
	}
	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
		"settlement policy loaded",
		slog.String("path", cfg.Settlement.PolicyFile),
		slog.Bool("hold_fraud_suspects", policy.HoldFraudSuspects),
	)

	out := claims.DefaultConfig()
	out.AllowOverlappingClaims = cfg.Intake.AllowOverlappingClaims
	out.AssessmentTimeout = cfg.Assessment.Timeout
	out.PayoutLockTTL = cfg.Lock.TTL
	out.StatusCacheTTL = cfg.Cache.TTL
	out.Settlement = policy
	return out, nil
}
