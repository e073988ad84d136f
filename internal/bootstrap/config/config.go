package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cropclaim/internal/bootstrap/logging"
	"cropclaim/internal/errs"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Lock       LockConfig       `mapstructure:"lock"`
	Assessment AssessmentConfig `mapstructure:"assessment"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Intake     IntakeConfig     `mapstructure:"intake"`
	HTTP       HTTPConfig       `mapstructure:"http"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LoggingConfig struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type CacheConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type LockConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type AssessmentConfig struct {
	Dispatcher     string        `mapstructure:"dispatcher"`
	Timeout        time.Duration `mapstructure:"timeout"`
	NATSURL        string        `mapstructure:"nats_url"`
	Subject        string        `mapstructure:"subject"`
	ResultSubject  string        `mapstructure:"result_subject"`
	HTTPURL        string        `mapstructure:"http_url"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	CallbackSecret string        `mapstructure:"callback_secret"`
}

type PaymentConfig struct {
	Gateway string        `mapstructure:"gateway"`
	HTTPURL string        `mapstructure:"http_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SettlementConfig struct {
	PolicyFile string `mapstructure:"policy_file"`
}

type IntakeConfig struct {
	AllowOverlappingClaims bool `mapstructure:"allow_overlapping_claims"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("assessment_dispatcher", cfg.Assessment.Dispatcher),
		slog.String("payment_gateway", cfg.Payment.Gateway),
	)

	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if err := oneOf("database.driver", c.Database.Driver, "sqlite", "sqlite3", "mysql"); err != nil {
		return err
	}
	if err := oneOf("cache.driver", c.Cache.Driver, "kv", "redis", "none"); err != nil {
		return err
	}
	if err := oneOf("lock.driver", c.Lock.Driver, "local", "redis"); err != nil {
		return err
	}
	if err := oneOf("assessment.dispatcher", c.Assessment.Dispatcher, "manual", "nats", "http"); err != nil {
		return err
	}
	if err := oneOf("payment.gateway", c.Payment.Gateway, "simulated", "http"); err != nil {
		return err
	}
	if err := oneOf("logging.format", c.Logging.Format, "text", "json"); err != nil {
		return err
	}

	needsRedis := strings.EqualFold(c.Cache.Driver, "redis") || strings.EqualFold(c.Lock.Driver, "redis")
	if needsRedis && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis.addr is required when cache or lock use redis")
	}
	if strings.EqualFold(c.Assessment.Dispatcher, "nats") && strings.TrimSpace(c.Assessment.NATSURL) == "" {
		return errors.New("assessment.nats_url is required for the nats dispatcher")
	}
	if strings.EqualFold(c.Assessment.Dispatcher, "http") && strings.TrimSpace(c.Assessment.HTTPURL) == "" {
		return errors.New("assessment.http_url is required for the http dispatcher")
	}
	if strings.EqualFold(c.Payment.Gateway, "http") && strings.TrimSpace(c.Payment.HTTPURL) == "" {
		return errors.New("payment.http_url is required for the http gateway")
	}
	return nil
}

func oneOf(key string, value string, allowed ...string) error {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range allowed {
		if normalized == candidate {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported value %q (want one of %s)", key, value, strings.Join(allowed, ", "))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cropclaim")
	v.SetDefault("app.env", "local")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.level", "info")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".data/cropclaim.sqlite")
	v.SetDefault("cache.driver", "kv")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "cropclaim:")
	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.ttl", "1m")
	v.SetDefault("assessment.dispatcher", "manual")
	v.SetDefault("assessment.timeout", "24h")
	v.SetDefault("assessment.nats_url", "")
	v.SetDefault("assessment.subject", "claims.assessment.requests")
	v.SetDefault("assessment.result_subject", "claims.assessment.results")
	v.SetDefault("assessment.http_url", "")
	v.SetDefault("assessment.http_timeout", "10s")
	v.SetDefault("assessment.callback_secret", "")
	v.SetDefault("payment.gateway", "simulated")
	v.SetDefault("payment.http_url", "")
	v.SetDefault("payment.timeout", "30s")
	v.SetDefault("settlement.policy_file", "configs/settlement.toml")
	v.SetDefault("intake.allow_overlapping_claims", false)
	v.SetDefault("http.addr", ":8080")
}
