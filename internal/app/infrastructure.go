package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prperemyshlev/portfolio-backend/internal/config"
	"github.com/prperemyshlev/portfolio-backend/internal/repository"
	"github.com/prperemyshlev/portfolio-backend/internal/repository/migrations"
	"github.com/prperemyshlev/portfolio-backend/pkg/database"
	"github.com/prperemyshlev/portfolio-backend/pkg/mailer"
	"github.com/prperemyshlev/portfolio-backend/pkg/observability"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const serviceName = "portfolio-backend"

type Infrastructure interface {
	Repositories() *repository.Repositories
	Redis() *database.Redis
	Mailer() mailer.Sender
	Logger() *zap.Logger
	MetricsHandler() http.Handler
	Meter() metric.Meter

	Shutdown(ctx context.Context) error
}

type infrastructure struct {
	store     io.Closer
	repos     *repository.Repositories
	redis     *database.Redis
	mailer    mailer.Sender
	logger    *zap.Logger
	telemetry *observability.Telemetry
}

var _ Infrastructure = &infrastructure{}

func NewInfrastructure(ctx context.Context, cfg config.Config) (*infrastructure, error) {
	i := &infrastructure{}

	logger, err := observability.InitLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	i.logger = logger

	redis, err := database.NewRedis(ctx, cfg.Redis.Address(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	i.redis = redis

	if err := i.openStore(ctx, cfg); err != nil {
		_ = i.redis.Close()
		return nil, err
	}

	telemetry, err := observability.NewTelemetry(serviceName)
	if err != nil {
		_ = i.store.Close()
		_ = i.redis.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	i.telemetry = telemetry

	if cfg.Mail.Enabled() {
		smtp, err := mailer.NewSMTPMailer(mailer.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}, mailer.DefaultBreakerConfig(), logger)
		if err != nil {
			_ = i.Shutdown(ctx)
			return nil, fmt.Errorf("failed to configure mailer: %w", err)
		}
		i.mailer = smtp
	} else {
		logger.Warn("SMTP_HOST not set, emails will only be logged")
		i.mailer = mailer.NewLogMailer(logger)
	}

	return i, nil
}

// openStore connects the credential store selected by STORE_DRIVER
func (i *infrastructure) openStore(ctx context.Context, cfg config.Config) error {
	switch cfg.Store.Driver {
	case config.StoreDriverMongo:
		mongo, err := database.NewMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		repos, err := repository.NewMongoRepositories(ctx, mongo, i.redis)
		if err != nil {
			_ = mongo.Close()
			return err
		}
		i.store = mongo
		i.repos = repos

	default:
		postgres, err := database.NewPostgres(ctx, cfg.Postgres.DSN())
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if cfg.Postgres.AutoMigrate {
			version, err := database.Migrate(postgres, migrations.FS, ".")
			if err != nil {
				_ = postgres.Close()
				return err
			}
			i.logger.Info("database schema up to date", zap.Uint("version", version))
		}
		i.store = postgres
		i.repos = repository.NewRepositories(postgres, i.redis)
	}

	i.logger.Info("credential store connected", zap.String("driver", cfg.Store.Driver))
	return nil
}

func (i *infrastructure) Repositories() *repository.Repositories {
	return i.repos
}

func (i *infrastructure) Redis() *database.Redis {
	return i.redis
}

func (i *infrastructure) Mailer() mailer.Sender {
	return i.mailer
}

func (i *infrastructure) Logger() *zap.Logger {
	return i.logger
}

func (i *infrastructure) MetricsHandler() http.Handler {
	return i.telemetry.Handler()
}

func (i *infrastructure) Meter() metric.Meter {
	return i.telemetry.Meter()
}

func (i *infrastructure) Shutdown(ctx context.Context) error {
	errs := make(chan error, 3)

	go func() { errs <- i.store.Close() }()
	go func() { errs <- i.redis.Close() }()
	go func() { errs <- i.telemetry.Shutdown(ctx) }()

	err := errors.Join(<-errs, <-errs, <-errs)
	return errors.Join(err, observability.SyncLogger(i.logger))
}
