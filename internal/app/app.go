package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Freeeeeet/concierge/internal/analytics"
	"github.com/Freeeeeet/concierge/internal/auth"
	"github.com/Freeeeeet/concierge/internal/config"
	"github.com/Freeeeeet/concierge/internal/controller"
	"github.com/Freeeeeet/concierge/internal/jobs"
	"github.com/Freeeeeet/concierge/internal/notify"
	"github.com/Freeeeeet/concierge/internal/payout"
	"github.com/Freeeeeet/concierge/internal/repository"
	"github.com/Freeeeeet/concierge/internal/service"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

// App собранное приложение: HTTP API и обработчик отложенных задач
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redis.Client
	echo      *echo.Echo
	scheduler *Scheduler
	tracker   *analytics.Tracker
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// New подключается к базе и Redis, применяет миграции и связывает зависимости
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("✅ Connected to database")

	migrator, err := NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	err = migrator.Run(ctx)
	if closeErr := migrator.Close(); closeErr != nil {
		logger.Warn("Failed to close migrator", zap.Error(closeErr))
	}
	if err != nil {
		pool.Close()
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("✅ Connected to Redis", zap.String("addr", cfg.RedisAddr))

	hub := notify.NewRedisHub(rdb, logger)
	dispatcher, err := newDispatcher(cfg, hub, logger)
	if err != nil {
		pool.Close()
		rdb.Close()
		return nil, err
	}

	var tracker *analytics.Tracker
	var svcTracker service.Tracker = analytics.Nop{}
	if cfg.MixpanelToken != "" {
		tracker = analytics.NewMixpanelTracker(cfg.MixpanelToken, logger)
		svcTracker = tracker
	} else {
		logger.Warn("MIXPANEL_TOKEN not set, analytics disabled")
	}

	var payouts service.Payouts = payout.NewLogPayouts(logger)
	if cfg.StripeSecretKey != "" {
		payouts = payout.NewStripePayouts(cfg.StripeSecretKey, logger)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, payouts are only logged")
	}

	jobRepo := repository.NewJobRepository(pool)
	queue := jobs.NewQueue(jobRepo)
	worker := jobs.NewWorker(jobRepo, cfg.WorkerConcurrency, logger)

	dates := service.NewCustomDateService(
		repository.NewPgStore(pool),
		queue,
		dispatcher,
		svcTracker,
		payouts,
		service.Options{AdminEmail: cfg.AdminEmail, AppURL: cfg.AppURL},
		logger,
	)
	dates.RegisterJobs(worker)

	tokens := auth.NewTokens(cfg.JWTSecret)
	e := controller.NewEcho(tokens, logger)
	controller.NewController(dates, hub, logger, pool, redisPinger{rdb}).Register(e)

	return &App{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		redis:     rdb,
		echo:      e,
		scheduler: NewScheduler(worker, cfg.WorkerPollInterval, logger),
		tracker:   tracker,
	}, nil
}

func newDispatcher(cfg *config.Config, hub *notify.RedisHub, logger *zap.Logger) (*notify.Dispatcher, error) {
	templates, err := notify.LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}

	var mailer notify.Mailer = notify.NewLogMailer(logger)
	if cfg.ResendAPIKey != "" {
		mailer = notify.NewResendMailer(cfg.ResendAPIKey)
	} else {
		logger.Warn("RESEND_API_KEY not set, emails are only logged")
	}

	var messenger notify.Messenger
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramMessenger(cfg.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("create telegram bot: %w", err)
		}
		messenger = tg
	}

	return notify.NewDispatcher(mailer, hub, messenger, templates, cfg.EmailFrom, logger), nil
}

// Run обслуживает HTTP и задачи до отмены ctx, затем корректно останавливается
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	a.scheduler.Start(ctx)
	defer a.scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", zap.String("addr", a.cfg.HTTPAddr))
		if err := a.echo.Start(a.cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.echo.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) close() {
	if a.tracker != nil {
		a.tracker.Flush()
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("Failed to close redis", zap.Error(err))
	}
	a.pool.Close()
}
