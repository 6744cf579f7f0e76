// Package app wires configuration, storage, services and transport into a
// runnable engine shared by the server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"kiddoquest/internal/config"
	"kiddoquest/internal/counters"
	"kiddoquest/internal/database"
	"kiddoquest/internal/handlers"
	"kiddoquest/internal/logger"
	"kiddoquest/internal/metrics"
	"kiddoquest/internal/rules"
	"kiddoquest/internal/scheduler"
	"kiddoquest/internal/security"
	"kiddoquest/internal/service"
)

// Services are the engine's orchestrators
type Services struct {
	Penalties *service.PenaltyService
	Streaks   *service.StreakService
	Goals     *service.GoalService
	Reports   *service.ReportService
	Events    *service.EventService
	Rules     *service.RuleService
	Exports   *service.ExportService
}

type App struct {
	Log       *logger.Logger
	DB        *database.DB
	Cfg       *config.Config
	Metrics   *metrics.Collector
	Services  Services
	Scheduler *scheduler.Scheduler
	Limiter   *security.RateLimiter

	redis *redis.Client
}

// New opens the database, applies migrations and wires every service
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	log.Info("Database connection established", "type", cfg.DatabaseType)

	a := &App{Log: log, DB: db, Cfg: cfg, Metrics: metrics.NewCollector("kiddoquest")}
	if err := a.migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	store, err := a.counterStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	calculator, err := rules.NewCalculator(cfg.Engine.Severity)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init calculator: %w", err)
	}
	evaluator := rules.NewEvaluator(rules.BuiltinPredicates())

	email, err := service.NewEmailService(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init email: %w", err)
	}

	deps := service.Deps{
		DB:       db,
		Logger:   log,
		Metrics:  a.Metrics,
		Counters: store,
		Config:   cfg.Engine,
	}
	penalties := service.NewPenaltyService(deps, evaluator, calculator)
	streaks := service.NewStreakService(deps, penalties)
	goals := service.NewGoalService(deps)
	a.Services = Services{
		Penalties: penalties,
		Streaks:   streaks,
		Goals:     goals,
		Reports:   service.NewReportService(deps, email),
		Events:    service.NewEventService(deps, penalties, streaks, goals),
		Rules:     service.NewRuleService(deps, evaluator, calculator),
		Exports:   service.NewExportService(deps),
	}

	a.Scheduler = scheduler.New(log, cfg.Engine.JobTimeout)
	if err := scheduler.Register(a.Scheduler, scheduler.Services{
		Penalties: penalties,
		Streaks:   streaks,
		Reports:   a.Services.Reports,
	}, cfg.Engine.Schedules); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) migrate(ctx context.Context) error {
	fsys, err := database.MigrationsFS(a.Cfg.MigrationsPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	applied, err := a.DB.RunMigrations(ctx, fsys)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	a.Log.Info("Migrations completed successfully", "applied", len(applied))
	return nil
}

// counterStore uses Redis when REDIS_URL is set and reachable, else SQL
func (a *App) counterStore(ctx context.Context) (counters.Store, error) {
	if a.Cfg.RedisURL == "" {
		return counters.NewSQLStore(a.DB), nil
	}
	client, err := counters.NewRedisClient(a.Cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	a.redis = client
	a.Log.Info("Daily counters stored in Redis")
	return counters.NewRedisStore(client), nil
}

// Handler builds the HTTP router. It requires JWT_SECRET.
func (a *App) Handler() (http.Handler, error) {
	verifier, err := security.NewTokenVerifier(a.Cfg.JWTSecret, a.Cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}
	rl := a.Cfg.Engine.RateLimit
	if rl.PerSecond > 0 {
		a.Limiter = security.NewRateLimiter(rl.PerSecond, rl.Burst)
	}

	s := a.Services
	mw := handlers.NewMiddleware(verifier, a.Limiter, a.Log, a.Metrics)
	api := handlers.NewAPIHandler(s.Penalties, s.Reports, s.Rules, s.Goals, s.Streaks, s.Exports, a.Log)
	hooks := handlers.NewHookHandler(s.Events, a.Log)
	return handlers.NewRouter(api, hooks, mw, a.Metrics), nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
