package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"shiftbook/backend/internal/config"
	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/httpapi"
	"shiftbook/backend/internal/lock"
	"shiftbook/backend/internal/logger"
	"shiftbook/backend/internal/notify"
	"shiftbook/backend/internal/scheduler"
	"shiftbook/backend/internal/service"
	"shiftbook/backend/internal/store"
	"shiftbook/backend/internal/store/memory"
	pgstore "shiftbook/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal("ensure schema", zap.Error(err))
		}
		if err := seedDirectory(ctx, pg); err != nil {
			log.Fatal("seed master data", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	scope, err := lock.ParseScope(cfg.LockScope)
	if err != nil {
		log.Fatal("invalid lock scope", zap.Error(err))
	}
	var locker lock.Locker = lock.NewMemory(cfg.LockTimeout)
	if cfg.RedisAddr != "" {
		redisLock := lock.NewRedis(lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), "shiftbook:lock:", cfg.LockTimeout)
		if err := requireReachable(ctx, redisLock); err != nil {
			_ = redisLock.Close()
			log.Fatal("redis unavailable and REDIS_ADDR is set; refusing to start with in-process ledger lock", zap.Error(err))
		}
		locker = redisLock
		closers = append(closers, redisLock.Close)
		log.Info("ledger lock: redis", zap.String("scope", string(scope)))
	} else {
		log.Info("ledger lock: in-process", zap.String("scope", string(scope)))
	}

	loc := cfg.Location()

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Telegram.Enabled() {
		notifier = notify.NewTelegram(notify.TelegramConfig{
			BaseURL:  cfg.Telegram.BaseURL,
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			Location: loc,
		})
		log.Info("notifier: telegram")
	} else {
		log.Info("notifier: noop")
	}

	svc := service.New(repo, service.Options{
		Stores:              cfg.Stores,
		DefaultRadiusMeters: cfg.DefaultRadiusMeters,
		Shifts:              cfg.Shifts,
		BonusRules:          cfg.BonusRules,
		Locker:              locker,
		LockScope:           scope,
		Notifier:            notifier,
		Location:            loc,
		Logger:              log,
	})

	jobs := scheduler.New(cfg.ReportCronSchedule, loc, svc, logger.Named(log, "scheduler"))
	if err := jobs.Start(); err != nil {
		log.Fatal("start scheduler", zap.Error(err))
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Writes may wait up to the ledger lock timeout.
		WriteTimeout: cfg.LockTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("shiftbook backend listening", zap.String("addr", cfg.Address()), zap.String("timezone", loc.String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	jobs.Stop()
	if err := svc.WaitNotifications(shutdownCtx); err != nil {
		log.Warn("pending notifications dropped", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

type pinger interface {
	Ping(ctx context.Context) error
}

// requireReachable fails when a configured shared backend cannot be reached.
func requireReachable(ctx context.Context, backend pinger) error {
	if err := backend.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AccessTokenTTLMinutes < 1 || cfg.AccessTokenTTLMinutes > 24*60 {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must be between 1 and 1440")
	}
	if strings.TrimSpace(cfg.AllowedOrigin) == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin, not *")
	}
	return nil
}

var defaultPositions = []domain.Position{
	{Name: "staff", BonusMultiplier: 1.0},
	{Name: "store_manager", BonusMultiplier: 1.2},
	{Name: "part_time", BonusMultiplier: 0.8},
}

var defaultEmployees = []domain.Employee{
	{ID: "E001", Name: "Lin Mei", Status: domain.EmployeeStatusActive, Position: "staff"},
	{ID: "E002", Name: "Chen Wei", Status: domain.EmployeeStatusActive, Position: "store_manager"},
	{ID: "E003", Name: "Wang Hao", Status: domain.EmployeeStatusActive, Position: "part_time", ShiftName: "evening"},
}

type directorySeeder interface {
	ListPositions(ctx context.Context) ([]domain.Position, error)
	UpsertPosition(ctx context.Context, position domain.Position) error
	UpsertEmployee(ctx context.Context, employee domain.Employee) error
	CreateUser(ctx context.Context, user domain.UserAccount) error
}

// seedDirectory loads demo master data into an empty database. The manager
// login is only created when SEED_MANAGER_PASSWORD is set; the plain password
// is upgraded to bcrypt by the auth manager on first load.
func seedDirectory(ctx context.Context, repo directorySeeder) error {
	positions, err := repo.ListPositions(ctx)
	if err != nil {
		return err
	}
	if len(positions) > 0 {
		return nil
	}
	for _, position := range defaultPositions {
		if err := repo.UpsertPosition(ctx, position); err != nil {
			return fmt.Errorf("position %s: %w", position.Name, err)
		}
	}
	for _, employee := range defaultEmployees {
		if err := repo.UpsertEmployee(ctx, employee); err != nil {
			return fmt.Errorf("employee %s: %w", employee.ID, err)
		}
	}
	if password := os.Getenv("SEED_MANAGER_PASSWORD"); password != "" {
		if err := repo.CreateUser(ctx, domain.UserAccount{
			Username:   "manager",
			Password:   password,
			Role:       domain.RoleManager,
			EmployeeID: "E002",
			Active:     true,
			CreatedAt:  time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("manager account: %w", err)
		}
	}
	return nil
}
