package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/looma/see-practice-api/internal/config"
	"github.com/looma/see-practice-api/internal/domain/repository"
	"github.com/looma/see-practice-api/internal/handler"
	"github.com/looma/see-practice-api/internal/metrics"
	"github.com/looma/see-practice-api/internal/middleware"
	pgRepo "github.com/looma/see-practice-api/internal/repository/postgres"
	redisRepo "github.com/looma/see-practice-api/internal/repository/redis"
	"github.com/looma/see-practice-api/internal/service"
	"github.com/looma/see-practice-api/internal/service/maintenance"
	"github.com/looma/see-practice-api/pkg/auth"
	"github.com/looma/see-practice-api/pkg/database"
	"github.com/looma/see-practice-api/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		// Отсутствие .env в контейнерах - нормальная ситуация
		_ = logger.Init("info", "json")
		logger.Warn("failed to load .env file", zap.Error(err))
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		_ = logger.Init("info", "json")
		logger.Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log := logger.WithModule("main")

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), !cfg.IsRelease())
	if err != nil {
		return err
	}
	if err := database.MigrateDB(db, cfg.Database.MigrationsDir); err != nil {
		return err
	}

	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	log.Info("connected to redis", zap.String("mode", cfg.Redis.Mode))

	codes, ledger, err := newOTPStores(cfg, db, redisClient)
	if err != nil {
		return err
	}
	identities := pgRepo.NewIdentityRepo(db)

	sender, err := newEmailSender(cfg)
	if err != nil {
		return err
	}

	appMetrics := metrics.New()

	otpService, err := service.NewOTPService(codes, ledger, identities, sender, service.OTPConfig{
		CodeTTL:     cfg.OTP.CodeTTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
		MaxIssuance: cfg.OTP.MaxIssuance,
		RateWindow:  cfg.OTP.RateWindow,
		CodePepper:  cfg.OTP.CodePepper,
	}, service.WithMetrics(appMetrics))
	if err != nil {
		return err
	}
	identityService, err := service.NewIdentityService(identities)
	if err != nil {
		return err
	}

	sweeper, err := maintenance.NewSweeper(codes, ledger, cfg.OTP.RateWindow,
		maintenance.WithSchedule(cfg.OTP.SweepSchedule),
		maintenance.WithCodeRetention(cfg.OTP.ExpiredRetention),
		maintenance.WithMetrics(appMetrics))
	if err != nil {
		return err
	}
	if err := sweeper.Start(); err != nil {
		return err
	}

	var adminTokens *auth.AdminTokenService
	if cfg.Admin.PasswordHash != "" {
		adminTokens, err = auth.NewAdminTokenService(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
		if err != nil {
			return err
		}
	} else {
		log.Warn("admin password hash not configured, admin routes disabled")
	}

	router := newRouter(routerDeps{
		cfg:         cfg,
		otp:         handler.NewOTPHandler(otpService, identityService),
		admin:       handler.NewAdminHandler(cfg.Admin.PasswordHash, adminTokens, identityService),
		adminTokens: adminTokens,
		health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"postgres": database.PingPostgres(db),
			"redis":    database.PingRedis(redisClient),
		}),
		limiter: middleware.NewRateLimiter(redisClient),
		metrics: appMetrics,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("port", cfg.Server.Port), zap.String("otp_store", cfg.OTP.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			<-sweeper.Stop().Done()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	select {
	case <-sweeper.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("sweeper did not stop before shutdown deadline")
	}

	log.Info("server exited properly")
	return nil
}

func newOTPStores(cfg *config.Config, db *gorm.DB, client redis.UniversalClient) (repository.CodeRecordRepository, repository.IssuanceLedgerRepository, error) {
	if cfg.OTP.Store == config.StorePostgres {
		return pgRepo.NewCodeRecordRepo(db), pgRepo.NewIssuanceLedgerRepo(db), nil
	}

	codes, err := redisRepo.NewCodeRecordRepo(client, redisRepo.WithExpiredRetention(cfg.OTP.ExpiredRetention))
	if err != nil {
		return nil, nil, err
	}
	ledger, err := redisRepo.NewIssuanceLedgerRepo(client, cfg.OTP.RateWindow)
	if err != nil {
		return nil, nil, err
	}
	return codes, ledger, nil
}

func newEmailSender(cfg *config.Config) (service.EmailSender, error) {
	if cfg.Email.Provider == config.EmailProviderNoop {
		logger.Warn("email provider is noop, login codes are only logged")
		return service.NewNoopEmailSender(), nil
	}
	return service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.From, cfg.OTP.CodeTTL)
}
