package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sitewise/platform/internal/cache"
	"github.com/sitewise/platform/internal/config"
	"github.com/sitewise/platform/internal/domain/ratelimit"
	redisinfra "github.com/sitewise/platform/internal/infrastructure/redis"
	"github.com/sitewise/platform/internal/metrics"
	"github.com/sitewise/platform/internal/repositories"
	"github.com/sitewise/platform/internal/server"
	"github.com/sitewise/platform/internal/services"
)

func main() {
	configPath := flag.String("config", os.Getenv("SITEWISE_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting sitewise platform server...")

	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Invalid database URL", zap.Error(err))
	}
	if cfg.Database.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Database.MaxConns
	}

	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Connected to database")

	if cfg.Database.AutoMigrate {
		logger.Info("Running database migrations...")
		if err := repositories.RunMigrations(cfg.Database.URL); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to ping redis", zap.Error(err))
		}
		defer func() {
			_ = redisClient.Close()
		}()
		logger.Info("Connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	store := repositories.NewStore(dbPool)
	switch cfg.Cache.Backend {
	case "redis":
		store = store.WithPermissionCache(redisinfra.NewPermissionCache(redisClient))
	case "memory":
		store = store.WithPermissionCache(cache.NewMemoryPermissionCache())
	}
	logger.Info("Permission cache configured", zap.String("backend", cfg.Cache.Backend))

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		if redisClient != nil {
			limiter = redisinfra.NewRateLimiter(redisClient)
		} else {
			limiter = cache.NewMemoryRateLimiter()
		}
	}

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	auditSvc := services.NewAuditService(repositories.NewAuditLogRepository(dbPool))
	rbacSvc := services.NewRBACService(
		store,
		repositories.NewUserRepository(dbPool),
		auditSvc,
		logger.Named("rbac"),
		cfg.Cache.TTL,
	)

	if cfg.Database.SeedDefaults {
		if err := rbacSvc.SeedDefaultCatalog(ctx); err != nil {
			logger.Fatal("Failed to seed default catalog", zap.Error(err))
		}
	}

	srv := server.New(cfg, &server.Services{
		RBACService:  rbacSvc,
		AuditService: auditSvc,
		RateLimiter:  limiter,
	}, logger)
	srv.Setup()

	if err := srv.Start(); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Server.Environment == "production" {
		zcfg := zap.NewProductionConfig()
		if level, err := zap.ParseAtomicLevel(cfg.Log.Level); err == nil {
			zcfg.Level = level
		}
		return zcfg.Build()
	}
	return zap.NewDevelopment()
}
