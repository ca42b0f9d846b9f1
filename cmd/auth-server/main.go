// Package main provides the entry point for the authentication server
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/authgate/auth-core/internal/api/rest"
	"github.com/authgate/auth-core/internal/audit"
	"github.com/authgate/auth-core/internal/auth"
	"github.com/authgate/auth-core/internal/blacklist"
	"github.com/authgate/auth-core/internal/clock"
	"github.com/authgate/auth-core/internal/config"
	"github.com/authgate/auth-core/internal/db"
	"github.com/authgate/auth-core/internal/identity"
	"github.com/authgate/auth-core/internal/keys"
	"github.com/authgate/auth-core/internal/metrics"
	"github.com/authgate/auth-core/internal/ratelimit"
	"github.com/authgate/auth-core/internal/refresh"
	"github.com/authgate/auth-core/internal/scope"
	"github.com/authgate/auth-core/internal/session"
	"github.com/authgate/auth-core/internal/token"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML configuration file")
		watchKeys   = flag.Bool("watch-keys", false, "Reload key material when the key directory changes")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("auth-server %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting authentication server",
		zap.String("version", Version),
		zap.String("environment", cfg.Environment),
		zap.String("addr", cfg.Server.Addr),
	)

	clk := clock.System()

	// Key material. A bad keystore aborts startup; the watcher keeps the
	// verification set fresh across rotations without a restart.
	material, err := keys.Load(cfg.JWT.Keys)
	if err != nil {
		logger.Fatal("Failed to load key material", zap.Error(err))
	}
	registry, err := keys.NewRegistry(material)
	if err != nil {
		logger.Fatal("Failed to build key registry", zap.Error(err))
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if *watchKeys {
		watcher, err := keys.NewWatcher(cfg.JWT.Keys, registry, logger)
		if err != nil {
			logger.Fatal("Failed to create key watcher", zap.Error(err))
		}
		if err := watcher.Watch(watchCtx); err != nil {
			logger.Fatal("Failed to start key watcher", zap.Error(err))
		}
		defer watcher.Stop()
	}

	codec, err := token.NewCodec(&token.CodecConfig{
		Registry: registry,
		Issuer:   cfg.JWT.Issuer,
		Clock:    clk,
		Skew:     cfg.JWT.Skew,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Failed to create token codec", zap.Error(err))
	}
	validator, err := token.NewStrictValidator(&token.StrictValidatorConfig{
		Codec:           codec,
		Issuer:          cfg.JWT.Issuer,
		AccessAudience:  cfg.JWT.AccessAudience,
		RefreshAudience: cfg.JWT.RefreshAudience,
	})
	if err != nil {
		logger.Fatal("Failed to create token validator", zap.Error(err))
	}

	// Redis backs the refresh store, blacklist, session registry and the
	// login throttle. Fail fast if it is unreachable.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		logger.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	cancelPing()

	accounts, closeDB, err := initAccounts(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize account store", zap.Error(err))
	}
	defer closeDB()

	hasher := identity.NewBcryptHasher(0)
	authenticator, err := auth.NewAuthenticator(accounts, hasher, logger)
	if err != nil {
		logger.Fatal("Failed to create authenticator", zap.Error(err))
	}

	refreshStore, err := refresh.NewRedisStore(&refresh.RedisStoreConfig{
		Client: rdb,
		Issuer: cfg.JWT.Issuer,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Failed to create refresh store", zap.Error(err))
	}
	bl, err := blacklist.NewRedisBlacklist(rdb, clk)
	if err != nil {
		logger.Fatal("Failed to create blacklist", zap.Error(err))
	}
	sessions, err := session.NewRedisRegistry(rdb, clk)
	if err != nil {
		logger.Fatal("Failed to create session registry", zap.Error(err))
	}

	var (
		attempts    ratelimit.AttemptPolicy
		attemptKeys *ratelimit.KeyResolver
	)
	if cfg.RateLimit.Enabled {
		attempts, err = ratelimit.NewRedisPolicy(rdb, &ratelimit.Config{
			MaxAttempts:   cfg.RateLimit.MaxAttempts,
			Window:        time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
			BlockDuration: time.Duration(cfg.RateLimit.BlockSeconds) * time.Second,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create attempt policy", zap.Error(err))
		}
		attemptKeys, err = ratelimit.NewKeyResolver(cfg.RateLimit.Strategy)
		if err != nil {
			logger.Fatal("Failed to create attempt key resolver", zap.Error(err))
		}
	}
	clientIP, err := ratelimit.NewClientIPResolver(cfg.Network.TrustedProxyCIDRs)
	if err != nil {
		logger.Fatal("Failed to create client ip resolver", zap.Error(err))
	}

	m := metrics.New("authgate")

	auditLogger, err := initAudit(cfg.Audit, logger, clk)
	if err != nil {
		logger.Fatal("Failed to initialize audit log", zap.Error(err))
	}
	defer auditLogger.Close()

	svc, err := auth.NewService(auth.ServiceConfig{
		Codec:               codec,
		Validator:           validator,
		Accounts:            accounts,
		Authenticator:       authenticator,
		Scopes:              scope.NewResolver(),
		RefreshStore:        refreshStore,
		Blacklist:           bl,
		Sessions:            sessions,
		Attempts:            attempts,
		AttemptKeys:         attemptKeys,
		ClientIP:            clientIP,
		Metrics:             m,
		Audit:               auditLogger,
		Clock:               clk,
		Logger:              logger,
		AccessAudience:      cfg.JWT.AccessAudience,
		RefreshAudience:     cfg.JWT.RefreshAudience,
		AccessTTL:           cfg.JWT.AccessTTL,
		RefreshTTL:          cfg.JWT.RefreshTTL,
		RotateRefreshTokens: cfg.JWT.RotateRefreshTokens,
		RateLimitEnabled:    cfg.RateLimit.Enabled,
	})
	if err != nil {
		logger.Fatal("Failed to create auth service", zap.Error(err))
	}

	filter := auth.NewFilter(validator, bl, logger)
	srv, err := rest.New(rest.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		HealthCheck: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}, svc, filter, m, logger)
	if err != nil {
		logger.Fatal("Failed to create http server", zap.Error(err))
	}

	auditLogger.Publish(context.Background(), audit.Event{
		EventType: audit.EventSystemStartup,
		Detail:    map[string]any{"version": Version},
	})

	errChan := make(chan error, 1)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
		}
	}

	auditLogger.Publish(context.Background(), audit.Event{EventType: audit.EventSystemShutdown})
	logger.Info("Server stopped successfully")
}

// initAccounts picks the account backend: postgres when a DSN is
// configured, an in-memory store otherwise (development only).
func initAccounts(cfg *config.Config, logger *zap.Logger) (identity.AccountGateway, func(), error) {
	if cfg.Postgres.DSN == "" {
		if cfg.Production() {
			return nil, nil, fmt.Errorf("postgres dsn is required in production")
		}
		logger.Warn("No postgres dsn configured, using in-memory account store")
		return identity.NewMemoryGateway(), func() {}, nil
	}

	sqlDB, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.Postgres.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	if cfg.Postgres.RunMigrations {
		runner, err := db.NewMigrationRunner(sqlDB, logger)
		if err != nil {
			sqlDB.Close()
			return nil, nil, fmt.Errorf("create migration runner: %w", err)
		}
		if err := runner.Up(); err != nil {
			sqlDB.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	gw, err := identity.NewPostgresGateway(sqlDB, logger)
	if err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return gw, func() { sqlDB.Close() }, nil
}

// initAudit routes audit events to a rotating file when configured, and
// to the service log otherwise.
func initAudit(cfg config.AuditConfig, logger *zap.Logger, clk clock.Clock) (*audit.Logger, error) {
	var (
		writer audit.Writer
		err    error
	)
	if cfg.File != "" {
		writer, err = audit.NewFileWriter(cfg.File, cfg.MaxSizeMB, cfg.MaxAgeDays, cfg.MaxBackups)
		if err != nil {
			return nil, err
		}
	} else {
		writer = audit.NewZapWriter(logger)
	}

	return audit.NewLogger(writer, audit.Config{
		BufferSize:    cfg.BufferSize,
		FlushInterval: cfg.FlushInterval,
	}, clk), nil
}

// initLogger initializes the zap logger
func initLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
