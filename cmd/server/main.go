package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/bso/internal/catalog"
	"github.com/JonMunkholm/bso/internal/config"
	"github.com/JonMunkholm/bso/internal/core"
	"github.com/JonMunkholm/bso/internal/lock"
	"github.com/JonMunkholm/bso/internal/logging"
	"github.com/JonMunkholm/bso/internal/store"
	"github.com/JonMunkholm/bso/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"release_max_concurrent", cfg.Release.MaxConcurrent,
		"redis_lock", cfg.Redis.Enabled(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	st := store.NewPostgres(pool)
	if cfg.Database.Migrate {
		if err := st.Migrate(ctx); err != nil {
			slog.Error("failed to migrate schema", "error", err)
			os.Exit(1)
		}
	}

	lockOpts := lock.Options{
		Expiry:     cfg.Redis.LockExpiry,
		Refresh:    cfg.Redis.LockRefresh,
		Tries:      cfg.Redis.LockTries,
		RetryDelay: cfg.Redis.LockRetryDelay,
	}

	var locker lock.Locker
	if cfg.Redis.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("failed to parse redis URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			slog.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
		locker = lock.NewRedis(client, lockOpts)
		slog.Info("using redis order lock", "addr", redisOpts.Addr)
	} else {
		// single instance only
		locker = lock.NewLocal(lockOpts)
		slog.Warn("REDIS_URL not set, using in-process order lock")
	}

	units := catalog.NewUnitResolver(cfg.Units.Mapping)
	slog.Debug("unit mapping", "labels", units.Labels())

	limiter := core.NewReleaseLimiter(cfg.Release.MaxConcurrent, cfg.Release.MaxWaitTime)
	service := core.NewService(st, locker, units, core.Options{
		Timeout:      cfg.Release.Timeout,
		HistoryLimit: cfg.Release.HistoryLimit,
		Limiter:      limiter,
	})

	server := web.NewServer(service, cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight releases commit before the listener closes
		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for releases to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("releases did not complete in time", "error", err)
			} else {
				slog.Info("all releases completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
