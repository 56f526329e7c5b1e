// Package bootstrap loads configuration and opens the shared infrastructure
// every CLI command needs.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/orris-inc/subsync/internal/infrastructure/config"
	"github.com/orris-inc/subsync/internal/infrastructure/database"
	"github.com/orris-inc/subsync/internal/shared/biztime"
	"github.com/orris-inc/subsync/internal/shared/constants"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

const redisPingTimeout = 3 * time.Second

// Options selects the environment and config file.
type Options struct {
	Env        string
	ConfigPath string
	// RequireRedis fails startup when redis is unreachable instead of
	// continuing without it.
	RequireRedis bool
}

// Runtime is the loaded configuration plus open connections.
type Runtime struct {
	Config *config.Config
	Log    logger.Interface
	DB     *gorm.DB
	Redis  *redis.Client // nil when redis is unreachable and not required
}

// ResolveEnv prefers the ENV variable over the flag value.
func ResolveEnv(flag string) string {
	if envVar := os.Getenv("ENV"); envVar != "" {
		return envVar
	}
	if flag == "" {
		return constants.EnvDevelopment
	}
	return flag
}

// Load initializes config, logger, business timezone, database and redis.
func Load(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.Load(opts.Env, opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, opts.Env == constants.EnvDevelopment); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()

	if err := biztime.Init(cfg.Server.Timezone); err != nil {
		return nil, fmt.Errorf("failed to initialize business timezone: %w", err)
	}

	if err := database.Init(&cfg.Database, log); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	rt := &Runtime{Config: cfg, Log: log, DB: database.Get()}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		if opts.RequireRedis {
			rt.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.GetAddr(), err)
		}
		log.Warnw("redis unavailable, continuing without it", "address", cfg.Redis.GetAddr(), "error", err)
	} else {
		log.Infow("redis connection established", "address", cfg.Redis.GetAddr())
		rt.Redis = client
	}

	return rt, nil
}

// Close releases the connections opened by Load
func (rt *Runtime) Close() {
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.Log.Warnw("failed to close redis client", "error", err)
		}
	}
	if err := database.Close(); err != nil {
		rt.Log.Warnw("failed to close database", "error", err)
	}
	_ = logger.Sync()
}
