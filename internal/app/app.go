// Package app builds the application from configuration: logging, tracing,
// database, cache, AI client, vector indexes, services, and the HTTP server.
// Components receive their dependencies explicitly; nothing here is global.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docsage/docsage/db"
	"github.com/docsage/docsage/internal/ai"
	"github.com/docsage/docsage/internal/api"
	"github.com/docsage/docsage/internal/cache"
	"github.com/docsage/docsage/internal/chat"
	"github.com/docsage/docsage/internal/chunker"
	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/internal/document"
	"github.com/docsage/docsage/internal/log"
	"github.com/docsage/docsage/internal/observability"
	"github.com/docsage/docsage/internal/retrieval"
	"github.com/docsage/docsage/internal/store"
	"github.com/docsage/docsage/internal/vectorindex"
)

// serviceName identifies this service in traces.
const serviceName = "docsage"

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Server *api.Server

	pool        *pgxpool.Pool
	redis       *cache.Redis
	stopTracing func(context.Context) error
}

// New builds the application. Callers must Close it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.New(log.Config{
		Level: parseLogLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)

	a := &App{Config: cfg, Logger: logger}
	if err := a.setup(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) setup(ctx context.Context) error {
	cfg := a.Config

	stopTracing, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	a.stopTracing = stopTracing

	connURL := cfg.PostgresURL()
	if err := db.Migrate(connURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging database: %w", err)
	}
	a.pool = pool
	a.Logger.Info("database connected", "host", cfg.PostgresHost, "database", cfg.PostgresDBName)

	client, err := ai.NewClient(ctx, ai.Config{
		Provider:      cfg.Provider,
		Model:         cfg.ModelName,
		EmbedderModel: cfg.EmbedderModel,
		OllamaHost:    cfg.OllamaHost,
	}, a.Logger.With("component", "ai"))
	if err != nil {
		return fmt.Errorf("creating AI client: %w", err)
	}

	var c cache.Cache
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			a.Logger.With("component", "cache"))
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		a.redis = redisCache
		c = redisCache
	} else {
		a.Logger.Info("redis not configured, using in-memory cache")
		c = cache.NewMemory()
	}

	splitter, err := chunker.New(chunker.Config{
		Strategy:     chunker.Strategy(cfg.ChunkStrategy),
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		MinSentences: cfg.ChunkMinSentences,
	})
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}

	pg := store.NewPostgres(pool)
	registry := vectorindex.NewRegistry(cfg.IndexDir, cfg.EmbedderDim, client.Embed,
		a.Logger.With("component", "vectorindex"))
	engine := retrieval.NewEngine(client, registry, a.Logger.With("component", "retrieval"))

	chatSvc := chat.NewService(pg, engine, client, c, cfg.RetrievalTopK, a.Logger.With("component", "chat"))
	docSvc := document.NewService(pg, registry, client, splitter, cfg.UploadDir,
		a.Logger.With("component", "document"))

	a.Server = api.NewServer(api.Config{
		Addr:           cfg.Addr(),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, chatSvc, docSvc, pool, a.Logger.With("component", "api"))

	return nil
}

// Run serves HTTP until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.Server.Run(ctx)
}

// Close releases resources in reverse setup order.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("closing redis", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.stopTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), api.ShutdownTimeout)
		defer cancel()
		if err := a.stopTracing(ctx); err != nil {
			a.Logger.Warn("flushing traces", "error", err)
		}
	}
}

// parseLogLevel maps a config string to a slog level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
