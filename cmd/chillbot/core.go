package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/whisper/chillbot/internal/bot"
	"github.com/whisper/chillbot/internal/completion"
	"github.com/whisper/chillbot/internal/config"
	"github.com/whisper/chillbot/internal/messaging"
	"github.com/whisper/chillbot/internal/metrics"
	"github.com/whisper/chillbot/internal/moderation"
	"github.com/whisper/chillbot/internal/platform"
	"github.com/whisper/chillbot/internal/router"
	"github.com/whisper/chillbot/internal/warnings"
)

// core holds the platform-independent parts of a bot process.
type core struct {
	cfg       config.Config
	logger    *zap.Logger
	redis     *redis.Client // nil without Redis
	ledger    *warnings.Ledger
	engine    *moderation.Engine
	router    *router.Router
	llm       completion.Client
	publisher *messaging.NATSClient // nil without NATS
}

// connectRedis returns a client for cfg.RedisAddr, or nil when Redis is not
// configured or unreachable. The bot then falls back to local state.
func connectRedis(ctx context.Context, cfg config.Config, logger *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, using local state", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		rdb.Close()
		return nil
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return rdb
}

// openLedger loads the warning ledger from Redis when available and from
// the warnings file otherwise. With neither, counts live in memory only.
func openLedger(ctx context.Context, cfg config.Config, rdb *redis.Client, logger *zap.Logger) *warnings.Ledger {
	logger = logger.Named("warnings")
	var store warnings.Persister
	switch {
	case rdb != nil:
		store = warnings.NewRedisStore(rdb)
		logger.Info("warning ledger in redis", zap.String("addr", cfg.RedisAddr))
	case cfg.WarningsFile != "":
		fs := warnings.NewFileStore(cfg.WarningsFile)
		logger.Info("warning ledger on disk", zap.String("path", fs.Path()))
		store = fs
	default:
		logger.Info("warning ledger in memory only")
	}
	return warnings.NewLedger(ctx, store, logger)
}

// newCore builds the ledger, moderation engine, router and completion
// client. withCompletion is false for commands that never call the API.
func newCore(ctx context.Context, cfg config.Config, logger *zap.Logger, withCompletion bool) (*core, error) {
	c := &core{cfg: cfg, logger: logger}
	c.redis = connectRedis(ctx, cfg, logger)
	c.ledger = openLedger(ctx, cfg, c.redis, logger)

	var window moderation.Window
	if c.redis != nil {
		window = moderation.NewRedisWindow(c.redis, cfg.Moderation.RateWindow)
	} else {
		window = moderation.NewMemoryWindow(cfg.Moderation.RateWindow)
	}
	filter := moderation.NewFilterWithTerms(cfg.BannedWords)
	logger.Info("banned word filter loaded", zap.Int("terms", filter.Terms()))
	c.engine = moderation.NewEngine(
		filter,
		c.ledger,
		window,
		cfg.Moderation,
		logger.Named("moderation"),
	)
	c.router = router.New(cfg.Prefix, cfg.Triggers)

	if withCompletion {
		llm, err := completion.New(ctx, cfg.Completion)
		if err != nil {
			c.close(ctx)
			return nil, err
		}
		c.llm = completion.NewInstrumented(llm, cfg.Completion.Timeout)
	}

	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		nc, err := messaging.NewNATSClient(natsConfig, logger)
		if err != nil {
			logger.Warn("incident fan-out disabled", zap.Error(err))
		} else {
			c.publisher = nc
		}
	}
	return c, nil
}

// handler builds the message pipeline on top of p.
func (c *core) handler(p platform.Platform) *bot.Handler {
	opts := bot.Options{
		Platform:   p,
		Engine:     c.engine,
		Ledger:     c.ledger,
		Router:     c.router,
		Completion: c.llm,
		Logger:     c.logger,
	}
	if c.publisher != nil {
		opts.Publisher = c.publisher
	}
	return bot.New(opts)
}

// close flushes the ledger and releases connections.
func (c *core) close(ctx context.Context) {
	if err := c.ledger.Flush(ctx); err != nil {
		c.logger.Warn("final ledger flush failed", zap.Error(err))
	}
	if c.publisher != nil {
		c.publisher.Close()
	}
	if c.redis != nil {
		c.redis.Close()
	}
}

// serveMetrics exposes /metrics on addr until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func logSummary(logger *zap.Logger, cfg config.Config) {
	summary := cfg.Summary()
	fields := make([]zap.Field, 0, len(summary))
	for _, k := range slices.Sorted(maps.Keys(summary)) {
		fields = append(fields, zap.String(k, summary[k]))
	}
	logger.Info("configuration", fields...)
}
