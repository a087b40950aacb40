// Command server runs the oracle backend: the rate-limited question endpoint,
// the conversation listings, and the operational endpoints (/health,
// /metrics). Configuration comes from the environment (optionally a .env
// file); see internal/config for every knob and its default.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mkaramanlis/oracle-backend/internal/config"
	httpapi "github.com/mkaramanlis/oracle-backend/internal/http"
	"github.com/mkaramanlis/oracle-backend/internal/observability"
	"github.com/mkaramanlis/oracle-backend/internal/ratelimit"
	"github.com/mkaramanlis/oracle-backend/internal/repo"
	"github.com/mkaramanlis/oracle-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Best effort: a missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)

	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting oracle backend")

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	store := counterStore(ctx, cfg.RateLimit.RedisURL)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	if err := httpapi.RegisterRoutes(r, db, store, cfg); err != nil {
		log.Fatal().Err(err).Msg("route registration failed")
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("bye")
}

// counterStore connects the shared quota store when a Redis URL is
// configured. An unreachable Redis is not fatal: the limiter degrades to
// process-local counters on its own, and the client reconnects when the
// server comes back.
func counterStore(ctx context.Context, redisURL string) ratelimit.CounterStore {
	if redisURL == "" {
		log.Info().Msg("no REDIS_URL configured, quota counters are process-local")
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable at startup, quota checks will fall back until it recovers")
	}
	return ratelimit.NewRedisStore(client)
}
