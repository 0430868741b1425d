package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"open-trivia-rounds/internal/app"
	"open-trivia-rounds/internal/config"
	"open-trivia-rounds/internal/game"
	"open-trivia-rounds/internal/infra/memory"
	"open-trivia-rounds/internal/infra/opentdb"
	pgloader "open-trivia-rounds/internal/infra/postgres"
	redisstore "open-trivia-rounds/internal/infra/redis"
	"open-trivia-rounds/internal/telemetry"
	"open-trivia-rounds/internal/timer"
	transport "open-trivia-rounds/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Pretty)

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	trivia := opentdb.NewClient(cfg.OpenTDB.BaseURL, config.TTLDuration(cfg.OpenTDB.Timeout, 10*time.Second))
	loader, closeLoader, err := categoryLoader(ctx, cfg, trivia)
	if err != nil {
		return err
	}
	defer closeLoader()

	categoriesTTL := config.TTLDuration(cfg.Categories.TTL, time.Hour)
	var categories app.CategoryRepository
	if redisClient != nil {
		categories = redisstore.NewCategoryRepository(redisClient, loader, categoriesTTL, cfg.Redis.Prefix)
	} else {
		categories = memory.NewCategoryRepository(loader, categoriesTTL)
	}

	slotConfig := app.SlotConfig{
		Timer: timer.Config{Interval: config.TTLDuration(cfg.Game.TickInterval, time.Second)},
	}
	var store app.SessionRepository
	if redisClient != nil {
		store = redisstore.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 30*time.Minute), cfg.Redis.Prefix, slotConfig)
	} else {
		store = memory.NewSessionStore(slotConfig)
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	service := app.NewGameService(store, categories, trivia, game.NewMachine(policy), app.WithRecorder(metrics))

	gin.SetMode(gin.ReleaseMode)
	router := transport.NewRouter(service, transport.RouterConfig{
		WS: transport.WSConfig{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst},
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("port", finalPort).Str("categories", cfg.Categories.Source).Msg("starting trivia server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		return service.RunJanitor(ctx,
			config.TTLDuration(cfg.Game.SweepInterval, time.Minute),
			config.TTLDuration(cfg.Game.SessionIdleTTL, 30*time.Minute))
	})
	eg.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func connectRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := telemetry.MonitorRedis(client); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

// categoryLoader picks where the catalog comes from. The returned func
// releases whatever the loader holds.
func categoryLoader(ctx context.Context, cfg config.Config, trivia *opentdb.Client) (memory.CategoryLoader, func(), error) {
	switch cfg.Categories.Source {
	case config.SourceOpenTDB, "":
		return trivia, func() {}, nil
	case config.SourcePostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		return pgloader.NewCategoryLoader(pool), pool.Close, nil
	case config.SourceStatic:
		cats, err := memory.DefaultCatalog()
		if err != nil {
			return nil, nil, err
		}
		return memory.NewStaticCategoryLoader(cats), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown categories source %q", cfg.Categories.Source)
}
