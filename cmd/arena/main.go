package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cardarena/internal/engine"
	"cardarena/internal/events"
	"cardarena/internal/gateway"
	"cardarena/internal/history"
	"cardarena/internal/matchmaking"
	"cardarena/internal/presence"
	"cardarena/internal/rewards"
	"cardarena/internal/session"
	"cardarena/internal/store"
	"cardarena/internal/suggest"
	"cardarena/internal/syncer"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("arena server exited")
	}
}

func run(ctx context.Context, cfg *Config) error {
	jsCfg := store.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATS.URL
	jsCfg.Bucket = cfg.NATS.Bucket
	kv, err := store.NewJetStreamKV(ctx, jsCfg)
	if err != nil {
		return err
	}
	defer kv.Close()
	sessions := store.NewSessions(kv)

	tracker := presence.NewTracker(presence.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer tracker.Close()

	pool, err := pgxpool.New(ctx, history.NewConfigFromEnv().DSN())
	if err != nil {
		return err
	}
	defer pool.Close()
	archive := history.NewRepository(pool)

	clock := clockwork.NewRealClock()
	seed := time.Now().UnixNano()

	sessionSvc := session.NewService(sessions, clock, rand.New(rand.NewSource(seed)))
	sync := syncer.New(sessions)
	suggester := suggest.NewClient(cfg.Suggest.BaseURL, cfg.Suggest.Timeout, rand.New(rand.NewSource(seed+1)))

	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), sessionSvc, sync, tracker, suggester)
	publisher := events.Fanout{
		events.NewNATSPublisher(kv.Conn(), "arena.sessions"),
		connections,
	}

	granter := rewards.NewNATSGranter(kv.Conn(), cfg.Rewards.Subject)
	matchmaker := matchmaking.NewService(sessions, granter, publisher, clock, rand.New(rand.NewSource(seed+2)))

	manager := engine.NewManager(sessions, clock, engine.ManagerConfig{
		ResolveDelay:  cfg.Engine.ResolveDelay,
		Retention:     cfg.Engine.Retention,
		SweepInterval: cfg.Engine.SweepInterval,
	}, publisher, archive)

	go connections.Start(ctx)
	go func() {
		if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("engine manager stopped")
		}
	}()

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: gateway.NewServer(connections, matchmaker, archive, tracker).Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Server.Port).Msg("arena server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
