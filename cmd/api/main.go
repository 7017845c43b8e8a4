package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/config"
	"github.com/trieuvy/aria/backend/internal/handler"
	"github.com/trieuvy/aria/backend/internal/service/agent"
	"github.com/trieuvy/aria/backend/internal/service/contextcache"
	conversationService "github.com/trieuvy/aria/backend/internal/service/conversation"
	"github.com/trieuvy/aria/backend/internal/service/history"
	"github.com/trieuvy/aria/backend/internal/service/pipeline"
	"github.com/trieuvy/aria/backend/internal/service/room"
	"github.com/trieuvy/aria/backend/internal/service/synthesize"
	"github.com/trieuvy/aria/backend/internal/service/tools"
	"github.com/trieuvy/aria/backend/internal/service/transcribe"
	"github.com/trieuvy/aria/backend/internal/store"
	"github.com/trieuvy/aria/backend/internal/store/memory"
	"github.com/trieuvy/aria/backend/internal/store/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.ValidatePipeline(); err != nil {
		log.Fatal().Err(err).Msg("configuration incomplete")
	}

	// Durable store, with an in-memory fallback for local development.
	var st store.Store
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer db.Close()
		st = postgres.NewWithDB(db)
		log.Info().Msg("using postgres store")
	} else {
		st = memory.New()
		log.Warn().Msg("POSTGRES_DSN not set, conversations are not durable")
	}

	// Context cache KV: redis when reachable, otherwise in-process.
	var kv contextcache.KV
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, using in-process context cache")
		kv = contextcache.NewMemoryKV()
	} else {
		kv = contextcache.NewRedisKV(redisClient)
		defer redisClient.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis context cache")
	}

	cache := contextcache.New(kv, st.Conversations(),
		cfg.Context.TokenBudget, cfg.Context.TTL, cfg.Context.RecentConversations, log)

	dispatcher := tools.NewDispatcher(st.Interpretations(), log)
	agentSvc, err := agent.NewService(ctx, cfg.AI, dispatcher, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize reasoning service")
	}

	asr := transcribe.NewClient(cfg.Transcribe, log)
	tts := synthesize.NewClient(cfg.Synthesize, log)
	rooms := room.NewService(cfg.Room, log)

	recorder := history.NewRecorder(st.Messages(), log)
	defer recorder.Close()

	opener := func(ctx context.Context, sessionID string) (pipeline.TranscriptStream, error) {
		return asr.OpenStream(ctx, sessionID)
	}
	orch := pipeline.NewOrchestrator(opener, tts, agentSvc, recorder, cache, log)

	convSvc := conversationService.NewService(st, rooms, orch, cache, log)
	router := handler.NewRouter(convSvc, log)

	startServer(ctx, cfg.Server, router, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log zerolog.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("aria backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
