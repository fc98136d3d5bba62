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
	"github.com/rs/zerolog"

	"github.com/zhouzirui/ernie-chat/backend/internal/config"
	"github.com/zhouzirui/ernie-chat/backend/internal/handler"
	"github.com/zhouzirui/ernie-chat/backend/internal/logging"
	"github.com/zhouzirui/ernie-chat/backend/internal/metrics"
	"github.com/zhouzirui/ernie-chat/backend/internal/model/persona"
	"github.com/zhouzirui/ernie-chat/backend/internal/service/ai"
	"github.com/zhouzirui/ernie-chat/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New(config.LogConfig{})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Log)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file, using system environment variables only")
	}

	metrics.MustRegister()

	bot, err := config.LoadPersona(cfg.Storage.ConfigPath, cfg.AI.APIKeyOverride)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Storage.ConfigPath).Msg("failed to load bot config")
	}
	personaStore := persona.NewMemoryStore(bot)
	logger.Info().
		Str("bot_name", bot.Name).
		Str("model", bot.Model).
		Int("sensitive_words", len(bot.SensitiveWords)).
		Msg("bot config loaded")

	transcripts := chat.NewTranscriptStore(
		cfg.Storage.HistoryPath,
		func() string { return personaStore.Current().Role },
		logging.Component(logger, "transcript"),
	)
	if err := transcripts.Load(chat.DefaultUser); err != nil {
		logger.Fatal().Err(err).Msg("failed to load chat history")
	}

	// Initialize AI service
	var completer chat.Completer
	aiService, err := ai.NewService(ctx, cfg.AI, bot.APIKey, bot.Model, logger)
	if err != nil {
		logger.Warn().Err(err).Str("provider", cfg.AI.Provider).
			Msg("failed to initialize AI service, continuing without completions")
	} else {
		completer = aiService
		logger.Info().Str("provider", cfg.AI.Provider).Msg("AI service initialized successfully")
	}

	configPath := cfg.Storage.ConfigPath
	chatService := chat.NewService(transcripts, personaStore, completer, func(p persona.Persona) error {
		return config.SavePersonaFields(configPath, p)
	}, logging.Component(logger, "chat"))

	router := handler.NewRouter(chatService, cfg.Storage.StaticDir, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("chat backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("server stopped")
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
