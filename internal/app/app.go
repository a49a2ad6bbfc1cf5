package app

import (
	"context"
	"fmt"
	"net/url"

	"github.com/redis/go-redis/v9"
	"github.com/sashabaranov/go-openai"

	"github.com/iamvkosarev/ai-tutor-bot/config"
	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
	"github.com/iamvkosarev/ai-tutor-bot/internal/server"
	"github.com/iamvkosarev/ai-tutor-bot/internal/speech"
	key_value "github.com/iamvkosarev/ai-tutor-bot/internal/storage/key-value"
	"github.com/iamvkosarev/ai-tutor-bot/internal/usecase"
	"github.com/iamvkosarev/ai-tutor-bot/internal/websocket"
)

func Run(ctx context.Context, cfg *config.Config) error {
	logger, closeLogger := config.SetupLogger(cfg.Logging)
	defer func() {
		if err := closeLogger(); err != nil {
			fmt.Printf("failed to close logger: %v\n", err)
		}
	}()

	client, err := newOpenAIClient(cfg.OpenAI)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(
		&redis.Options{
			Addr: cfg.Redis.Endpoint,
		},
	)

	userStorage := key_value.NewUserStorage(rdb)
	streakStorage := key_value.NewStreakStorage(rdb)

	userUsecase, err := usecase.NewUserUsecase(
		usecase.UserUsecaseDeps{
			UserStorage: userStorage,
		},
		cfg.Tutor,
	)
	if err != nil {
		return fmt.Errorf("failed to create user usecase: %w", err)
	}

	streakUsecase := usecase.NewStreakUsecase(
		usecase.StreakUsecaseDeps{
			StreakStorage: streakStorage,
			Logger:        logger,
		},
	)

	openAIUsecase := usecase.NewOpenAIUsecase(client, cfg.OpenAI, logger)
	imageUsecase := usecase.NewImageUsecase(client, cfg.OpenAI, logger)
	synthesizer := speech.NewOpenAISynthesizer(client, cfg.OpenAI)
	transcriber := speech.NewWhisperTranscriber(client, cfg.OpenAI)

	conversations := func(
		user model.User,
		persona model.Persona,
		engine *speech.ClientEngine,
		player speech.Player,
		fallback speech.FallbackSpeaker,
	) (*usecase.ConversationUsecase, error) {
		input, err := speech.NewInput(engine, cfg.Tutor.ListenSettleDelay, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create speech input: %w", err)
		}
		output := speech.NewOutput(synthesizer, player, fallback, logger)
		return usecase.NewConversationUsecase(
			usecase.ConversationUsecaseDeps{
				Text:     openAIUsecase,
				Image:    imageUsecase,
				Input:    input,
				Output:   output,
				Activity: streakUsecase,
				Logger:   logger,
			},
			user,
			persona,
			cfg.Tutor.SpeakDelay,
		), nil
	}

	hub := websocket.NewHub(
		websocket.HubDeps{
			Users:         userUsecase,
			Transcriber:   transcriber,
			Streaks:       streakStorage,
			Conversations: conversations,
			Logger:        logger,
		},
		cfg.Server.JWTSecret,
	)

	srv := server.NewServer(
		server.ServerDeps{
			Users:         userUsecase,
			Streaks:       streakUsecase,
			Conversations: hub,
			WebSocket:     hub.HandleWebSocket,
			Logger:        logger,
		},
		cfg.Server,
	)

	logger.Info("server starting", "address", cfg.Server.Address)
	return srv.Run(ctx)
}

func newOpenAIClient(cfg config.OpenAI) (*openai.Client, error) {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		baseURL, err := url.JoinPath(cfg.OpenAIBaseURL, "/v1")
		if err != nil {
			return nil, fmt.Errorf("failed to build openai base url: %w", err)
		}
		clientCfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(clientCfg), nil
}
