package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/iamvkosarev/ai-tutor-bot/config"
	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
	openai_tools "github.com/iamvkosarev/ai-tutor-bot/pkg/openai-tools"
)

var ErrEmptyCompletion = errors.New("completion response has no choices")

// OpenAIUsecase is the text completion boundary. All transport failures come
// back as error values; the caller decides the fallback policy.
type OpenAIUsecase struct {
	client *openai.Client
	cfg    config.OpenAI
	logger *slog.Logger
}

func NewOpenAIUsecase(client *openai.Client, cfg config.OpenAI, logger *slog.Logger) *OpenAIUsecase {
	return &OpenAIUsecase{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Complete sends the persona system prompt, the reconstructed conversation
// context and the new utterance, and returns a single completion. At most one
// attempt per call; no internal retry.
func (o *OpenAIUsecase) Complete(
	ctx context.Context,
	systemPrompt string,
	history []model.Message,
	utterance string,
) (string, error) {
	messages := buildCompletionMessages(systemPrompt, history, utterance)
	messages = o.trimToTokenLimit(messages)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(
		ctx, openai.ChatCompletionRequest{
			Model:       o.cfg.ChatModel,
			Temperature: o.cfg.ModelTemperature,
			TopP:        1,
			N:           1,
			MaxTokens:   o.cfg.MaxTokens,
			Messages:    messages,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func buildCompletionMessages(
	systemPrompt string,
	history []model.Message,
	utterance string,
) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(
		messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
	)
	for _, msg := range history {
		// Pending placeholders never reach the model.
		if msg.IsPending {
			continue
		}
		messages = append(
			messages, openai.ChatCompletionMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			},
		)
	}
	messages = append(
		messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: utterance,
		},
	)
	return messages
}

// trimToTokenLimit drops the oldest history entries until the request fits
// the configured token limit. The system prompt at index 0 always stays.
func (o *OpenAIUsecase) trimToTokenLimit(
	messages []openai.ChatCompletionMessage,
) []openai.ChatCompletionMessage {
	for len(messages) > 2 {
		tokenCount, err := openai_tools.CountToken(messages, o.cfg.ChatModel)
		if err != nil {
			o.logger.Warn("failed to count tokens, trimming history", "error", err)
			messages = append(messages[:1], messages[2:]...)
			continue
		}
		if tokenCount < o.cfg.ContextTokenLimit {
			break
		}
		o.logger.Info("history trimmed due to token limit", "token_count", tokenCount)
		messages = append(messages[:1], messages[2:]...)
	}
	return messages
}
