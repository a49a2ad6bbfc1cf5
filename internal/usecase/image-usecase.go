package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/iamvkosarev/ai-tutor-bot/config"
)

var ErrEmptyImageResult = errors.New("image response has no usable payload")

const imagePromptFormat = "create an image for %s"

// ImageUsecase is the image generation boundary. Failures are returned as
// values so the conversation can fall back to a text answer; nothing panics
// past this boundary and no retry happens here.
type ImageUsecase struct {
	client *openai.Client
	cfg    config.OpenAI
	logger *slog.Logger
}

func NewImageUsecase(client *openai.Client, cfg config.OpenAI, logger *slog.Logger) *ImageUsecase {
	return &ImageUsecase{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Generate produces one image for the raw utterance and returns its URL.
func (i *ImageUsecase) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.RequestTimeout)
	defer cancel()

	resp, err := i.client.CreateImage(
		ctx, openai.ImageRequest{
			Model:          i.cfg.ImageModel,
			Prompt:         fmt.Sprintf(imagePromptFormat, prompt),
			N:              1,
			Size:           openai.CreateImageSize1024x1024,
			Quality:        openai.CreateImageQualityStandard,
			Style:          openai.CreateImageStyleNatural,
			ResponseFormat: openai.CreateImageResponseFormatURL,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", ErrEmptyImageResult
	}

	i.logger.Debug("image generated", "url", resp.Data[0].URL)
	return resp.Data[0].URL, nil
}
