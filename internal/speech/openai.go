package speech

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/iamvkosarev/ai-tutor-bot/config"
)

// OpenAISynthesizer is the primary remote synthesis path (tts-1 family).
type OpenAISynthesizer struct {
	client *openai.Client
	cfg    config.OpenAI
}

func NewOpenAISynthesizer(client *openai.Client, cfg config.OpenAI) *OpenAISynthesizer {
	return &OpenAISynthesizer{
		client: client,
		cfg:    cfg,
	}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	resp, err := s.client.CreateSpeech(
		ctx, openai.CreateSpeechRequest{
			Model: openai.SpeechModel(s.cfg.SpeechModel),
			Voice: openai.SpeechVoice(s.cfg.SpeechVoice),
			Input: text,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech: %w", err)
	}
	return resp, nil
}

// WhisperTranscriber converts a captured audio segment to text.
type WhisperTranscriber struct {
	client *openai.Client
	cfg    config.OpenAI
}

func NewWhisperTranscriber(client *openai.Client, cfg config.OpenAI) *WhisperTranscriber {
	return &WhisperTranscriber{
		client: client,
		cfg:    cfg,
	}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, name string, audio io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.RequestTimeout)
	defer cancel()

	resp, err := w.client.CreateTranscription(
		ctx, openai.AudioRequest{
			Model:    w.cfg.TranscribeModel,
			Reader:   audio,
			FilePath: name,
			Language: "en",
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
