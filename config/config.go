package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type OpenAI struct {
	OpenAIAPIKey     string  `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL    string  `yaml:"open_ai_base_url" env:"OPENAI_BASE_URL"`
	ChatModel        string  `yaml:"chat_model" env:"OPENAI_CHAT_MODEL" env-default:"gpt-4"`
	ImageModel       string  `yaml:"image_model" env:"OPENAI_IMAGE_MODEL" env-default:"dall-e-3"`
	SpeechModel      string  `yaml:"speech_model" env:"OPENAI_SPEECH_MODEL" env-default:"tts-1"`
	SpeechVoice      string  `yaml:"speech_voice" env:"OPENAI_SPEECH_VOICE" env-default:"nova"`
	TranscribeModel  string  `yaml:"transcribe_model" env:"OPENAI_TRANSCRIBE_MODEL" env-default:"whisper-1"`
	ModelTemperature float32 `yaml:"model_temperature" env:"MODEL_TEMPERATURE" env-default:"0.7"`
	MaxTokens        int     `yaml:"max_tokens" env:"OPENAI_MAX_TOKENS" env-default:"500"`
	// ContextTokenLimit bounds the reconstructed conversation context sent
	// with each completion; oldest messages are trimmed first.
	ContextTokenLimit int           `yaml:"context_token_limit" env:"CONTEXT_TOKEN_LIMIT" env-default:"3500"`
	RequestTimeout    time.Duration `yaml:"request_timeout" env:"OPENAI_REQUEST_TIMEOUT" env-default:"30s"`
}

type Tutor struct {
	// Profiles binds an allow-listed email to one of the built-in personas.
	// Emails not listed here are denied access.
	Profiles []ProfileBinding `yaml:"profiles"`
	// SpeakDelay lets the UI paint the resolved message before audio starts.
	SpeakDelay time.Duration `yaml:"speak_delay" env:"TUTOR_SPEAK_DELAY" env-default:"100ms"`
	// ListenSettleDelay avoids spurious stop/start races in the recognizer.
	ListenSettleDelay time.Duration `yaml:"listen_settle_delay" env:"TUTOR_LISTEN_SETTLE_DELAY" env-default:"300ms"`
}

type ProfileBinding struct {
	Email   string `yaml:"email"`
	Persona string `yaml:"persona"`
}

type Server struct {
	Address   string `yaml:"address" env:"SERVER_ADDRESS" env-default:":8080"`
	JWTSecret string `env:"JWT_SECRET,required"`
}

type Redis struct {
	Endpoint string `yaml:"endpoint" env:"REDIS_ENDPOINT" env-default:"localhost:6379"`
}

type Logging struct {
	File  string `yaml:"file" env:"LOG_FILE"`
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Config struct {
	OpenAI  OpenAI  `yaml:"openai"`
	Tutor   Tutor   `yaml:"tutor"`
	Server  Server  `yaml:"server"`
	Redis   Redis   `yaml:"redis"`
	Logging Logging `yaml:"logging"`
}

func LoadConfig(cfgPath string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
		return nil, err
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l Logging) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
