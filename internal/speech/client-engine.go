package speech

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Transcriber converts one captured audio segment to text.
type Transcriber interface {
	Transcribe(ctx context.Context, name string, audio io.Reader) (string, error)
}

// ClientEngine is the recognition Engine backed by a connected browser
// client. The client either recognizes locally and pushes finalized
// transcripts, or pushes raw audio segments which are transcribed remotely.
// Events arriving while the engine is stopped are dropped.
type ClientEngine struct {
	transcriber Transcriber
	logger      *slog.Logger

	mu       sync.Mutex
	active   bool
	handlers EngineHandlers
}

func NewClientEngine(transcriber Transcriber, logger *slog.Logger) *ClientEngine {
	return &ClientEngine{
		transcriber: transcriber,
		logger:      logger,
	}
}

func (e *ClientEngine) Supported() bool { return true }

func (e *ClientEngine) Bind(handlers EngineHandlers) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = handlers
}

func (e *ClientEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = true
	return nil
}

func (e *ClientEngine) Stop() error {
	e.mu.Lock()
	e.active = false
	handlers := e.handlers
	e.mu.Unlock()

	if handlers.OnEnded != nil {
		handlers.OnEnded()
	}
	return nil
}

// PushTranscript delivers a finalized transcript recognized on the client.
func (e *ClientEngine) PushTranscript(text string) {
	e.mu.Lock()
	active := e.active
	handlers := e.handlers
	e.mu.Unlock()

	if !active || strings.TrimSpace(text) == "" {
		return
	}
	if handlers.OnTranscript != nil {
		handlers.OnTranscript(text, true)
	}
}

// PushAudio transcribes a captured audio segment and delivers the result as
// a finalized transcript. Transcription failures are recoverable faults.
func (e *ClientEngine) PushAudio(ctx context.Context, name string, audio io.Reader) {
	e.mu.Lock()
	active := e.active
	handlers := e.handlers
	e.mu.Unlock()

	if !active {
		return
	}

	text, err := e.transcriber.Transcribe(ctx, name, audio)

	// Transcription may outlive the recognition it belongs to; drop the
	// result if the engine was stopped in the meantime.
	e.mu.Lock()
	active = e.active
	handlers = e.handlers
	e.mu.Unlock()
	if !active {
		return
	}

	if err != nil {
		e.logger.Warn("failed to transcribe audio segment", "error", err)
		if handlers.OnError != nil {
			handlers.OnError(FaultTransient)
		}
		return
	}
	if text == "" {
		return
	}
	if handlers.OnTranscript != nil {
		handlers.OnTranscript(text, true)
	}
}

// PushFault forwards a recognition error reported by the client platform.
func (e *ClientEngine) PushFault(kind FaultKind) {
	e.mu.Lock()
	if kind.Fatal() {
		e.active = false
	}
	handlers := e.handlers
	e.mu.Unlock()

	if handlers.OnError != nil {
		handlers.OnError(kind)
	}
}

// PushEnded forwards the client reporting its recognizer closed.
func (e *ClientEngine) PushEnded() {
	e.mu.Lock()
	e.active = false
	handlers := e.handlers
	e.mu.Unlock()

	if handlers.OnEnded != nil {
		handlers.OnEnded()
	}
}
