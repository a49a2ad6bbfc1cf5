// Package speech wraps the recognition and synthesis capabilities behind
// explicit lifecycles, so the conversation core never touches transport or
// vendor APIs directly.
package speech

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrRecognitionUnsupported = errors.New("speech recognition is not supported by this engine")

// FaultKind classifies recognition errors reported by an engine.
type FaultKind string

const (
	FaultNoSpeech         = FaultKind("no-speech")
	FaultAudioCapture     = FaultKind("audio-capture")
	FaultPermissionDenied = FaultKind("permission-denied")
	FaultTransient        = FaultKind("transient")
)

// Fatal reports whether the fault must end the voice session entirely.
func (f FaultKind) Fatal() bool {
	switch f {
	case FaultNoSpeech, FaultAudioCapture, FaultPermissionDenied:
		return true
	}
	return false
}

// EngineHandlers are the raw callbacks an Engine fires. Interim transcripts
// carry final=false and are discarded by the adapter.
type EngineHandlers struct {
	OnTranscript func(text string, final bool)
	OnError      func(kind FaultKind)
	OnEnded      func()
}

// Engine is the platform recognition capability: continuous mode, English
// locale, finalized transcripts. Support is checked once at construction of
// the Input adapter, never at call sites.
type Engine interface {
	Supported() bool
	Start() error
	Stop() error
	Bind(handlers EngineHandlers)
}

// InputHandlers are the adapter-level callbacks consumed by the conversation
// core. Exactly the fatal faults reach OnFatalError; recoverable engine
// errors surface as OnEnded so the caller only clears its listening state.
type InputHandlers struct {
	OnFinalTranscript func(text string)
	OnFatalError      func(kind FaultKind)
	OnEnded           func()
}

// Input owns the recognition lifecycle: a settle delay before the engine
// starts (spurious immediate stop/start races otherwise), benign restarts
// while already listening, and no-op stops while idle.
type Input struct {
	engine   Engine
	settle   time.Duration
	logger   *slog.Logger
	handlers InputHandlers

	mu       sync.Mutex
	starting bool
	started  bool
	timer    *time.Timer
}

func NewInput(engine Engine, settle time.Duration, logger *slog.Logger) (*Input, error) {
	if engine == nil || !engine.Supported() {
		return nil, ErrRecognitionUnsupported
	}
	in := &Input{
		engine: engine,
		settle: settle,
		logger: logger,
	}
	engine.Bind(
		EngineHandlers{
			OnTranscript: in.handleTranscript,
			OnError:      in.handleError,
			OnEnded:      in.handleEnded,
		},
	)
	return in, nil
}

// Bind registers the consumer callbacks. Must be called before Start.
func (in *Input) Bind(handlers InputHandlers) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.handlers = handlers
}

// Start schedules the engine start after the settle delay. Calling Start
// while already listening is a benign restart and is ignored.
func (in *Input) Start() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.starting || in.started {
		in.logger.Debug("recognition already active, restart ignored")
		return
	}
	in.starting = true
	in.timer = time.AfterFunc(in.settle, in.startEngine)
}

func (in *Input) startEngine() {
	in.mu.Lock()
	if !in.starting {
		// Stopped during the settle delay.
		in.mu.Unlock()
		return
	}
	in.starting = false
	in.started = true
	handlers := in.handlers
	in.mu.Unlock()

	if err := in.engine.Start(); err != nil {
		in.logger.Error("failed to start recognition engine", "error", err)
		in.mu.Lock()
		in.started = false
		in.mu.Unlock()
		if handlers.OnEnded != nil {
			handlers.OnEnded()
		}
		return
	}

	// Stop may have run between releasing the mutex and the engine start; the
	// engine is active now but the adapter is stopped, so stop the engine too.
	in.mu.Lock()
	stopped := !in.started
	in.mu.Unlock()
	if stopped {
		if err := in.engine.Stop(); err != nil {
			in.logger.Warn("failed to stop recognition engine", "error", err)
		}
	}
}

// Stop halts recognition. Safe to call when not started.
func (in *Input) Stop() {
	in.mu.Lock()
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
	wasStarted := in.started
	in.starting = false
	in.started = false
	in.mu.Unlock()

	if !wasStarted {
		return
	}
	if err := in.engine.Stop(); err != nil {
		in.logger.Warn("failed to stop recognition engine", "error", err)
	}
}

func (in *Input) handleTranscript(text string, final bool) {
	if !final {
		return
	}
	in.mu.Lock()
	started := in.started
	handlers := in.handlers
	in.mu.Unlock()
	if !started {
		// Engines can flush a transcript after Stop; it belongs to nothing.
		return
	}
	if handlers.OnFinalTranscript != nil {
		handlers.OnFinalTranscript(text)
	}
}

func (in *Input) handleError(kind FaultKind) {
	in.mu.Lock()
	if kind.Fatal() {
		in.starting = false
		in.started = false
	}
	handlers := in.handlers
	in.mu.Unlock()

	if kind.Fatal() {
		in.logger.Error("fatal recognition error", "kind", kind)
		if handlers.OnFatalError != nil {
			handlers.OnFatalError(kind)
		}
		return
	}
	in.logger.Warn("recoverable recognition error", "kind", kind)
	if handlers.OnEnded != nil {
		handlers.OnEnded()
	}
}

func (in *Input) handleEnded() {
	in.mu.Lock()
	in.started = false
	handlers := in.handlers
	in.mu.Unlock()
	if handlers.OnEnded != nil {
		handlers.OnEnded()
	}
}
