package speech

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Synthesizer turns text into a playable audio stream. The caller owns the
// returned stream and must close it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// Player plays an audio stream to completion, honoring ctx cancellation.
type Player interface {
	Play(ctx context.Context, audio io.Reader) error
}

// FallbackSpeaker is the local synthesis path used when the primary remote
// path fails, so the conversation is never silently muted.
type FallbackSpeaker interface {
	SpeakLocal(ctx context.Context, text string) error
}

// Output converts text to audio and plays it. Exactly one done callback fires
// per Speak call, and audio handles are released on every exit path.
type Output struct {
	synth    Synthesizer
	player   Player
	fallback FallbackSpeaker
	logger   *slog.Logger

	mu      sync.Mutex
	current *speakHandle
}

type speakHandle struct {
	cancel context.CancelFunc
}

func NewOutput(synth Synthesizer, player Player, fallback FallbackSpeaker, logger *slog.Logger) *Output {
	return &Output{
		synth:    synth,
		player:   player,
		fallback: fallback,
		logger:   logger,
	}
}

// Speak runs asynchronously and reports the outcome through done.
func (o *Output) Speak(ctx context.Context, text string, done func(error)) {
	ctx, cancel := context.WithCancel(ctx)
	handle := &speakHandle{cancel: cancel}

	o.mu.Lock()
	if o.current != nil {
		o.current.cancel()
	}
	o.current = handle
	o.mu.Unlock()

	go func() {
		defer o.release(handle)
		done(o.speak(ctx, text))
	}()
}

// Cancel aborts any in-progress synthesis or playback. Idempotent.
func (o *Output) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		o.current.cancel()
		o.current = nil
	}
}

func (o *Output) speak(ctx context.Context, text string) error {
	err := o.speakPrimary(ctx, text)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		// Cancelled, not failed: stay quiet.
		return ctx.Err()
	}

	o.logger.Warn("primary speech path failed, using local fallback", "error", err)
	if fbErr := o.fallback.SpeakLocal(ctx, text); fbErr != nil {
		return fbErr
	}
	return nil
}

func (o *Output) speakPrimary(ctx context.Context, text string) error {
	audio, err := o.synth.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	defer audio.Close()
	return o.player.Play(ctx, audio)
}

func (o *Output) release(handle *speakHandle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	handle.cancel()
	// A newer Speak may have replaced the handle already.
	if o.current == handle {
		o.current = nil
	}
}
