package speech

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, _ io.Reader) (string, error) {
	return f.text, f.err
}

type engineEvents struct {
	mu          sync.Mutex
	transcripts []string
	faults      []FaultKind
	ended       int
}

func (e *engineEvents) handlers() EngineHandlers {
	return EngineHandlers{
		OnTranscript: func(text string, final bool) {
			e.mu.Lock()
			defer e.mu.Unlock()
			if final {
				e.transcripts = append(e.transcripts, text)
			}
		},
		OnError: func(kind FaultKind) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.faults = append(e.faults, kind)
		},
		OnEnded: func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.ended++
		},
	}
}

func TestClientEngine_PushTranscript(t *testing.T) {
	engine := NewClientEngine(&fakeTranscriber{}, discardLogger())
	events := &engineEvents{}
	engine.Bind(events.handlers())

	// Dropped while stopped.
	engine.PushTranscript("too early")

	require.NoError(t, engine.Start())
	engine.PushTranscript("  ")
	engine.PushTranscript("why is the sky blue")

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []string{"why is the sky blue"}, events.transcripts)
}

func TestClientEngine_PushAudio(t *testing.T) {
	transcriber := &fakeTranscriber{text: "tell me about volcanoes"}
	engine := NewClientEngine(transcriber, discardLogger())
	events := &engineEvents{}
	engine.Bind(events.handlers())

	require.NoError(t, engine.Start())
	engine.PushAudio(context.Background(), "segment.webm", strings.NewReader("audio-bytes"))

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []string{"tell me about volcanoes"}, events.transcripts)
}

func TestClientEngine_TranscriptionFailureIsTransient(t *testing.T) {
	transcriber := &fakeTranscriber{err: errors.New("whisper unreachable")}
	engine := NewClientEngine(transcriber, discardLogger())
	events := &engineEvents{}
	engine.Bind(events.handlers())

	require.NoError(t, engine.Start())
	engine.PushAudio(context.Background(), "segment.webm", strings.NewReader("audio-bytes"))

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []FaultKind{FaultTransient}, events.faults)
	assert.Empty(t, events.transcripts)
}

// stoppingTranscriber stops the engine while a segment is in flight.
type stoppingTranscriber struct {
	engine *ClientEngine
}

func (s *stoppingTranscriber) Transcribe(_ context.Context, _ string, _ io.Reader) (string, error) {
	_ = s.engine.Stop()
	return "finished after stop", nil
}

func TestClientEngine_StopDuringTranscriptionDropsResult(t *testing.T) {
	transcriber := &stoppingTranscriber{}
	engine := NewClientEngine(transcriber, discardLogger())
	transcriber.engine = engine
	events := &engineEvents{}
	engine.Bind(events.handlers())

	require.NoError(t, engine.Start())
	engine.PushAudio(context.Background(), "segment.webm", strings.NewReader("audio-bytes"))

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, 1, events.ended)
	assert.Empty(t, events.transcripts)
}

func TestClientEngine_StopEndsAndDropsEvents(t *testing.T) {
	engine := NewClientEngine(&fakeTranscriber{text: "late"}, discardLogger())
	events := &engineEvents{}
	engine.Bind(events.handlers())

	require.NoError(t, engine.Start())
	require.NoError(t, engine.Stop())

	engine.PushTranscript("after stop")
	engine.PushAudio(context.Background(), "segment.webm", strings.NewReader("audio-bytes"))

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, 1, events.ended)
	assert.Empty(t, events.transcripts)
}

func TestClientEngine_FatalFaultDeactivates(t *testing.T) {
	engine := NewClientEngine(&fakeTranscriber{}, discardLogger())
	events := &engineEvents{}
	engine.Bind(events.handlers())

	require.NoError(t, engine.Start())
	engine.PushFault(FaultPermissionDenied)
	engine.PushTranscript("should be dropped")

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []FaultKind{FaultPermissionDenied}, events.faults)
	assert.Empty(t, events.transcripts)
}
