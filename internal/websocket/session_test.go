package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
	"github.com/iamvkosarev/ai-tutor-bot/internal/speech"
	"github.com/iamvkosarev/ai-tutor-bot/internal/usecase"
)

const testSecret = "test-secret"

type stubUsers struct {
	user    model.User
	persona model.Persona
}

func (s *stubUsers) GetUserForEmail(context.Context, string) (model.User, model.Persona, error) {
	return s.user, s.persona, nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, string, io.Reader) (string, error) {
	return "transcribed question", nil
}

// blockingTranscriber holds one transcription open until released, and
// reports when it is entered.
type blockingTranscriber struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTranscriber) Transcribe(ctx context.Context, _ string, _ io.Reader) (string, error) {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return "", ctx.Err()
}

type stubStreakFeed struct {
	updates chan model.Streak
}

func (s *stubStreakFeed) SubscribeStreak(ctx context.Context, _ uuid.UUID) <-chan model.Streak {
	out := make(chan model.Streak)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case streak, ok := <-s.updates:
				if !ok {
					return
				}
				select {
				case out <- streak:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

type stubText struct{}

func (stubText) Complete(context.Context, string, []model.Message, string) (string, error) {
	return "a fine answer", nil
}

type stubImage struct{}

func (stubImage) Generate(context.Context, string) (string, error) { return "", nil }

type stubActivity struct{}

func (stubActivity) RecordActivity(context.Context, uuid.UUID, string) error { return nil }

type stubSynth struct{}

func (stubSynth) Synthesize(_ context.Context, text string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(text)), nil
}

func newTestHub(t *testing.T, streaks StreakFeed) *Hub {
	return newTestHubWithTranscriber(t, streaks, stubTranscriber{})
}

func newTestHubWithTranscriber(t *testing.T, streaks StreakFeed, transcriber speech.Transcriber) *Hub {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	user := model.User{UserID: uuid.New(), Email: "dorian@example.com", PersonaID: "dorian"}

	factory := func(
		user model.User,
		persona model.Persona,
		engine *speech.ClientEngine,
		player speech.Player,
		fallback speech.FallbackSpeaker,
	) (*usecase.ConversationUsecase, error) {
		input, err := speech.NewInput(engine, time.Millisecond, logger)
		if err != nil {
			return nil, err
		}
		return usecase.NewConversationUsecase(
			usecase.ConversationUsecaseDeps{
				Text:     stubText{},
				Image:    stubImage{},
				Input:    input,
				Output:   speech.NewOutput(stubSynth{}, player, fallback, logger),
				Activity: stubActivity{},
				Logger:   logger,
			},
			user,
			persona,
			time.Millisecond,
		), nil
	}

	return NewHub(
		HubDeps{
			Users:         &stubUsers{user: user, persona: model.Personas["dorian"]},
			Transcriber:   transcriber,
			Streaks:       streaks,
			Conversations: factory,
			Logger:        logger,
		},
		testSecret,
	)
}

func signToken(t *testing.T, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(
		jwt.SigningMethodHS256, jwt.MapClaims{
			"email": email,
			"exp":   time.Now().Add(time.Hour).Unix(),
		},
	)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readServerMessage skips binary audio frames and returns the next text frame.
func readServerMessage(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if msgType != websocket.TextMessage {
			continue
		}
		var msg serverMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}
}

func readServerMessageOfType(t *testing.T, conn *websocket.Conn, msgType string) serverMessage {
	t.Helper()
	for {
		msg := readServerMessage(t, conn)
		if msg.Type == msgType {
			return msg
		}
	}
}

func waitForState(t *testing.T, conn *websocket.Conn, ok func(model.ConversationState) bool) model.ConversationState {
	t.Helper()
	for {
		msg := readServerMessage(t, conn)
		if msg.Type != msgState {
			continue
		}
		require.NotNil(t, msg.State)
		if ok(*msg.State) {
			return *msg.State
		}
	}
}

func TestHub_RejectsBadToken(t *testing.T) {
	hub := newTestHub(t, &stubStreakFeed{updates: make(chan model.Streak)})
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSession_TypedSubmitPushesStates(t *testing.T) {
	hub := newTestHub(t, &stubStreakFeed{updates: make(chan model.Streak)})
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, srv, signToken(t, "dorian@example.com"))

	initial := readServerMessage(t, conn)
	assert.Equal(t, msgState, initial.Type)
	assert.Empty(t, initial.State.Messages)

	require.NoError(
		t, conn.WriteJSON(clientMessage{Type: msgSubmit, Text: "why is the sky blue?"}),
	)

	state := waitForState(
		t, conn, func(s model.ConversationState) bool {
			return len(s.Messages) == 2 && s.Pending == model.PendingNone
		},
	)
	assert.Equal(t, "a fine answer", state.Messages[1].Content)
}

func TestSession_EmptySubmitReturnsError(t *testing.T) {
	hub := newTestHub(t, &stubStreakFeed{updates: make(chan model.Streak)})
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, srv, signToken(t, "dorian@example.com"))
	readServerMessage(t, conn)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: msgSubmit, Text: "   "}))

	for {
		msg := readServerMessage(t, conn)
		if msg.Type == msgError {
			assert.Contains(t, msg.Error, "empty")
			return
		}
	}
}

func TestSession_VoiceCycleOverTheWire(t *testing.T) {
	hub := newTestHub(t, &stubStreakFeed{updates: make(chan model.Streak)})
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, srv, signToken(t, "dorian@example.com"))
	readServerMessage(t, conn)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: msgVoiceStart}))
	waitForState(
		t, conn, func(s model.ConversationState) bool {
			return s.Mode == model.ModeVoiceActive && s.Listening
		},
	)

	// Give the settle delay time to actually start the engine; transcripts
	// arriving before that are dropped.
	time.Sleep(50 * time.Millisecond)
	require.NoError(
		t, conn.WriteJSON(clientMessage{Type: msgTranscript, Text: "tell me about the moon"}),
	)

	// The reply resolves and synthesis starts streaming towards us.
	audioEnd := readServerMessageOfType(t, conn, msgAudioEnd)
	require.NotEmpty(t, audioEnd.PlaybackID)

	require.NoError(
		t, conn.WriteJSON(clientMessage{Type: msgPlaybackDone, PlaybackID: audioEnd.PlaybackID}),
	)

	// Playback acknowledged: recognition restarts hands-free.
	waitForState(
		t, conn, func(s model.ConversationState) bool {
			return s.Listening && !s.Speaking && len(s.Messages) == 2
		},
	)
}

func TestSession_StalePlaybackAckIgnored(t *testing.T) {
	hub := newTestHub(t, &stubStreakFeed{updates: make(chan model.Streak)})
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, srv, signToken(t, "dorian@example.com"))
	readServerMessage(t, conn)

	// Turn one: stop voice chat mid-playback, which cancels the playback
	// without the client ever acknowledging it.
	require.NoError(t, conn.WriteJSON(clientMessage{Type: msgVoiceStart}))
	waitForState(
		t, conn, func(s model.ConversationState) bool {
			return s.Mode == model.ModeVoiceActive && s.Listening
		},
	)
	time.Sleep(50 * time.Millisecond)
	require.NoError(
		t, conn.WriteJSON(clientMessage{Type: msgTranscript, Text: "first question"}),
	)
	firstEnd := readServerMessageOfType(t, conn, msgAudioEnd)
	require.NotEmpty(t, firstEnd.PlaybackID)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: msgVoiceStop}))

	// The idle state and the playback stop arrive in either order.
	var stopID string
	sawIdle := false
	for stopID == "" || !sawIdle {
		msg := readServerMessage(t, conn)
		switch {
		case msg.Type == msgAudioStop:
			stopID = msg.PlaybackID
		case msg.Type == msgState && msg.State.Mode == model.ModeIdle:
			sawIdle = true
		}
	}
	assert.Equal(t, firstEnd.PlaybackID, stopID)

	// A late ack for the cancelled playback goes nowhere.
	require.NoError(
		t, conn.WriteJSON(clientMessage{Type: msgPlaybackDone, PlaybackID: firstEnd.PlaybackID}),
	)

	// Turn two: while its playback is still waiting, the stale ack must not
	// complete it and restart recognition early.
	require.NoError(t, conn.WriteJSON(clientMessage{Type: msgVoiceStart}))
	waitForState(
		t, conn, func(s model.ConversationState) bool {
			return s.Mode == model.ModeVoiceActive && s.Listening
		},
	)
	time.Sleep(50 * time.Millisecond)
	require.NoError(
		t, conn.WriteJSON(clientMessage{Type: msgTranscript, Text: "second question"}),
	)
	secondEnd := readServerMessageOfType(t, conn, msgAudioEnd)
	require.NotEmpty(t, secondEnd.PlaybackID)
	assert.NotEqual(t, firstEnd.PlaybackID, secondEnd.PlaybackID)

	require.NoError(
		t, conn.WriteJSON(clientMessage{Type: msgPlaybackDone, PlaybackID: firstEnd.PlaybackID}),
	)
	time.Sleep(100 * time.Millisecond)

	// If the stale ack had been accepted, recognition would be live again and
	// this transcript would land as a new turn.
	require.NoError(
		t, conn.WriteJSON(clientMessage{Type: msgTranscript, Text: "third question"}),
	)

	require.NoError(
		t, conn.WriteJSON(clientMessage{Type: msgPlaybackDone, PlaybackID: secondEnd.PlaybackID}),
	)
	waitForState(
		t, conn, func(s model.ConversationState) bool {
			return s.Listening && !s.Speaking && len(s.Messages) == 4
		},
	)

	time.Sleep(50 * time.Millisecond)
	require.NoError(
		t, conn.WriteJSON(clientMessage{Type: msgTranscript, Text: "fourth question"}),
	)
	state := waitForState(
		t, conn, func(s model.ConversationState) bool {
			return len(s.Messages) == 6
		},
	)
	assert.Equal(t, "fourth question", state.Messages[4].Content)
}

func TestSession_VoiceStopLandsWhileTranscriptionInFlight(t *testing.T) {
	transcriber := &blockingTranscriber{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	t.Cleanup(func() { close(transcriber.release) })

	hub := newTestHubWithTranscriber(
		t, &stubStreakFeed{updates: make(chan model.Streak)}, transcriber,
	)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, srv, signToken(t, "dorian@example.com"))
	readServerMessage(t, conn)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: msgVoiceStart}))
	waitForState(
		t, conn, func(s model.ConversationState) bool {
			return s.Mode == model.ModeVoiceActive && s.Listening
		},
	)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("audio-bytes")))
	select {
	case <-transcriber.started:
	case <-time.After(2 * time.Second):
		t.Fatal("transcription never started")
	}

	// The transcription is still hanging; stopping voice chat must not have
	// to wait for it.
	require.NoError(t, conn.WriteJSON(clientMessage{Type: msgVoiceStop}))
	waitForState(
		t, conn, func(s model.ConversationState) bool {
			return s.Mode == model.ModeIdle
		},
	)
}

func TestSession_StreakUpdatesAreForwarded(t *testing.T) {
	feed := &stubStreakFeed{updates: make(chan model.Streak, 1)}
	hub := newTestHub(t, feed)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, srv, signToken(t, "dorian@example.com"))
	readServerMessage(t, conn)

	feed.updates <- model.Streak{CurrentStreak: 7, LongestStreak: 7}

	for {
		msg := readServerMessage(t, conn)
		if msg.Type != msgStreak {
			continue
		}
		require.NotNil(t, msg.Streak)
		assert.Equal(t, 7, msg.Streak.CurrentStreak)
		assert.NotEmpty(t, msg.Message)

		unlockedIDs := make([]string, 0, 2)
		for _, a := range msg.Achievements {
			if a.Unlocked {
				unlockedIDs = append(unlockedIDs, a.ID)
			}
		}
		assert.Equal(t, []string{"3-day", "7-day"}, unlockedIDs)
		return
	}
}
