package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"

	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
	"github.com/iamvkosarev/ai-tutor-bot/internal/speech"
	"github.com/iamvkosarev/ai-tutor-bot/internal/usecase"
	"github.com/iamvkosarev/ai-tutor-bot/pkg/local"
)

const audioChunkSize = 32 * 1024

// Client to server message types.
const (
	msgSubmit           = "submit"
	msgVoiceStart       = "voice_start"
	msgVoiceStop        = "voice_stop"
	msgTranscript       = "transcript"
	msgRecognitionError = "recognition_error"
	msgRecognitionEnded = "recognition_ended"
	msgPlaybackDone     = "playback_done"
	msgPlaybackError    = "playback_error"
)

// Server to client message types. Synthesized audio travels as binary
// frames between an audio_start and an audio_end text frame.
const (
	msgState      = "state"
	msgStreak     = "streak"
	msgAudioStart = "audio_start"
	msgAudioEnd   = "audio_end"
	msgAudioStop  = "audio_stop"
	msgSpeakLocal = "speak_local"
	msgError      = "error"
)

type clientMessage struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Error      string `json:"error,omitempty"`
	PlaybackID string `json:"playback_id,omitempty"`
}

type serverMessage struct {
	Type         string                   `json:"type"`
	Text         string                   `json:"text,omitempty"`
	Error        string                   `json:"error,omitempty"`
	PlaybackID   string                   `json:"playback_id,omitempty"`
	State        *model.ConversationState `json:"state,omitempty"`
	Streak       *model.Streak            `json:"streak,omitempty"`
	Achievements []model.Achievement      `json:"achievements,omitempty"`
	Message      string                   `json:"message,omitempty"`
}

// StreakFeed streams streak updates for one user until ctx is done.
type StreakFeed interface {
	SubscribeStreak(ctx context.Context, userID uuid.UUID) <-chan model.Streak
}

// Session serves one connected client: it pumps conversation snapshots and
// streak updates out, folds client events into the recognition engine and
// the conversation, and plays synthesized audio back over the same socket.
// It is the Player and FallbackSpeaker for its conversation's speech output.
type Session struct {
	conn         *websocket.Conn
	user         model.User
	engine       *speech.ClientEngine
	conversation *usecase.ConversationUsecase
	streaks      StreakFeed
	logger       *slog.Logger

	writeMu sync.Mutex

	playbackMu sync.Mutex
	playback   *playbackWait
}

// playbackWait tracks one in-flight playback awaiting its client ack. Each
// playback carries its own id so a late ack for a cancelled or superseded
// playback cannot complete the next one.
type playbackWait struct {
	id string
	ch chan error
}

func NewSession(
	conn *websocket.Conn,
	user model.User,
	engine *speech.ClientEngine,
	streaks StreakFeed,
	logger *slog.Logger,
) *Session {
	return &Session{
		conn:    conn,
		user:    user,
		engine:  engine,
		streaks: streaks,
		logger:  logger,
	}
}

// BindConversation attaches the conversation after construction: the
// conversation's speech output needs the session as its player, so the two
// are built in each other's presence.
func (s *Session) BindConversation(conversation *usecase.ConversationUsecase) {
	s.conversation = conversation
}

// Run serves the connection until the client disconnects or ctx is done.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.writeJSON(serverMessage{Type: msgState, State: snapshotPtr(s.conversation.Snapshot())}); err != nil {
		s.logger.Warn("failed to send initial state", "error", err)
		return
	}

	var wg conc.WaitGroup
	wg.Go(
		func() {
			defer cancel()
			s.readLoop(ctx)
		},
	)
	wg.Go(
		func() {
			s.pumpStates(ctx)
		},
	)
	wg.Go(
		func() {
			s.pumpStreaks(ctx)
		},
	)
	wg.Wait()

	// A disconnect mid voice chat must not leave synthesis or recognition
	// running against a dead socket.
	s.conversation.StopVoiceChat()
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("connection closed unexpectedly", "error", err)
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			// Transcription can take the full request timeout; keep the read
			// loop free so voice_stop and playback acks are handled right away.
			go s.engine.PushAudio(ctx, "segment.webm", bytes.NewReader(data))
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("failed to decode client message", "error", err)
			continue
		}
		s.handleMessage(msg)
	}
}

func (s *Session) handleMessage(msg clientMessage) {
	switch msg.Type {
	case msgSubmit:
		if err := s.conversation.Submit(msg.Text, usecase.OriginTyped); err != nil {
			s.sendError(err)
		}
	case msgVoiceStart:
		s.conversation.StartVoiceChat()
	case msgVoiceStop:
		s.conversation.StopVoiceChat()
	case msgTranscript:
		s.engine.PushTranscript(msg.Text)
	case msgRecognitionError:
		s.engine.PushFault(speech.FaultKind(msg.Kind))
	case msgRecognitionEnded:
		s.engine.PushEnded()
	case msgPlaybackDone:
		s.signalPlayback(msg.PlaybackID, nil)
	case msgPlaybackError:
		s.signalPlayback(msg.PlaybackID, fmt.Errorf("client playback failed: %s", msg.Error))
	default:
		s.logger.Warn("unknown client message", "type", msg.Type)
	}
}

func (s *Session) pumpStates(ctx context.Context) {
	states := s.conversation.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-states:
			if err := s.writeJSON(serverMessage{Type: msgState, State: &state}); err != nil {
				return
			}
		}
	}
}

func (s *Session) pumpStreaks(ctx context.Context) {
	updates := s.streaks.SubscribeStreak(ctx, s.user.UserID)
	for streak := range updates {
		msg := serverMessage{
			Type:         msgStreak,
			Streak:       &streak,
			Achievements: usecase.EvaluateAchievements(streak, time.Now()),
			Message:      usecase.StreakMessage(streak.CurrentStreak, local.Eng),
		}
		if err := s.writeJSON(msg); err != nil {
			return
		}
	}
}

// Play streams synthesized audio to the client in binary frames and waits
// for the client to finish playing it.
func (s *Session) Play(ctx context.Context, audio io.Reader) error {
	w := s.beginPlayback()
	defer s.endPlayback(w)

	if err := s.writeJSON(serverMessage{Type: msgAudioStart, PlaybackID: w.id}); err != nil {
		return err
	}

	buf := make([]byte, audioChunkSize)
	for {
		if ctx.Err() != nil {
			s.stopClientPlayback(w.id)
			return ctx.Err()
		}
		n, err := audio.Read(buf)
		if n > 0 {
			if wErr := s.writeBinary(buf[:n]); wErr != nil {
				return wErr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read audio stream: %w", err)
		}
	}

	if err := s.writeJSON(serverMessage{Type: msgAudioEnd, PlaybackID: w.id}); err != nil {
		return err
	}
	return s.waitPlayback(ctx, w)
}

// SpeakLocal asks the client to use its local synthesis voice and waits for
// it to finish, so resuming recognition never overlaps the spoken reply.
func (s *Session) SpeakLocal(ctx context.Context, text string) error {
	w := s.beginPlayback()
	defer s.endPlayback(w)

	if err := s.writeJSON(serverMessage{Type: msgSpeakLocal, Text: text, PlaybackID: w.id}); err != nil {
		return err
	}
	return s.waitPlayback(ctx, w)
}

func (s *Session) waitPlayback(ctx context.Context, w *playbackWait) error {
	select {
	case <-ctx.Done():
		s.stopClientPlayback(w.id)
		return ctx.Err()
	case err := <-w.ch:
		return err
	}
}

func (s *Session) beginPlayback() *playbackWait {
	w := &playbackWait{
		id: uuid.NewString(),
		ch: make(chan error, 1),
	}
	s.playbackMu.Lock()
	s.playback = w
	s.playbackMu.Unlock()
	return w
}

func (s *Session) endPlayback(w *playbackWait) {
	s.playbackMu.Lock()
	if s.playback == w {
		s.playback = nil
	}
	s.playbackMu.Unlock()
}

func (s *Session) stopClientPlayback(id string) {
	if err := s.writeJSON(serverMessage{Type: msgAudioStop, PlaybackID: id}); err != nil {
		s.logger.Warn("failed to send playback stop", "error", err)
	}
}

// signalPlayback resolves a client ack against the playback it belongs to.
// Acks for a playback that is no longer waiting are dropped; an ack carrying
// no id matches whatever is currently waiting.
func (s *Session) signalPlayback(id string, err error) {
	s.playbackMu.Lock()
	defer s.playbackMu.Unlock()
	if s.playback == nil {
		return
	}
	if id != "" && id != s.playback.id {
		return
	}
	select {
	case s.playback.ch <- err:
	default:
	}
}

func (s *Session) sendError(err error) {
	if wErr := s.writeJSON(serverMessage{Type: msgError, Error: err.Error()}); wErr != nil {
		s.logger.Warn("failed to send error message", "error", wErr)
	}
}

func (s *Session) writeJSON(msg serverMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *Session) writeBinary(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

func snapshotPtr(state model.ConversationState) *model.ConversationState {
	return &state
}
