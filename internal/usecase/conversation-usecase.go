package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
	"github.com/iamvkosarev/ai-tutor-bot/internal/speech"
	"github.com/iamvkosarev/ai-tutor-bot/pkg/local"
)

type Origin string

const (
	OriginTyped = Origin("typed")
	OriginVoice = Origin("voice")
)

var (
	ErrEmptyUtterance    = errors.New("utterance is empty")
	ErrSubmissionPending = errors.New("another submission is already pending")
)

var (
	textImageConfirmation = local.NewSet("Here's an image I created for you! Let me know if you'd like to learn more about this topic.")
	textApology           = local.NewSet("I apologize, but I encountered an error. Please try again.")
)

const activityChatMessage = "chat_message"

// TextCompleter is the text completion boundary (see OpenAIUsecase).
type TextCompleter interface {
	Complete(ctx context.Context, systemPrompt string, history []model.Message, utterance string) (string, error)
}

// ImageGenerator is the image generation boundary (see ImageUsecase).
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ActivityRecorder receives the "activity" signal for the streak subsystem.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, userID uuid.UUID, action string) error
}

type SpeechInput interface {
	Bind(handlers speech.InputHandlers)
	Start()
	Stop()
}

type SpeechOutput interface {
	Speak(ctx context.Context, text string, done func(error))
	Cancel()
}

type ConversationUsecaseDeps struct {
	Text     TextCompleter
	Image    ImageGenerator
	Input    SpeechInput
	Output   SpeechOutput
	Activity ActivityRecorder
	Logger   *slog.Logger
}

// ConversationUsecase reconciles recognition, completion, image generation
// and synthesis into one conversational loop. It owns the message log and all
// UI-visible state; adapters only emit events which it folds into state, and
// every transition re-validates the expected state first because the external
// callbacks complete independently.
type ConversationUsecase struct {
	ConversationUsecaseDeps
	user       model.User
	persona    model.Persona
	speakDelay time.Duration
	lang       local.Language
	now        func() time.Time
	newID      func() uuid.UUID

	mu          sync.Mutex
	messages    []model.Message
	mode        model.Mode
	pending     model.PendingKind
	listening   bool
	speaking    bool
	subscribers []chan model.ConversationState
}

func NewConversationUsecase(
	deps ConversationUsecaseDeps,
	user model.User,
	persona model.Persona,
	speakDelay time.Duration,
) *ConversationUsecase {
	c := &ConversationUsecase{
		ConversationUsecaseDeps: deps,
		user:                    user,
		persona:                 persona,
		speakDelay:              speakDelay,
		lang:                    local.Eng,
		now:                     time.Now,
		newID:                   uuid.New,
		mode:                    model.ModeIdle,
		pending:                 model.PendingNone,
	}
	deps.Input.Bind(
		speech.InputHandlers{
			OnFinalTranscript: c.handleFinalTranscript,
			OnFatalError:      c.handleFatalRecognitionError,
			OnEnded:           c.handleRecognitionEnded,
		},
	)
	return c
}

// Snapshot returns a copy of the current conversation state.
func (c *ConversationUsecase) Snapshot() model.ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel receiving state snapshots after every
// transition. Slow subscribers miss intermediate snapshots rather than
// blocking the conversation.
func (c *ConversationUsecase) Subscribe() <-chan model.ConversationState {
	ch := make(chan model.ConversationState, 8)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// Submit dispatches one user utterance. While another submission is pending
// the call is rejected, not queued: the log stays untouched.
func (c *ConversationUsecase) Submit(utterance string, origin Origin) error {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return ErrEmptyUtterance
	}

	c.mu.Lock()
	if c.pending != model.PendingNone {
		c.mu.Unlock()
		c.Logger.Info("submission rejected, another message pending", "origin", origin)
		return ErrSubmissionPending
	}

	// Context for the completion call: everything resolved so far, oldest
	// first. The new utterance travels separately.
	history := make([]model.Message, 0, len(c.messages))
	for _, msg := range c.messages {
		if !msg.IsPending {
			history = append(history, msg)
		}
	}

	now := c.now()
	userMsg := model.Message{
		ID:        c.newID(),
		Role:      model.RoleUser,
		Content:   utterance,
		CreatedAt: now,
	}
	// The placeholder id is fixed here and reused by the real response:
	// replace-in-place, not append.
	placeholder := model.Message{
		ID:        c.newID(),
		Role:      model.RoleAssistant,
		CreatedAt: now,
		IsPending: true,
	}
	c.messages = append(c.messages, userMsg, placeholder)

	intent := ClassifyIntent(utterance)
	if intent == IntentImage {
		c.pending = model.PendingImage
	} else {
		c.pending = model.PendingText
	}
	if origin == OriginVoice {
		c.mode = model.ModeVoiceActive
	}
	c.mu.Unlock()
	c.notify()

	c.Logger.Info("submission accepted", "origin", origin, "intent", intent)
	go c.resolve(utterance, origin, placeholder.ID, history, intent)
	return nil
}

func (c *ConversationUsecase) resolve(
	utterance string,
	origin Origin,
	placeholderID uuid.UUID,
	history []model.Message,
	intent Intent,
) {
	ctx := context.Background()

	var content, imageURL string
	if intent == IntentImage {
		url, err := c.Image.Generate(ctx, utterance)
		if err != nil {
			// The user always gets some reply: degrade to a text answer.
			c.Logger.Warn("image generation failed, falling back to text", "error", err)
			content = c.completeText(ctx, history, utterance)
		} else {
			imageURL = url
			content = textImageConfirmation.Text(c.lang)
		}
	} else {
		content = c.completeText(ctx, history, utterance)
	}

	c.finish(origin, placeholderID, content, imageURL)
}

func (c *ConversationUsecase) completeText(ctx context.Context, history []model.Message, utterance string) string {
	reply, err := c.Text.Complete(ctx, c.persona.SystemPrompt, history, utterance)
	if err != nil {
		c.Logger.Error("text completion failed", "error", err)
		return textApology.Text(c.lang)
	}
	return reply
}

// finish replaces the placeholder in place and, in voice mode, hands the
// reply to synthesis after a short delay so the UI paints the message first.
func (c *ConversationUsecase) finish(origin Origin, placeholderID uuid.UUID, content, imageURL string) {
	c.mu.Lock()
	replaced := false
	for i := range c.messages {
		if c.messages[i].ID == placeholderID {
			c.messages[i].Content = content
			c.messages[i].ImageURL = imageURL
			c.messages[i].IsPending = false
			replaced = true
			break
		}
	}
	c.pending = model.PendingNone
	stillVoice := c.mode == model.ModeVoiceActive
	c.mu.Unlock()
	c.notify()

	if !replaced {
		c.Logger.Error("placeholder message disappeared", "message_id", placeholderID)
		return
	}

	if err := c.Activity.RecordActivity(context.Background(), c.user.UserID, activityChatMessage); err != nil {
		c.Logger.Warn("failed to record activity", "error", err)
	}

	if origin == OriginVoice && stillVoice {
		time.AfterFunc(
			c.speakDelay, func() {
				c.speakMessage(placeholderID, content)
			},
		)
	}
}

func (c *ConversationUsecase) speakMessage(id uuid.UUID, content string) {
	c.mu.Lock()
	// Voice mode may have been stopped while the reply was in flight; a late
	// result must not resume voice behavior.
	if c.mode != model.ModeVoiceActive {
		c.mu.Unlock()
		return
	}
	c.listening = false
	c.speaking = true
	c.setMessageSpeakingLocked(id, true)
	c.mu.Unlock()
	c.notify()

	c.Output.Speak(
		context.Background(), content, func(err error) {
			c.handleSpeechDone(id, err)
		},
	)
}

func (c *ConversationUsecase) handleSpeechDone(id uuid.UUID, err error) {
	if err != nil {
		c.Logger.Warn("speech playback did not complete", "error", err)
	}

	c.mu.Lock()
	c.speaking = false
	c.setMessageSpeakingLocked(id, false)
	resume := c.mode == model.ModeVoiceActive && err == nil
	if resume {
		c.listening = true
	}
	c.mu.Unlock()
	c.notify()

	// Closing the loop: synthesis finished, recognition restarts so the
	// session keeps going hands-free.
	if resume {
		c.Input.Start()
	}
}

// StartVoiceChat enters voice mode and starts recognition.
func (c *ConversationUsecase) StartVoiceChat() {
	c.mu.Lock()
	if c.mode == model.ModeVoiceActive {
		c.mu.Unlock()
		return
	}
	c.mode = model.ModeVoiceActive
	c.listening = true
	c.mu.Unlock()
	c.notify()

	c.Logger.Info("voice chat started")
	c.Input.Start()
}

// StopVoiceChat exits voice mode from any state: stops recognition, cancels
// synthesis and clears the voice flags. Idempotent and safe mid-request; the
// result of an in-flight request will resolve into the log but will not
// speak or relisten.
func (c *ConversationUsecase) StopVoiceChat() {
	c.mu.Lock()
	c.mode = model.ModeIdle
	c.listening = false
	c.speaking = false
	for i := range c.messages {
		c.messages[i].IsSpeaking = false
	}
	c.mu.Unlock()
	c.notify()

	c.Logger.Info("voice chat stopped")
	c.Input.Stop()
	c.Output.Cancel()
}

func (c *ConversationUsecase) handleFinalTranscript(text string) {
	c.mu.Lock()
	c.listening = false
	c.mu.Unlock()
	c.notify()

	// Recognition is stopped before the reply is synthesized. The engine may
	// close asynchronously; the brief overlap is tolerated.
	c.Input.Stop()

	if err := c.Submit(text, OriginVoice); err != nil {
		c.Logger.Info("voice transcript dropped", "error", err)
	}
}

func (c *ConversationUsecase) handleFatalRecognitionError(kind speech.FaultKind) {
	c.Logger.Error("recognition failed, leaving voice mode", "kind", kind)
	c.StopVoiceChat()
}

// handleRecognitionEnded covers recoverable recognizer shutdowns: only the
// listening indicator clears, the session itself continues.
func (c *ConversationUsecase) handleRecognitionEnded() {
	c.mu.Lock()
	c.listening = false
	c.mu.Unlock()
	c.notify()
}

func (c *ConversationUsecase) setMessageSpeakingLocked(id uuid.UUID, speaking bool) {
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].IsSpeaking = speaking
			return
		}
	}
}

func (c *ConversationUsecase) snapshotLocked() model.ConversationState {
	messages := make([]model.Message, len(c.messages))
	copy(messages, c.messages)
	return model.ConversationState{
		Messages:  messages,
		Mode:      c.mode,
		Pending:   c.pending,
		Listening: c.listening,
		Speaking:  c.speaking,
	}
}

func (c *ConversationUsecase) notify() {
	c.mu.Lock()
	snapshot := c.snapshotLocked()
	subscribers := c.subscribers
	c.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
