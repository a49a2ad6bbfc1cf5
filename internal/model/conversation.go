package model

type Mode string

const (
	ModeIdle        = Mode("idle")
	ModeVoiceActive = Mode("voice_active")
)

type PendingKind string

const (
	PendingNone  = PendingKind("none")
	PendingText  = PendingKind("awaiting_text")
	PendingImage = PendingKind("awaiting_image")
)

// ConversationState is a point-in-time snapshot of the orchestrator,
// safe to hand to any subscriber. Messages is a copy of the log.
//
// Invariants: at most one message has IsPending=true; Listening and Speaking
// are mutually exclusive in voice mode.
type ConversationState struct {
	Messages  []Message   `json:"messages"`
	Mode      Mode        `json:"mode"`
	Pending   PendingKind `json:"pending"`
	Listening bool        `json:"listening"`
	Speaking  bool        `json:"speaking"`
}

// PendingMessage returns the currently pending message, if any.
func (s ConversationState) PendingMessage() (Message, bool) {
	for _, msg := range s.Messages {
		if msg.IsPending {
			return msg, true
		}
	}
	return Message{}, false
}
