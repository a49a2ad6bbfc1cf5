package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      = Role("user")
	RoleAssistant = Role("assistant")
)

// Message is one entry of the conversation log. Once IsPending is false the
// message is immutable except for IsSpeaking, which is owned by the
// orchestrator and toggled by speech output lifecycle events.
type Message struct {
	ID         uuid.UUID `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	ImageURL   string    `json:"image_url,omitempty"`
	IsSpeaking bool      `json:"is_speaking,omitempty"`
	IsPending  bool      `json:"is_pending,omitempty"`
}
