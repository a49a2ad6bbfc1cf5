package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
	"github.com/iamvkosarev/ai-tutor-bot/internal/speech"
	"github.com/iamvkosarev/ai-tutor-bot/internal/usecase"
)

// UserResolver maps an authenticated email to its user and tutor persona.
type UserResolver interface {
	GetUserForEmail(ctx context.Context, email string) (model.User, model.Persona, error)
}

// ConversationFactory builds a conversation wired to one client session:
// the engine is the session's recognition source, the session itself plays
// synthesized audio and serves as the local-voice fallback.
type ConversationFactory func(
	user model.User,
	persona model.Persona,
	engine *speech.ClientEngine,
	player speech.Player,
	fallback speech.FallbackSpeaker,
) (*usecase.ConversationUsecase, error)

type HubDeps struct {
	Users         UserResolver
	Transcriber   speech.Transcriber
	Streaks       StreakFeed
	Conversations ConversationFactory
	Logger        *slog.Logger
}

// Hub upgrades authenticated requests to conversation sessions. Each user
// has at most one live session: a new connection supersedes the previous
// one, which is closed.
type Hub struct {
	HubDeps
	jwtSecret []byte
	upgrader  websocket.Upgrader

	mu     sync.Mutex
	active map[uuid.UUID]*Session
}

func NewHub(deps HubDeps, jwtSecret string) *Hub {
	return &Hub{
		HubDeps:   deps,
		jwtSecret: []byte(jwtSecret),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		active: make(map[uuid.UUID]*Session),
	}
}

// Conversation returns the live conversation for a connected user.
func (h *Hub) Conversation(userID uuid.UUID) (*usecase.ConversationUsecase, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	session, ok := h.active[userID]
	if !ok {
		return nil, false
	}
	return session.conversation, true
}

// HandleWebSocket authenticates the token query parameter, resolves the
// user and serves the session until the client disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	email, err := h.authenticate(r.URL.Query().Get("token"))
	if err != nil {
		h.Logger.Info("websocket auth rejected", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, persona, err := h.Users.GetUserForEmail(r.Context(), email)
	if err != nil {
		h.Logger.Info("websocket user rejected", "email", email, "error", err)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := h.Logger.With("user_id", user.UserID, "persona", persona.ID)
	engine := speech.NewClientEngine(h.Transcriber, logger)
	session := NewSession(conn, user, engine, h.Streaks, logger)
	conversation, err := h.Conversations(user, persona, engine, session, session)
	if err != nil {
		logger.Error("failed to build conversation", "error", err)
		return
	}
	session.BindConversation(conversation)

	h.register(user.UserID, session)
	defer h.unregister(user.UserID, session)

	logger.Info("session connected")
	session.Run(r.Context())
	logger.Info("session disconnected")
}

func (h *Hub) register(userID uuid.UUID, session *Session) {
	h.mu.Lock()
	previous := h.active[userID]
	h.active[userID] = session
	h.mu.Unlock()

	if previous != nil {
		previous.conn.Close()
	}
}

func (h *Hub) unregister(userID uuid.UUID, session *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active[userID] == session {
		delete(h.active, userID)
	}
}

func (h *Hub) authenticate(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", jwt.ErrTokenMalformed
	}
	token, err := jwt.Parse(
		tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return h.jwtSecret, nil
		},
	)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return email, nil
}
