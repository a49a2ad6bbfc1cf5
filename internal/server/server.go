package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/iamvkosarev/ai-tutor-bot/config"
	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
	"github.com/iamvkosarev/ai-tutor-bot/internal/usecase"
	"github.com/iamvkosarev/ai-tutor-bot/pkg/local"
)

// UserResolver maps an authenticated email to its user and tutor persona.
type UserResolver interface {
	GetUserForEmail(ctx context.Context, email string) (model.User, model.Persona, error)
}

// StreakReader serves the streak panel.
type StreakReader interface {
	CurrentStreak(ctx context.Context, userID uuid.UUID) (model.Streak, []model.Achievement, error)
}

// ConversationLookup finds a connected user's live conversation.
type ConversationLookup interface {
	Conversation(userID uuid.UUID) (*usecase.ConversationUsecase, bool)
}

type ServerDeps struct {
	Users         UserResolver
	Streaks       StreakReader
	Conversations ConversationLookup
	WebSocket     http.HandlerFunc
	Logger        *slog.Logger
}

type Server struct {
	ServerDeps
	jwtSecret []byte
	address   string
}

func NewServer(deps ServerDeps, cfg config.Server) *Server {
	return &Server{
		ServerDeps: deps,
		jwtSecret:  []byte(cfg.JWTSecret),
		address:    cfg.Address,
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(
		"/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	)
	r.Post("/api/v1/login", s.handleLogin)
	r.Get("/ws", s.WebSocket)

	r.Group(
		func(r chi.Router) {
			r.Use(s.withAuth)
			r.Post("/api/v1/messages", s.handleSubmitMessage)
			r.Get("/api/v1/conversation", s.handleGetConversation)
			r.Get("/api/v1/streak", s.handleGetStreak)
		},
	)
	return r
}

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Token   string `json:"token"`
	Persona string `json:"persona"`
	Name    string `json:"name"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	_, persona, err := s.Users.GetUserForEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, usecase.ErrAccessDenied) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		s.Logger.Error("failed to resolve user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := s.issueToken(req.Email)
	if err != nil {
		s.Logger.Error("failed to issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(
		w, http.StatusOK, loginResponse{
			Token:   token,
			Persona: persona.ID,
			Name:    persona.DisplayName,
		},
	)
}

type submitMessageRequest struct {
	Text string `json:"text"`
}

// handleSubmitMessage dispatches a typed message into the user's live
// session. Conversations exist only while a websocket session is connected.
func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req submitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conversation, ok := s.Conversations.Conversation(user.UserID)
	if !ok {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}

	if err := conversation.Submit(req.Text, usecase.OriginTyped); err != nil {
		switch {
		case errors.Is(err, usecase.ErrEmptyUtterance):
			writeError(w, http.StatusBadRequest, "message is empty")
		case errors.Is(err, usecase.ErrSubmissionPending):
			writeError(w, http.StatusConflict, "another message is pending")
		default:
			s.Logger.Error("failed to submit message", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	conversation, ok := s.Conversations.Conversation(user.UserID)
	if !ok {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, conversation.Snapshot())
}

type streakResponse struct {
	Streak       model.Streak        `json:"streak"`
	Achievements []model.Achievement `json:"achievements"`
	Message      string              `json:"message"`
}

func (s *Server) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	streak, achievements, err := s.Streaks.CurrentStreak(r.Context(), user.UserID)
	if err != nil {
		s.Logger.Error("failed to get streak", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(
		w, http.StatusOK, streakResponse{
			Streak:       streak,
			Achievements: achievements,
			Message:      usecase.StreakMessage(streak.CurrentStreak, local.Eng),
		},
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
