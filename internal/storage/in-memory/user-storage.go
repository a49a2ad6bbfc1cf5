package in_memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
)

type UserStorage struct {
	mu     sync.RWMutex
	emails map[string]uuid.UUID
	users  map[uuid.UUID]model.User
}

func NewUserStorage() *UserStorage {
	return &UserStorage{
		emails: make(map[string]uuid.UUID),
		users:  make(map[uuid.UUID]model.User),
	}
}

func (s *UserStorage) GetUserIDForEmail(_ context.Context, email string) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.emails[email]
	if !ok {
		return uuid.Nil, model.ErrEmailUserDoesNotExists
	}
	return userID, nil
}

func (s *UserStorage) CreateNewEmailUser(_ context.Context, email, personaID string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := uuid.New()
	s.users[userID] = model.User{
		UserID:    userID,
		Email:     email,
		PersonaID: personaID,
	}
	s.emails[email] = userID
	return userID, nil
}

func (s *UserStorage) GetUserInfo(_ context.Context, userID uuid.UUID) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return model.User{}, model.ErrEmailUserDoesNotExists
	}
	return user, nil
}
