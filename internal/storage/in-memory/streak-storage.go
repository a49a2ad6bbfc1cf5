package in_memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
)

type StreakStorage struct {
	mu      sync.RWMutex
	streaks map[uuid.UUID]model.Streak
}

func NewStreakStorage() *StreakStorage {
	return &StreakStorage{
		streaks: make(map[uuid.UUID]model.Streak),
	}
}

func (s *StreakStorage) GetStreak(_ context.Context, userID uuid.UUID) (model.Streak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	streak, ok := s.streaks[userID]
	if !ok {
		return model.Streak{}, model.ErrStreakDoesNotExist
	}
	return streak, nil
}

func (s *StreakStorage) SetStreak(_ context.Context, streak model.Streak) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streaks[streak.UserID] = streak
	return nil
}
