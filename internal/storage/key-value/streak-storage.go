package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
)

type streakEntryInternal struct {
	Date   string `json:"date"`
	Action string `json:"action"`
}

type streakInternal struct {
	UserID             string                `json:"user_id"`
	CurrentStreak      int                   `json:"current_streak"`
	LongestStreak      int                   `json:"longest_streak"`
	LastActivityDate   string                `json:"last_activity_date"`
	History            []streakEntryInternal `json:"history"`
	AchievementUnlocks map[string]time.Time  `json:"achievement_unlocks,omitempty"`
}

// StreakStorage keeps one JSON document per user and publishes every write
// to a per-user channel so connected clients get real-time streak updates.
type StreakStorage struct {
	rdb *redis.Client
}

func NewStreakStorage(rdb *redis.Client) *StreakStorage {
	return &StreakStorage{
		rdb: rdb,
	}
}

func (s *StreakStorage) GetStreak(ctx context.Context, userID uuid.UUID) (model.Streak, error) {
	streakRaw, err := s.rdb.Get(ctx, getStreakKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Streak{}, model.ErrStreakDoesNotExist
		}
		return model.Streak{}, fmt.Errorf("failed to get streak %s: %w", userID, err)
	}

	var streakInt streakInternal
	if err = json.Unmarshal([]byte(streakRaw), &streakInt); err != nil {
		return model.Streak{}, fmt.Errorf("failed to unmarshal streak %s: %w", userID, err)
	}
	return parseStreakInternal(userID, streakInt), nil
}

func (s *StreakStorage) SetStreak(ctx context.Context, streak model.Streak) error {
	history := make([]streakEntryInternal, 0, len(streak.History))
	for _, entry := range streak.History {
		history = append(
			history, streakEntryInternal{
				Date:   entry.Date,
				Action: entry.Action,
			},
		)
	}
	streakInt := streakInternal{
		UserID:             streak.UserID.String(),
		CurrentStreak:      streak.CurrentStreak,
		LongestStreak:      streak.LongestStreak,
		LastActivityDate:   streak.LastActivityDate,
		History:            history,
		AchievementUnlocks: streak.AchievementUnlocks,
	}

	streakJSON, err := json.Marshal(streakInt)
	if err != nil {
		return fmt.Errorf("failed to marshal internal streak: %w", err)
	}
	if err = s.rdb.Set(ctx, getStreakKey(streak.UserID), streakJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to save streak %s: %w", streak.UserID, err)
	}
	if err = s.rdb.Publish(ctx, getStreakChannel(streak.UserID), streakJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish streak update %s: %w", streak.UserID, err)
	}
	return nil
}

// SubscribeStreak streams streak updates for one user until ctx is done.
func (s *StreakStorage) SubscribeStreak(ctx context.Context, userID uuid.UUID) <-chan model.Streak {
	updates := make(chan model.Streak)
	pubsub := s.rdb.Subscribe(ctx, getStreakChannel(userID))

	go func() {
		defer close(updates)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var streakInt streakInternal
				if err := json.Unmarshal([]byte(msg.Payload), &streakInt); err != nil {
					continue
				}
				select {
				case updates <- parseStreakInternal(userID, streakInt):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return updates
}

func parseStreakInternal(userID uuid.UUID, streakInt streakInternal) model.Streak {
	history := make([]model.StreakEntry, 0, len(streakInt.History))
	for _, entry := range streakInt.History {
		history = append(
			history, model.StreakEntry{
				Date:   entry.Date,
				Action: entry.Action,
			},
		)
	}
	return model.Streak{
		UserID:             userID,
		CurrentStreak:      streakInt.CurrentStreak,
		LongestStreak:      streakInt.LongestStreak,
		LastActivityDate:   streakInt.LastActivityDate,
		History:            history,
		AchievementUnlocks: streakInt.AchievementUnlocks,
	}
}

func getStreakKey(userID uuid.UUID) string {
	return fmt.Sprintf("streak_%v", userID.String())
}

func getStreakChannel(userID uuid.UUID) string {
	return fmt.Sprintf("streak_updates_%v", userID.String())
}
