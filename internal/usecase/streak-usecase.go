package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
	"github.com/iamvkosarev/ai-tutor-bot/pkg/local"
)

var (
	textStreakStart    = local.NewSet("Start your streak today!")
	textStreakFirstDay = local.NewSet("First day of your streak!")
	textStreakKeepUp   = local.NewSet("🔥 %d day streak! Keep it up!")
)

type StreakStorage interface {
	GetStreak(ctx context.Context, userID uuid.UUID) (model.Streak, error)
	SetStreak(ctx context.Context, streak model.Streak) error
}

type StreakUsecaseDeps struct {
	StreakStorage StreakStorage
	Logger        *slog.Logger
}

// StreakUsecase tracks consecutive-day activity and evaluates the badge
// achievements unlocked by the current streak.
type StreakUsecase struct {
	StreakUsecaseDeps
	now func() time.Time
}

func NewStreakUsecase(deps StreakUsecaseDeps) *StreakUsecase {
	return &StreakUsecase{
		StreakUsecaseDeps: deps,
		now:               time.Now,
	}
}

// RecordActivity advances the user's streak. At most one mutation per
// calendar day: repeat calls on the same day are no-ops.
func (s *StreakUsecase) RecordActivity(ctx context.Context, userID uuid.UUID, action string) error {
	now := s.now()
	today := now.Format(model.StreakDateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(model.StreakDateLayout)

	streak, err := s.StreakStorage.GetStreak(ctx, userID)
	if err != nil {
		if !errors.Is(err, model.ErrStreakDoesNotExist) {
			return fmt.Errorf("failed to get streak: %w", err)
		}
		streak = model.Streak{UserID: userID}
	}

	if streak.LastActivityDate == today {
		return nil
	}

	if streak.LastActivityDate == yesterday {
		streak.CurrentStreak++
	} else {
		streak.CurrentStreak = 1
	}
	if streak.CurrentStreak > streak.LongestStreak {
		streak.LongestStreak = streak.CurrentStreak
	}
	streak.LastActivityDate = today
	streak.History = append(streak.History, model.StreakEntry{Date: today, Action: action})

	for _, a := range model.StreakAchievements {
		if streak.CurrentStreak < a.RequiredStreak {
			continue
		}
		if streak.AchievementUnlocks == nil {
			streak.AchievementUnlocks = make(map[string]time.Time)
		}
		if _, ok := streak.AchievementUnlocks[a.ID]; !ok {
			streak.AchievementUnlocks[a.ID] = now
		}
	}

	if err := s.StreakStorage.SetStreak(ctx, streak); err != nil {
		return fmt.Errorf("failed to set streak: %w", err)
	}

	s.Logger.Info(
		"activity recorded",
		"user_id", userID,
		"current_streak", streak.CurrentStreak,
		"longest_streak", streak.LongestStreak,
	)
	return nil
}

// CurrentStreak returns the stored streak (zero-valued for new users) with
// the evaluated achievement set.
func (s *StreakUsecase) CurrentStreak(ctx context.Context, userID uuid.UUID) (model.Streak, []model.Achievement, error) {
	streak, err := s.StreakStorage.GetStreak(ctx, userID)
	if err != nil {
		if !errors.Is(err, model.ErrStreakDoesNotExist) {
			return model.Streak{}, nil, fmt.Errorf("failed to get streak: %w", err)
		}
		streak = model.Streak{UserID: userID}
	}
	return streak, EvaluateAchievements(streak, s.now()), nil
}

// EvaluateAchievements returns the badge set with Unlocked flags applied for
// the streak. Already-earned badges keep their recorded unlock time; the
// fallback to now covers streaks stored before unlock times were kept.
func EvaluateAchievements(streak model.Streak, now time.Time) []model.Achievement {
	achievements := make([]model.Achievement, len(model.StreakAchievements))
	copy(achievements, model.StreakAchievements)
	for i := range achievements {
		if streak.CurrentStreak < achievements[i].RequiredStreak {
			continue
		}
		achievements[i].Unlocked = true
		if at, ok := streak.AchievementUnlocks[achievements[i].ID]; ok {
			achievements[i].UnlockedAt = at
		} else {
			achievements[i].UnlockedAt = now
		}
	}
	return achievements
}

// StreakMessage is the encouragement line shown next to the streak counter.
func StreakMessage(currentStreak int, lang local.Language) string {
	switch {
	case currentStreak == 0:
		return textStreakStart.Text(lang)
	case currentStreak == 1:
		return textStreakFirstDay.Text(lang)
	default:
		return textStreakKeepUp.Format(lang, currentStreak)
	}
}
