package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
)

type userInternal struct {
	Email     string `json:"email"`
	PersonaID string `json:"persona_id"`
}

type UserStorage struct {
	rdb *redis.Client
}

func NewUserStorage(rdb *redis.Client) *UserStorage {
	return &UserStorage{
		rdb: rdb,
	}
}

func (s *UserStorage) GetUserIDForEmail(ctx context.Context, email string) (uuid.UUID, error) {
	userIDRaw, err := s.rdb.Get(ctx, getEmailUserKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, model.ErrEmailUserDoesNotExists
		}
		return uuid.Nil, fmt.Errorf("failed to get user id for email: %w", err)
	}

	userID, err := uuid.Parse(userIDRaw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse user id %q: %w", userIDRaw, err)
	}
	return userID, nil
}

func (s *UserStorage) CreateNewEmailUser(ctx context.Context, email, personaID string) (uuid.UUID, error) {
	userID := uuid.New()

	userInt := userInternal{
		Email:     email,
		PersonaID: personaID,
	}
	userJSON, err := json.Marshal(userInt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal internal user: %w", err)
	}

	if err = s.rdb.Set(ctx, getUserKey(userID), userJSON, 0).Err(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to save user %s: %w", userID, err)
	}
	if err = s.rdb.Set(ctx, getEmailUserKey(email), userID.String(), 0).Err(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to save email index for user %s: %w", userID, err)
	}
	return userID, nil
}

func (s *UserStorage) GetUserInfo(ctx context.Context, userID uuid.UUID) (model.User, error) {
	userRaw, err := s.rdb.Get(ctx, getUserKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.User{}, model.ErrEmailUserDoesNotExists
		}
		return model.User{}, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	var userInt userInternal
	if err = json.Unmarshal([]byte(userRaw), &userInt); err != nil {
		return model.User{}, fmt.Errorf("failed to unmarshal user %s: %w", userID, err)
	}
	return model.User{
		UserID:    userID,
		Email:     userInt.Email,
		PersonaID: userInt.PersonaID,
	}, nil
}

func getUserKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_%v", userID.String())
}

func getEmailUserKey(email string) string {
	return fmt.Sprintf("email_%v", email)
}
