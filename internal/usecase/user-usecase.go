package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iamvkosarev/ai-tutor-bot/config"
	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
)

var ErrAccessDenied = errors.New("email is not on the allow-list")

type UserStorage interface {
	GetUserIDForEmail(ctx context.Context, email string) (uuid.UUID, error)
	CreateNewEmailUser(ctx context.Context, email, personaID string) (uuid.UUID, error)
	GetUserInfo(ctx context.Context, userID uuid.UUID) (model.User, error)
}

type UserUsecaseDeps struct {
	UserStorage UserStorage
}

type UserUsecase struct {
	UserUsecaseDeps
	personaByEmail map[string]model.Persona
}

func NewUserUsecase(deps UserUsecaseDeps, tutorCfg config.Tutor) (*UserUsecase, error) {
	personaByEmail := make(map[string]model.Persona, len(tutorCfg.Profiles))
	for _, binding := range tutorCfg.Profiles {
		persona, ok := model.Personas[binding.Persona]
		if !ok {
			return nil, fmt.Errorf("unknown persona %q for email %s", binding.Persona, binding.Email)
		}
		personaByEmail[strings.ToLower(binding.Email)] = persona
	}
	return &UserUsecase{
		UserUsecaseDeps: deps,
		personaByEmail:  personaByEmail,
	}, nil
}

// GetUserForEmail matches the email against the allow-list, resolves its
// persona and lazily creates the stored user record on first sign-in.
func (u *UserUsecase) GetUserForEmail(ctx context.Context, email string) (model.User, model.Persona, error) {
	persona, ok := u.personaByEmail[strings.ToLower(email)]
	if !ok {
		return model.User{}, model.Persona{}, ErrAccessDenied
	}

	userID, err := u.UserStorage.GetUserIDForEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, model.ErrEmailUserDoesNotExists) {
			return model.User{}, model.Persona{}, fmt.Errorf("failed to get user id for email: %w", err)
		}
		userID, err = u.UserStorage.CreateNewEmailUser(ctx, email, persona.ID)
		if err != nil {
			return model.User{}, model.Persona{}, fmt.Errorf("failed to create user: %w", err)
		}
	}

	user, err := u.UserStorage.GetUserInfo(ctx, userID)
	if err != nil {
		return model.User{}, model.Persona{}, fmt.Errorf("failed to get user info: %w", err)
	}
	return user, persona, nil
}
