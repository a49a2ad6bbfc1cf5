package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iamvkosarev/ai-tutor-bot/internal/model"
)

type contextKey string

const userKey contextKey = "user"

const tokenLifetime = 24 * time.Hour

// issueToken signs an access token carrying the email claim. The SPA holds
// one token for both the REST calls and the websocket query parameter.
func (s *Server) issueToken(email string) (string, error) {
	claims := jwt.MapClaims{
		"email": email,
		"exp":   time.Now().Add(tokenLifetime).Unix(),
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// withAuth verifies the bearer token, resolves the user behind its email
// claim and attaches the user to the request context.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			email, err := s.parseBearer(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			user, _, err := s.Users.GetUserForEmail(r.Context(), email)
			if err != nil {
				writeError(w, http.StatusForbidden, "access denied")
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		},
	)
}

func (s *Server) parseBearer(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", jwt.ErrTokenMalformed
	}

	token, err := jwt.Parse(
		parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.jwtSecret, nil
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

func userFromContext(ctx context.Context) model.User {
	user, _ := ctx.Value(userKey).(model.User)
	return user
}
