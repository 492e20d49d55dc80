package auth

import (
	"errors"
	"fmt"
	"slices"

	"fruitapp-be/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret = errors.New("JWT_SECRET is not set")
	ErrInvalidToken  = apperr.New(apperr.KindUnauthorized, "invalid token")
)

type CustomClaims struct {
	UserID uint     `json:"user_id"`
	Email  string   `json:"email"`
	Role   string   `json:"role"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves a bearer credential into an Identity.
// Issuing tokens is handled elsewhere.
type Authenticator interface {
	CurrentUser(token string) (Identity, error)
}

type jwtAuthenticator struct {
	key []byte
}

func NewJWTAuthenticator(secret string) (Authenticator, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &jwtAuthenticator{key: []byte(secret)}, nil
}

func (a *jwtAuthenticator) CurrentUser(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&CustomClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return a.key, nil
		},
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return Identity{}, ErrInvalidToken
	}

	roles := claims.Roles
	if claims.Role != "" && !slices.Contains(roles, claims.Role) {
		roles = append(roles, claims.Role)
	}

	return Identity{UserID: claims.UserID, Roles: roles}, nil
}
