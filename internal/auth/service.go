package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chat-live/internal/config"
	"chat-live/internal/errs"
	"chat-live/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Service verifies bearer tokens issued by the account collaborator. It is
// pure with respect to the live layer: no lookups, no side effects.
type Service struct {
	secret    []byte
	expiresIn time.Duration
	now       func() time.Time
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		secret:    cfg.JWT.Secret,
		expiresIn: cfg.JWT.ExpiresIn,
		now:       time.Now,
	}
}

func (s *Service) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// Verify resolves a token to the identity it was issued for.
func (s *Service) Verify(_ context.Context, tokenString string) (models.Identity, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return models.Identity{}, fmt.Errorf("%w: missing token", errs.ErrAuthentication)
	}

	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", errs.ErrAuthentication, err)
	}

	userID, err := userIDFromClaims(claims)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", errs.ErrAuthentication, err)
	}

	role := models.RoleUser
	if r, ok := claims["role"].(string); ok && r != "" {
		role = models.Role(r)
	}

	return models.Identity{UserID: userID, Role: role}, nil
}

// IssueToken signs a token for the given identity.
func (s *Service) IssueToken(identity models.Identity) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": string(identity.UserID),
		"role":    string(identity.Role),
		"exp":     now.Add(s.expiresIn).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// userIDFromClaims accepts string ids and the numeric ids older tokens carry.
func userIDFromClaims(claims jwt.MapClaims) (models.UserID, error) {
	raw, ok := claims["user_id"]
	if !ok {
		raw, ok = claims["sub"]
	}
	if !ok {
		return "", fmt.Errorf("token has no user id")
	}

	switch v := raw.(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return models.UserID(v), nil
		}
	case float64:
		return models.UserID(strconv.FormatInt(int64(v), 10)), nil
	}
	return "", fmt.Errorf("invalid user ID in token")
}
