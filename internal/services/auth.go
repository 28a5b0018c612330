package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/mediabud/recsys/internal/config"
)

// AuthService validates bearer tokens for the admin surface (train
// endpoints). Request authentication for the wider product lives outside
// this engine; this is only the thin guard on operations that mutate model
// state.
type AuthService struct {
	secret   []byte
	tokenTTL time.Duration
	logger   *logrus.Logger
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewAuthService(cfg *config.Config, logger *logrus.Logger) *AuthService {
	return &AuthService{
		secret:   []byte(cfg.Auth.JWTSecret),
		tokenTTL: cfg.Auth.TokenTTL,
		logger:   logger,
	}
}

func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// IssueToken mints a service token, used by operational tooling to call the
// train endpoints.
func (s *AuthService) IssueToken(subject, role string) (string, error) {
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
