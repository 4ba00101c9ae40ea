package utils

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/docshare/conduit/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	jwtSecret          = []byte("change-me-in-production")
	jwtExpirationHours = 24
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identify a user and, optionally, the only drives the token may reach.
// An empty Drives list leaves access to drive membership alone.
type Claims struct {
	UserID uuid.UUID   `json:"userID"`
	Email  string      `json:"email"`
	Drives []uuid.UUID `json:"drives,omitempty"`
	jwt.RegisteredClaims
}

// AllowsDrive reports whether the token's scope covers driveID.
func (c *Claims) AllowsDrive(driveID uuid.UUID) bool {
	return len(c.Drives) == 0 || slices.Contains(c.Drives, driveID)
}

func ConfigureJWT(secret string, expirationHours int) {
	if secret != "" {
		jwtSecret = []byte(secret)
	}
	if expirationHours > 0 {
		jwtExpirationHours = expirationHours
	}
}

// GenerateToken signs a token for user, restricted to drives when any are given.
func GenerateToken(user *models.User, drives ...uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Drives: drives,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(jwtExpirationHours) * time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
}

func ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
