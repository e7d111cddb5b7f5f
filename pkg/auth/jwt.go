package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/yourusername/inventory-api/internal/domain/entity"
)

var (
	// ErrTokenInvalid covers malformed tokens, bad signatures and expiry.
	ErrTokenInvalid = errors.New("token is invalid or expired")
)

// AccessTokenClaims are the claims carried by a login access token.
type AccessTokenClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService issues and validates HS256 access tokens.
type JWTService struct {
	secret []byte
	expiry time.Duration
}

func NewJWTService(secret string, expiry time.Duration) (*JWTService, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &JWTService{secret: []byte(secret), expiry: expiry}, nil
}

// GenerateAccessToken signs a token identifying the user for API calls.
func (s *JWTService) GenerateAccessToken(user *entity.User) (string, error) {
	now := time.Now()
	claims := AccessTokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken validates the signature and expiry and returns the claims.
func (s *JWTService) ParseAccessToken(tokenString string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ExpirySeconds returns the access token lifetime in whole seconds,
// for expires_in style response fields.
func (s *JWTService) ExpirySeconds() int {
	return int(s.expiry.Seconds())
}
