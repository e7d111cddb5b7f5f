package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ResetTokenPurpose is the purpose claim stamped into every password-reset
// token. A token with any other purpose value is rejected even when the
// signature checks out, so tokens signed with the same secret for other uses
// cannot be replayed against the reset endpoint.
const ResetTokenPurpose = "password_reset"

var (
	// ErrResetTokenInvalid covers bad signatures, garbage input and expiry.
	ErrResetTokenInvalid = errors.New("reset token is invalid or expired")

	// ErrResetTokenPurpose is returned when a structurally valid token does
	// not carry the password-reset purpose.
	ErrResetTokenPurpose = errors.New("reset token has wrong purpose")
)

// ResetTokenClaims bind a verified email to the reset purpose marker.
type ResetTokenClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// ResetTokenService issues and validates the short-lived bearer token that
// proves a caller passed OTP verification for an email address. The token is
// stateless: nothing is stored server-side, expiry is the only revocation.
type ResetTokenService struct {
	secret []byte
	expiry time.Duration
}

func NewResetTokenService(secret string, expiry time.Duration) (*ResetTokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("reset token secret is required")
	}
	if expiry <= 0 {
		expiry = 10 * time.Minute
	}
	return &ResetTokenService{secret: []byte(secret), expiry: expiry}, nil
}

// Issue signs a reset token for the email. Call only after the OTP for this
// email was verified.
func (s *ResetTokenService) Issue(email string) (string, error) {
	now := time.Now()
	claims := ResetTokenClaims{
		Email:   email,
		Purpose: ResetTokenPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and purpose, returning the email claim.
func (s *ResetTokenService) Verify(tokenString string) (string, error) {
	claims := &ResetTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrResetTokenInvalid
	}
	if claims.Purpose != ResetTokenPurpose {
		return "", ErrResetTokenPurpose
	}
	return claims.Email, nil
}
