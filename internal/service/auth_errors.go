package service

import (
	"errors"
	"fmt"
)

// Reset flow specific errors used by handlers for stable error_type mapping.
var (
	ErrResetCodeExpired     = errors.New("reset_code_expired")
	ErrInvalidResetCode     = errors.New("invalid_reset_code")
	ErrTooManyResetAttempts = errors.New("too_many_reset_attempts")
	ErrResetTokenInvalid    = errors.New("reset_token_invalid")
	ErrResetTokenPurpose    = errors.New("reset_token_purpose")
	ErrResetAccountNotFound = errors.New("reset_account_not_found")
)

// ResetCooldownError rejects a reset request while a previously issued code
// is still live. RetryAfter is the remaining cooldown in whole seconds.
type ResetCooldownError struct {
	RetryAfter int
}

func (e *ResetCooldownError) Error() string {
	return fmt.Sprintf("a reset code was already sent, retry in %ds", e.RetryAfter)
}
