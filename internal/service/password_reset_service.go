package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/inventory-api/internal/domain/entity"
	"github.com/yourusername/inventory-api/internal/domain/repository"
	apperrors "github.com/yourusername/inventory-api/internal/pkg/errors"
	"github.com/yourusername/inventory-api/pkg/auth"
)

// resetCodeHashCost is the bcrypt work factor for OTP codes. The code lives
// five minutes and carries five attempts, so full password cost is unnecessary.
const resetCodeHashCost = 6

// PasswordResetService drives the three-phase password reset flow:
// request a code, verify it, apply the new password. One challenge is live
// per email at a time; expiry and cooldown both derive from the challenge's
// creation timestamp.
type PasswordResetService struct {
	userRepo     repository.UserRepository
	otpRepo      repository.OtpChallengeRepository
	emailService EmailService
	resetTokens  *auth.ResetTokenService
	codeTTL      time.Duration
	maxAttempts  int
}

func NewPasswordResetService(
	userRepo repository.UserRepository,
	otpRepo repository.OtpChallengeRepository,
	emailService EmailService,
	resetTokens *auth.ResetTokenService,
	codeTTL time.Duration,
	maxAttempts int,
) (*PasswordResetService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if otpRepo == nil {
		return nil, fmt.Errorf("otp challenge repository is required")
	}
	if emailService == nil {
		return nil, fmt.Errorf("email service is required")
	}
	if resetTokens == nil {
		return nil, fmt.Errorf("reset token service is required")
	}
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	return &PasswordResetService{
		userRepo:     userRepo,
		otpRepo:      otpRepo,
		emailService: emailService,
		resetTokens:  resetTokens,
		codeTTL:      codeTTL,
		maxAttempts:  maxAttempts,
	}, nil
}

// RequestReset starts the flow for an email address. It returns nil both when
// a code was sent and when no account exists: the acknowledgement must not
// reveal account existence. The only distinguishable outcome is the cooldown
// rejection, which is keyed on email before the account lookup on purpose —
// changing that ordering changes what an attacker can observe.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", apperrors.ErrValidation)
	}

	now := time.Now()
	existing, err := s.otpRepo.GetLatestByEmail(email, now.Add(-s.codeTTL))
	if err == nil && existing != nil {
		remaining := s.codeTTL - existing.Age(now)
		retryAfter := int(remaining.Seconds())
		if retryAfter <= 0 {
			retryAfter = 1
		}
		return &ResetCooldownError{RetryAfter: retryAfter}
	}
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("failed to check for active challenge: %w", err)
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Same acknowledgement as the success path, no code, no email.
			return nil
		}
		return fmt.Errorf("failed to look up account: %w", err)
	}

	code, err := generateResetCode()
	if err != nil {
		return fmt.Errorf("failed to generate reset code: %w", err)
	}
	codeHash, err := hashResetCode(code)
	if err != nil {
		return fmt.Errorf("failed to hash reset code: %w", err)
	}

	challenge := &entity.OtpChallenge{
		Email:     user.Email,
		CodeHash:  codeHash,
		Attempts:  0,
		CreatedAt: now,
	}
	if err := s.otpRepo.Replace(challenge); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	idempotencyKey := fmt.Sprintf("password-reset:%d", challenge.ID)
	if err := s.emailService.SendPasswordResetCode(ctx, user.Email, code, idempotencyKey); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	log.Printf("[PasswordResetService] reset code issued for a registered account")
	return nil
}

// VerifyCode checks the submitted code against the live challenge. On match
// the challenge is consumed and a purpose-scoped reset token is returned;
// possession of that token is thereafter proof of email ownership.
func (s *PasswordResetService) VerifyCode(ctx context.Context, email, code string) (string, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return "", fmt.Errorf("%w: email and code are required", apperrors.ErrValidation)
	}

	now := time.Now()
	challenge, err := s.otpRepo.GetLatestByEmail(email, now.Add(-s.codeTTL))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", ErrResetCodeExpired
		}
		return "", fmt.Errorf("failed to load challenge: %w", err)
	}

	if challenge.Attempts >= s.maxAttempts {
		if err := s.otpRepo.DeleteByEmail(email); err != nil {
			log.Printf("[PasswordResetService] failed to invalidate exhausted challenge: %v", err)
		}
		return "", ErrTooManyResetAttempts
	}

	if !verifyResetCode(code, challenge.CodeHash) {
		if err := s.otpRepo.IncrementAttempts(challenge.ID); err != nil {
			log.Printf("[PasswordResetService] failed to increment attempts: %v", err)
		}
		if challenge.Attempts+1 >= s.maxAttempts {
			return "", ErrTooManyResetAttempts
		}
		return "", ErrInvalidResetCode
	}

	// Single use: all challenges for the email go away on success.
	if err := s.otpRepo.DeleteByEmail(email); err != nil {
		return "", fmt.Errorf("failed to consume challenge: %w", err)
	}

	token, err := s.resetTokens.Issue(email)
	if err != nil {
		return "", fmt.Errorf("failed to issue reset token: %w", err)
	}
	return token, nil
}

// ResetPassword verifies the reset token and overwrites the account password.
// No session is created here; the caller logs in separately.
func (s *PasswordResetService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if strings.TrimSpace(resetToken) == "" || newPassword == "" {
		return fmt.Errorf("%w: reset token and new password are required", apperrors.ErrValidation)
	}

	emailClaim, err := s.resetTokens.Verify(resetToken)
	if err != nil {
		if errors.Is(err, auth.ErrResetTokenPurpose) {
			return ErrResetTokenPurpose
		}
		return ErrResetTokenInvalid
	}

	email := normalizeEmail(emailClaim)
	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Reachable only if the account was deleted after verification.
			return ErrResetAccountNotFound
		}
		return fmt.Errorf("failed to look up account: %w", err)
	}

	if err := s.userRepo.UpdatePassword(user.ID, newPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	log.Printf("[PasswordResetService] password reset completed for user ID=%d", user.ID)
	return nil
}

// generateResetCode draws a uniform 6-digit code from a CSPRNG.
// Always exactly six ASCII digits, leading zeros included.
func generateResetCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashResetCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), resetCodeHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyResetCode(code, codeHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(codeHash), []byte(code)) == nil
}
