package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/inventory-api/internal/domain/entity"
	apperrors "github.com/yourusername/inventory-api/internal/pkg/errors"
	"github.com/yourusername/inventory-api/pkg/auth"
)

// ============================================================================
// Mocks
// ============================================================================

// MockOtpChallengeRepository implements repository.OtpChallengeRepository
type MockOtpChallengeRepository struct {
	mock.Mock
}

func (m *MockOtpChallengeRepository) Replace(challenge *entity.OtpChallenge) error {
	args := m.Called(challenge)
	return args.Error(0)
}

func (m *MockOtpChallengeRepository) GetLatestByEmail(email string, notBefore time.Time) (*entity.OtpChallenge, error) {
	args := m.Called(email, notBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.OtpChallenge), args.Error(1)
}

func (m *MockOtpChallengeRepository) IncrementAttempts(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockOtpChallengeRepository) DeleteByEmail(email string) error {
	args := m.Called(email)
	return args.Error(0)
}

func (m *MockOtpChallengeRepository) PurgeExpired(before time.Time) (int64, error) {
	args := m.Called(before)
	return args.Get(0).(int64), args.Error(1)
}

// MockEmailService implements EmailService and records the last code sent.
type MockEmailService struct {
	mock.Mock
	LastCode string
}

func (m *MockEmailService) SendPasswordResetCode(ctx context.Context, toEmail, code, idempotencyKey string) error {
	m.LastCode = code
	args := m.Called(ctx, toEmail, code, idempotencyKey)
	return args.Error(0)
}

func newResetFixture(t *testing.T) (*PasswordResetService, *MockUserRepository, *MockOtpChallengeRepository, *MockEmailService) {
	t.Helper()

	userRepo := new(MockUserRepository)
	otpRepo := new(MockOtpChallengeRepository)
	emailSvc := new(MockEmailService)

	resetTokens, err := auth.NewResetTokenService("test-secret", 10*time.Minute)
	require.NoError(t, err)

	svc, err := NewPasswordResetService(userRepo, otpRepo, emailSvc, resetTokens, 5*time.Minute, 5)
	require.NoError(t, err)

	return svc, userRepo, otpRepo, emailSvc
}

func hashedCode(t *testing.T, code string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), resetCodeHashCost)
	require.NoError(t, err)
	return string(hash)
}

// ============================================================================
// RequestReset
// ============================================================================

func TestRequestReset_SendsCodeForKnownAccount(t *testing.T) {
	// Arrange
	svc, userRepo, otpRepo, emailSvc := newResetFixture(t)
	user := &entity.User{ID: 7, Email: "user@example.com"}

	otpRepo.On("GetLatestByEmail", "user@example.com", mock.AnythingOfType("time.Time")).
		Return(nil, apperrors.ErrNotFound)
	userRepo.On("GetByEmail", "user@example.com").Return(user, nil)
	otpRepo.On("Replace", mock.AnythingOfType("*entity.OtpChallenge")).
		Run(func(args mock.Arguments) {
			args.Get(0).(*entity.OtpChallenge).ID = 42
		}).
		Return(nil)
	emailSvc.On("SendPasswordResetCode", mock.Anything, "user@example.com", mock.AnythingOfType("string"), "password-reset:42").
		Return(nil)

	// Act
	err := svc.RequestReset(context.Background(), "  User@Example.COM ")

	// Assert
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), emailSvc.LastCode,
		"emailed code must be exactly six digits")
	otpRepo.AssertExpectations(t)
	emailSvc.AssertExpectations(t)

	// The stored hash must match what was emailed, and the plaintext must
	// never be what gets persisted.
	stored := otpRepo.Calls[1].Arguments.Get(0).(*entity.OtpChallenge)
	assert.NotEqual(t, emailSvc.LastCode, stored.CodeHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.CodeHash), []byte(emailSvc.LastCode)))
	assert.Equal(t, 0, stored.Attempts)
}

func TestRequestReset_UnknownAccountLooksLikeSuccess(t *testing.T) {
	// Arrange
	svc, userRepo, otpRepo, emailSvc := newResetFixture(t)
	otpRepo.On("GetLatestByEmail", "ghost@example.com", mock.AnythingOfType("time.Time")).
		Return(nil, apperrors.ErrNotFound)
	userRepo.On("GetByEmail", "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	// Act
	err := svc.RequestReset(context.Background(), "ghost@example.com")

	// Assert: no error, no challenge stored, no email sent
	require.NoError(t, err)
	otpRepo.AssertNotCalled(t, "Replace", mock.Anything)
	emailSvc.AssertNotCalled(t, "SendPasswordResetCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestReset_CooldownWhileChallengeLive(t *testing.T) {
	// Arrange: a challenge created 100 seconds ago is still live
	svc, userRepo, otpRepo, emailSvc := newResetFixture(t)
	live := &entity.OtpChallenge{
		ID:        1,
		Email:     "user@example.com",
		CreatedAt: time.Now().Add(-100 * time.Second),
	}
	otpRepo.On("GetLatestByEmail", "user@example.com", mock.AnythingOfType("time.Time")).
		Return(live, nil)

	// Act
	err := svc.RequestReset(context.Background(), "user@example.com")

	// Assert: rejected with the remaining cooldown, roughly TTL - age
	var cooldown *ResetCooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.InDelta(t, 200, cooldown.RetryAfter, 2)

	// Cooldown fires before the account lookup so the rejection carries no
	// information about account existence.
	userRepo.AssertNotCalled(t, "GetByEmail", mock.Anything)
	emailSvc.AssertNotCalled(t, "SendPasswordResetCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestReset_EmptyEmailRejected(t *testing.T) {
	svc, _, _, _ := newResetFixture(t)

	err := svc.RequestReset(context.Background(), "   ")

	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRequestReset_EmailSendFailureSurfaces(t *testing.T) {
	// Arrange
	svc, userRepo, otpRepo, emailSvc := newResetFixture(t)
	user := &entity.User{ID: 7, Email: "user@example.com"}

	otpRepo.On("GetLatestByEmail", "user@example.com", mock.AnythingOfType("time.Time")).
		Return(nil, apperrors.ErrNotFound)
	userRepo.On("GetByEmail", "user@example.com").Return(user, nil)
	otpRepo.On("Replace", mock.AnythingOfType("*entity.OtpChallenge")).Return(nil)
	emailSvc.On("SendPasswordResetCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(fmt.Errorf("provider down"))

	// Act
	err := svc.RequestReset(context.Background(), "user@example.com")

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send reset email")
}

// ============================================================================
// VerifyCode
// ============================================================================

func TestVerifyCode_MatchConsumesChallengeAndIssuesToken(t *testing.T) {
	// Arrange
	svc, _, otpRepo, _ := newResetFixture(t)
	challenge := &entity.OtpChallenge{
		ID:        3,
		Email:     "user@example.com",
		CodeHash:  hashedCode(t, "123456"),
		Attempts:  2,
		CreatedAt: time.Now().Add(-time.Minute),
	}
	otpRepo.On("GetLatestByEmail", "user@example.com", mock.AnythingOfType("time.Time")).
		Return(challenge, nil)
	otpRepo.On("DeleteByEmail", "user@example.com").Return(nil)

	// Act
	token, err := svc.VerifyCode(context.Background(), "user@example.com", "123456")

	// Assert: challenge gone, token carries the email and reset purpose
	require.NoError(t, err)
	require.NotEmpty(t, token)
	otpRepo.AssertCalled(t, "DeleteByEmail", "user@example.com")

	verifier, err := auth.NewResetTokenService("test-secret", 10*time.Minute)
	require.NoError(t, err)
	email, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", email)
}

func TestVerifyCode_NoChallengeReportsExpired(t *testing.T) {
	// Both "never requested" and "requested too long ago" land here: the
	// repository hides rows older than the TTL.
	svc, _, otpRepo, _ := newResetFixture(t)
	otpRepo.On("GetLatestByEmail", "user@example.com", mock.AnythingOfType("time.Time")).
		Return(nil, apperrors.ErrNotFound)

	token, err := svc.VerifyCode(context.Background(), "user@example.com", "123456")

	assert.ErrorIs(t, err, ErrResetCodeExpired)
	assert.Empty(t, token)
}

func TestVerifyCode_WrongCodeIncrementsAttempts(t *testing.T) {
	// Arrange
	svc, _, otpRepo, _ := newResetFixture(t)
	challenge := &entity.OtpChallenge{
		ID:        3,
		Email:     "user@example.com",
		CodeHash:  hashedCode(t, "123456"),
		Attempts:  0,
		CreatedAt: time.Now().Add(-time.Minute),
	}
	otpRepo.On("GetLatestByEmail", "user@example.com", mock.AnythingOfType("time.Time")).
		Return(challenge, nil)
	otpRepo.On("IncrementAttempts", uint(3)).Return(nil)

	// Act
	token, err := svc.VerifyCode(context.Background(), "user@example.com", "000000")

	// Assert: challenge stays alive for another try
	assert.ErrorIs(t, err, ErrInvalidResetCode)
	assert.Empty(t, token)
	otpRepo.AssertCalled(t, "IncrementAttempts", uint(3))
	otpRepo.AssertNotCalled(t, "DeleteByEmail", mock.Anything)
}

func TestVerifyCode_FifthWrongAttemptLocksOut(t *testing.T) {
	// Arrange: four failures already recorded, this miss is the fifth
	svc, _, otpRepo, _ := newResetFixture(t)
	challenge := &entity.OtpChallenge{
		ID:        3,
		Email:     "user@example.com",
		CodeHash:  hashedCode(t, "123456"),
		Attempts:  4,
		CreatedAt: time.Now().Add(-time.Minute),
	}
	otpRepo.On("GetLatestByEmail", "user@example.com", mock.AnythingOfType("time.Time")).
		Return(challenge, nil)
	otpRepo.On("IncrementAttempts", uint(3)).Return(nil)

	// Act
	_, err := svc.VerifyCode(context.Background(), "user@example.com", "000000")

	// Assert
	assert.ErrorIs(t, err, ErrTooManyResetAttempts)
}

func TestVerifyCode_ExhaustedChallengeRejectsCorrectCode(t *testing.T) {
	// Arrange: ceiling already reached; even the right code must fail now
	svc, _, otpRepo, _ := newResetFixture(t)
	challenge := &entity.OtpChallenge{
		ID:        3,
		Email:     "user@example.com",
		CodeHash:  hashedCode(t, "123456"),
		Attempts:  5,
		CreatedAt: time.Now().Add(-time.Minute),
	}
	otpRepo.On("GetLatestByEmail", "user@example.com", mock.AnythingOfType("time.Time")).
		Return(challenge, nil)
	otpRepo.On("DeleteByEmail", "user@example.com").Return(nil)

	// Act
	token, err := svc.VerifyCode(context.Background(), "user@example.com", "123456")

	// Assert: challenge is invalidated, no token issued
	assert.ErrorIs(t, err, ErrTooManyResetAttempts)
	assert.Empty(t, token)
	otpRepo.AssertCalled(t, "DeleteByEmail", "user@example.com")
}

func TestVerifyCode_MissingInputRejected(t *testing.T) {
	svc, _, _, _ := newResetFixture(t)

	_, err := svc.VerifyCode(context.Background(), "user@example.com", "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.VerifyCode(context.Background(), "", "123456")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

// ============================================================================
// ResetPassword
// ============================================================================

func TestResetPassword_UpdatesPasswordForValidToken(t *testing.T) {
	// Arrange
	svc, userRepo, _, _ := newResetFixture(t)
	issuer, err := auth.NewResetTokenService("test-secret", 10*time.Minute)
	require.NoError(t, err)
	token, err := issuer.Issue("user@example.com")
	require.NoError(t, err)

	user := &entity.User{ID: 7, Email: "user@example.com"}
	userRepo.On("GetByEmail", "user@example.com").Return(user, nil)
	userRepo.On("UpdatePassword", uint(7), "NewPassw0rd!").Return(nil)

	// Act
	err = svc.ResetPassword(context.Background(), token, "NewPassw0rd!")

	// Assert
	require.NoError(t, err)
	userRepo.AssertExpectations(t)
}

func TestResetPassword_RejectsGarbageToken(t *testing.T) {
	svc, userRepo, _, _ := newResetFixture(t)

	err := svc.ResetPassword(context.Background(), "not-a-jwt", "NewPassw0rd!")

	assert.ErrorIs(t, err, ErrResetTokenInvalid)
	userRepo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything)
}

func TestResetPassword_RejectsExpiredToken(t *testing.T) {
	// Arrange: token signed with the right secret but already expired
	svc, userRepo, _, _ := newResetFixture(t)
	issuer, err := auth.NewResetTokenService("test-secret", time.Nanosecond)
	require.NoError(t, err)
	token, err := issuer.Issue("user@example.com")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	// Act
	err = svc.ResetPassword(context.Background(), token, "NewPassw0rd!")

	// Assert
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
	userRepo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything)
}

func TestResetPassword_RejectsWrongPurpose(t *testing.T) {
	// Arrange: a structurally valid token signed with the same secret but
	// carrying a different purpose claim must not open the reset endpoint.
	svc, userRepo, _, _ := newResetFixture(t)
	token := signTokenWithPurpose(t, "test-secret", "user@example.com", "email_verification")

	// Act
	err := svc.ResetPassword(context.Background(), token, "NewPassw0rd!")

	// Assert
	assert.ErrorIs(t, err, ErrResetTokenPurpose)
	userRepo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything)
}

func TestResetPassword_AccountDeletedAfterVerification(t *testing.T) {
	// Arrange
	svc, userRepo, _, _ := newResetFixture(t)
	issuer, err := auth.NewResetTokenService("test-secret", 10*time.Minute)
	require.NoError(t, err)
	token, err := issuer.Issue("gone@example.com")
	require.NoError(t, err)

	userRepo.On("GetByEmail", "gone@example.com").Return(nil, apperrors.ErrNotFound)

	// Act
	err = svc.ResetPassword(context.Background(), token, "NewPassw0rd!")

	// Assert
	assert.ErrorIs(t, err, ErrResetAccountNotFound)
}

func TestResetPassword_RepoFailureWrapped(t *testing.T) {
	// Arrange
	svc, userRepo, _, _ := newResetFixture(t)
	issuer, err := auth.NewResetTokenService("test-secret", 10*time.Minute)
	require.NoError(t, err)
	token, err := issuer.Issue("user@example.com")
	require.NoError(t, err)

	user := &entity.User{ID: 7, Email: "user@example.com"}
	userRepo.On("GetByEmail", "user@example.com").Return(user, nil)
	userRepo.On("UpdatePassword", uint(7), mock.Anything).Return(errors.New("db down"))

	// Act
	err = svc.ResetPassword(context.Background(), token, "NewPassw0rd!")

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update password")
}

// signTokenWithPurpose crafts a token outside ResetTokenService so the
// purpose claim can be set to arbitrary values.
func signTokenWithPurpose(t *testing.T, secret, email, purpose string) string {
	t.Helper()
	now := time.Now()
	claims := auth.ResetTokenClaims{
		Email:   email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// ============================================================================
// Code generation
// ============================================================================

func TestGenerateResetCode_AlwaysSixDigits(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 200; i++ {
		code, err := generateResetCode()
		require.NoError(t, err)
		assert.True(t, pattern.MatchString(code), "got %q", code)
	}
}
