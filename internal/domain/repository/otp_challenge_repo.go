package repository

import (
	"time"

	"github.com/yourusername/inventory-api/internal/domain/entity"
)

// OtpChallengeRepository persists password-reset challenges.
//
// The otp_challenges table carries a unique index on email, so Replace is the
// only way to create a challenge: it removes any prior row for the email and
// inserts the new one in a single transaction. A concurrent insert for the
// same email fails on the index instead of silently racing.
type OtpChallengeRepository interface {
	// Replace deletes any existing challenge for challenge.Email and inserts
	// challenge atomically.
	Replace(challenge *entity.OtpChallenge) error

	// GetLatestByEmail returns the newest challenge for email created at or
	// after notBefore. Older rows are reported as errors.ErrNotFound: an
	// expired challenge must never be observable.
	GetLatestByEmail(email string, notBefore time.Time) (*entity.OtpChallenge, error)

	// IncrementAttempts bumps the failed-verification counter by one.
	IncrementAttempts(id uint) error

	DeleteByEmail(email string) error

	// PurgeExpired deletes challenges created before the cutoff and returns
	// the number of rows removed. Housekeeping only; reads already filter by
	// age.
	PurgeExpired(before time.Time) (int64, error)
}
