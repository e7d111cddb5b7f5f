package entity

import "time"

// OtpChallenge is one outstanding password-reset attempt for an email.
// At most one row exists per email (unique index); a new request replaces
// the old row. Rows older than the reset TTL are treated as nonexistent.
type OtpChallenge struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Email    string `gorm:"size:100;not null;uniqueIndex" json:"email"`
	CodeHash string `gorm:"size:100;not null" json:"-"`
	Attempts int    `gorm:"not null;default:0" json:"attempts"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (OtpChallenge) TableName() string {
	return "otp_challenges"
}

// Age returns how long ago the challenge was created.
func (c *OtpChallenge) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}
