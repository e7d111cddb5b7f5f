package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/inventory-api/internal/domain/entity"
	apperrors "github.com/yourusername/inventory-api/internal/pkg/errors"
)

// OtpChallengeRepo implements repository.OtpChallengeRepository on PostgreSQL.
type OtpChallengeRepo struct {
	db *gorm.DB
}

func NewOtpChallengeRepo(db *gorm.DB) *OtpChallengeRepo {
	return &OtpChallengeRepo{db: db}
}

// Replace supersedes any prior challenge for the email inside one transaction.
// The unique index on email makes a racing insert fail instead of leaving two
// live challenges behind.
func (r *OtpChallengeRepo) Replace(challenge *entity.OtpChallenge) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", challenge.Email).
			Delete(&entity.OtpChallenge{}).Error; err != nil {
			return fmt.Errorf("failed to delete prior challenges: %w", err)
		}
		if err := tx.Create(challenge).Error; err != nil {
			return fmt.Errorf("failed to create challenge: %w", err)
		}
		return nil
	})
}

// GetLatestByEmail treats rows created before notBefore as nonexistent, so an
// expired challenge can never be returned to a caller.
func (r *OtpChallengeRepo) GetLatestByEmail(email string, notBefore time.Time) (*entity.OtpChallenge, error) {
	var challenge entity.OtpChallenge
	err := r.db.
		Where("email = ? AND created_at >= ?", email, notBefore).
		Order("created_at DESC").
		First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest challenge: %w", err)
	}
	return &challenge, nil
}

func (r *OtpChallengeRepo) IncrementAttempts(id uint) error {
	return r.db.Model(&entity.OtpChallenge{}).
		Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}

func (r *OtpChallengeRepo) DeleteByEmail(email string) error {
	return r.db.Where("email = ?", email).Delete(&entity.OtpChallenge{}).Error
}

func (r *OtpChallengeRepo) PurgeExpired(before time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", before).Delete(&entity.OtpChallenge{})
	return result.RowsAffected, result.Error
}
