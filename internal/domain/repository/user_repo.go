package repository

import (
	"github.com/yourusername/inventory-api/internal/domain/entity"
)

// UserRepository defines persistence operations on user accounts.
type UserRepository interface {
	Create(user *entity.User) error
	GetByID(id uint) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
	// UpdatePassword hashes newPassword and overwrites the stored hash.
	UpdatePassword(userID uint, newPassword string) error
}
