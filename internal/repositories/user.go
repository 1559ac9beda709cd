package repositories

import (
	"errors"
	"fmt"

	"taskpay/internal/models"

	"gorm.io/gorm"
)

// UserRepository is the read-only user directory view: resolve payout
// references and list active mediators.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	FindActiveMediators() ([]models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) FindActiveMediators() ([]models.User, error) {
	var mediators []models.User
	err := r.db.Where("role = ? AND status = ?", models.RoleMediator, "active").
		Find(&mediators).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list mediators: %w", err)
	}
	return mediators, nil
}
