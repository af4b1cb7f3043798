package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// CreateWithProfile inserts the user and its profile in one transaction.
// Neither row exists if either insert fails.
func (r *userRepository) CreateWithProfile(user *models.User, profile *models.Profile) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Profile").Create(user).Error; err != nil {
			return err
		}
		profile.UserID = user.ID
		if profile.JoinDate.IsZero() {
			profile.JoinDate = time.Now()
		}
		if err := tx.Create(profile).Error; err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		user.Profile = profile
		return nil
	})
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.Preload("Profile").First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Preload("Profile").Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Activate(id uint) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("status", models.STATUS_ACTIVE).Error
}

func (r *userRepository) UpdatePassword(id uint, hash string) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("password", hash).Error
}

func (r *userRepository) TouchLastLogin(id uint) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("last_login_at", time.Now()).Error
}
