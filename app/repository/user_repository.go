package repository

import (
	"strings"

	"github.com/DragosMatei/KeyGate/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByAPIKeyHash resolves an API key hash to its user.
func (r *userRepository) GetByAPIKeyHash(hash string) (*models.User, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	err := r.db.Where("api_key_hash = ? AND api_key_hash <> ''", trimmed).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update saves all fields of the user
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// CanDelete reports whether the user may be removed. A user holding active
// or suspended licenses is blocked; the caller surfaces this to the
// deletion workflow instead of hiding the rule in a model hook.
func (r *userRepository) CanDelete(id uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.License{}).
		Where("user_id = ? AND status IN ?", id, []string{models.STATUS_ACTIVE, models.STATUS_SUSPENDED}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Delete soft-deletes the user
func (r *userRepository) Delete(id uint) error {
	return r.db.Delete(&models.User{}, id).Error
}
