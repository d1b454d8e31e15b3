package repository

import (
	"context"

	"gorm.io/gorm"

	"shopchat/internal/model"
)

// UserRepository replicated users
type UserRepository interface {
	// GetByID returns ErrNotFound when absent
	GetByID(ctx context.Context, id int64) (*model.User, error)

	// CreateIfAbsent inserts user unless its id exists. created is false for an existing id.
	CreateIfAbsent(ctx context.Context, user *model.User) (created bool, err error)

	// UpdateFields applies column updates to an existing user
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) CreateIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(onConflictID).Create(user)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *userRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Updates(fields).Error
}
