package repo

import (
	"context"
	"fmt"

	"github.com/Skotchmaster/inventory/internal/models"
)

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	if err := r.DB.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", u.Username, ErrDuplicate)
		}
		return err
	}
	return nil
}

// The finders return gorm.ErrRecordNotFound when nothing matches.

func (r *GormRepo) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findUser(ctx, "username = ?", username)
}

func (r *GormRepo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findUser(ctx, "email = ?", email)
}

func (r *GormRepo) FindUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.findUser(ctx, "phone = ?", phone)
}

func (r *GormRepo) findUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where(where, arg).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
