package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Skotchmaster/inventory/internal/repo"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidPassword    = errors.New("incorrect password")
	ErrOTPNotFound        = errors.New("otp not found or expired")
	ErrOTPMismatch        = errors.New("otp does not match")
	ErrOTPThrottled       = errors.New("otp requested too recently")
	ErrNotificationFailed = errors.New("notification delivery failed")
	ErrStore              = errors.New("store error")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeErr maps repository errors onto service sentinels.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
}
