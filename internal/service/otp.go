package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Skotchmaster/inventory/internal/notify"
	"github.com/Skotchmaster/inventory/pkg/cache"
	"github.com/Skotchmaster/inventory/pkg/logging"
)

const (
	DefaultOTPTTL            = 120 * time.Second
	DefaultOTPResendInterval = 30 * time.Second

	otpDigits = 6
)

var otpMax = big.NewInt(1_000_000)

// GenerateOTP returns a uniformly random zero-padded 6 digit code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

type OTPService struct {
	Cache          cache.Cache
	Sender         notify.Sender
	TTL            time.Duration
	ResendInterval time.Duration

	generate func() (string, error)
}

func NewOTPService(c cache.Cache, sender notify.Sender, ttl, resendInterval time.Duration) *OTPService {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	return &OTPService{
		Cache:          c,
		Sender:         sender,
		TTL:            ttl,
		ResendInterval: resendInterval,
		generate:       GenerateOTP,
	}
}

func otpKey(contact string) string { return "otp:" + contact }

func otpThrottleKey(contact string) string { return "otp:throttle:" + contact }

// Issue sends a fresh code and stores it only after delivery succeeded. A
// previous code for the same contact is overwritten.
func (s *OTPService) Issue(ctx context.Context, contact, channel string) (string, error) {
	l := logging.FromContext(ctx).With("svc", "otp.issue", "channel", channel)

	if s.ResendInterval > 0 {
		ok, err := s.Cache.SetNX(ctx, otpThrottleKey(contact), []byte("1"), s.ResendInterval)
		if err != nil {
			l.Error("otp_issue_failed", "status", 500, "reason", "cannot reserve throttle slot", "error", err)
			return "", fmt.Errorf("%w: %v", ErrStore, err)
		}
		if !ok {
			l.Warn("otp_issue_failed", "status", 429, "reason", "throttled")
			return "", ErrOTPThrottled
		}
	}

	code, err := s.generate()
	if err != nil {
		s.releaseThrottle(ctx, contact)
		return "", fmt.Errorf("generate otp: %w", err)
	}

	if err := s.Sender.Send(ctx, channel, contact, code); err != nil {
		s.releaseThrottle(ctx, contact)
		l.Error("otp_issue_failed", "status", 500, "reason", "cannot deliver code", "error", err)
		return "", fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}

	if err := s.Cache.Set(ctx, otpKey(contact), []byte(code), s.TTL); err != nil {
		l.Error("otp_issue_failed", "status", 500, "reason", "cannot store code", "error", err)
		return "", fmt.Errorf("%w: %v", ErrStore, err)
	}

	l.Info("otp_issued")
	return code, nil
}

func (s *OTPService) Resend(ctx context.Context, contact, channel string) (string, error) {
	return s.Issue(ctx, contact, channel)
}

// Verify consumes the stored code on success. When several requests present
// the same code concurrently only the one that deletes it succeeds.
func (s *OTPService) Verify(ctx context.Context, contact, code string) error {
	l := logging.FromContext(ctx).With("svc", "otp.verify")

	stored, err := s.Cache.Get(ctx, otpKey(contact))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return ErrOTPNotFound
		}
		l.Error("otp_verify_failed", "status", 500, "reason", "cannot read code", "error", err)
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	if subtle.ConstantTimeCompare(stored, []byte(code)) != 1 {
		return ErrOTPMismatch
	}

	consumed, err := s.Cache.CompareAndDelete(ctx, otpKey(contact), stored)
	if err != nil {
		l.Error("otp_verify_failed", "status", 500, "reason", "cannot consume code", "error", err)
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if !consumed {
		return ErrOTPNotFound
	}
	return nil
}

func (s *OTPService) releaseThrottle(ctx context.Context, contact string) {
	if s.ResendInterval <= 0 {
		return
	}
	if err := s.Cache.Delete(ctx, otpThrottleKey(contact)); err != nil {
		logging.FromContext(ctx).Warn("otp_throttle_release_failed", "error", err)
	}
}
