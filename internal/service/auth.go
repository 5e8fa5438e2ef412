package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Skotchmaster/inventory/internal/models"
	"github.com/Skotchmaster/inventory/internal/notify"
	"github.com/Skotchmaster/inventory/pkg/events"
	pkghash "github.com/Skotchmaster/inventory/pkg/hash"
	"github.com/Skotchmaster/inventory/pkg/logging"
	"github.com/Skotchmaster/inventory/pkg/tokens"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	minUsernameLen = 6
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByPhone(ctx context.Context, phone string) (*models.User, error)
}

type AuthService struct {
	Users  UserStore
	Tokens *tokens.Service
	OTP    *OTPService
	Events events.Publisher
}

type RegisterInput struct {
	Username string
	Password string
	Role     string
	Email    *string
	Phone    *string
}

type Session struct {
	Token     string
	ExpiresAt time.Time
	Username  string
	Role      string
}

func (in *RegisterInput) normalize() error {
	in.Username = strings.TrimSpace(in.Username)
	if len(in.Username) < minUsernameLen {
		return validationf("username must be at least %d characters", minUsernameLen)
	}
	if in.Password == "" {
		return validationf("password is required")
	}
	switch in.Role {
	case "":
		in.Role = RoleUser
	case RoleAdmin, RoleUser:
	default:
		return validationf("role must be %q or %q", RoleAdmin, RoleUser)
	}
	if in.Email != nil {
		e := strings.TrimSpace(*in.Email)
		if !strings.Contains(e, "@") {
			return validationf("email is invalid")
		}
		in.Email = &e
	}
	if in.Phone != nil {
		p := strings.TrimSpace(*in.Phone)
		if p == "" {
			return validationf("phone is empty")
		}
		in.Phone = &p
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if err := in.normalize(); err != nil {
		return nil, err
	}

	pwHash, err := pkghash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := &models.User{
		Username:     in.Username,
		PasswordHash: pwHash,
		Role:         in.Role,
		Email:        in.Email,
		Phone:        in.Phone,
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		err = storeErr(err)
		if errors.Is(err, ErrConflict) {
			l.Warn("register_failed", "status", 409, "reason", "user already exists", "username", in.Username)
		} else {
			l.Error("register_failed", "status", 500, "reason", "cannot create user", "error", err)
		}
		return nil, err
	}

	publish(ctx, s.Events, events.TopicUsers, user.Username, events.New(events.UserRegistered, map[string]any{
		"userId":   user.ID,
		"username": user.Username,
		"role":     user.Role,
	}))
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	if strings.TrimSpace(username) == "" || password == "" {
		return nil, validationf("username and password are required")
	}

	user, err := s.Users.FindUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if err = storeErr(err); errors.Is(err, ErrNotFound) {
			l.Warn("login_failed", "status", 404, "reason", "no such user")
			return nil, ErrUserNotFound
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}

	if !pkghash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 400, "reason", "incorrect password")
		return nil, ErrInvalidPassword
	}

	return s.startSession(ctx, user, "password")
}

func validChannel(contactType string) bool {
	return contactType == notify.ChannelEmail || contactType == notify.ChannelPhone
}

// SendLoginOTP delivers a code to a registered contact.
func (s *AuthService) SendLoginOTP(ctx context.Context, contact, contactType string) error {
	return s.issueLoginOTP(ctx, contact, contactType, s.OTP.Issue)
}

func (s *AuthService) ResendLoginOTP(ctx context.Context, contact, contactType string) error {
	return s.issueLoginOTP(ctx, contact, contactType, s.OTP.Resend)
}

func (s *AuthService) issueLoginOTP(ctx context.Context, contact, contactType string, issue func(context.Context, string, string) (string, error)) error {
	l := logging.FromContext(ctx).With("svc", "auth.send_otp", "channel", contactType)

	if !validChannel(contactType) {
		return validationf("invalid contact type")
	}
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return validationf("contact is required")
	}

	if _, err := s.findByContact(ctx, contact, contactType); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			l.Warn("send_otp_failed", "status", 404, "reason", "contact is not registered")
		}
		return err
	}

	_, err := issue(ctx, contact, contactType)
	return err
}

// VerifyLoginOTP consumes the code and opens a session for the contact's owner.
func (s *AuthService) VerifyLoginOTP(ctx context.Context, contact, code string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.verify_otp")

	contact = strings.TrimSpace(contact)
	if contact == "" || code == "" {
		return nil, validationf("contact and inputOtp are required")
	}

	if err := s.OTP.Verify(ctx, contact, code); err != nil {
		l.Warn("verify_otp_failed", "reason", err.Error())
		return nil, err
	}

	user, err := s.findByContact(ctx, contact, notify.ChannelEmail)
	if errors.Is(err, ErrUserNotFound) {
		user, err = s.findByContact(ctx, contact, notify.ChannelPhone)
	}
	if err != nil {
		return nil, err
	}

	return s.startSession(ctx, user, "otp")
}

func (s *AuthService) findByContact(ctx context.Context, contact, contactType string) (*models.User, error) {
	find := s.Users.FindUserByEmail
	if contactType == notify.ChannelPhone {
		find = s.Users.FindUserByPhone
	}
	user, err := find(ctx, contact)
	if err != nil {
		if err = storeErr(err); errors.Is(err, ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) startSession(ctx context.Context, user *models.User, method string) (*Session, error) {
	token, exp, err := s.Tokens.Issue(tokens.Identity{Username: user.Username, Role: user.Role})
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	publish(ctx, s.Events, events.TopicUsers, user.Username, events.New(events.UserLoggedIn, map[string]any{
		"userId":   user.ID,
		"username": user.Username,
		"method":   method,
	}))

	return &Session{Token: token, ExpiresAt: exp, Username: user.Username, Role: user.Role}, nil
}
