package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/inventory/internal/service"
	"github.com/Skotchmaster/inventory/internal/transport"
	"github.com/Skotchmaster/inventory/pkg/logging"
	"github.com/Skotchmaster/inventory/pkg/tokens"
)

type AuthHTTP struct {
	Svc          *service.AuthService
	SecureCookie bool
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Svc.Register(ctx, service.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Email:    req.Email,
		Phone:    req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrConflict):
			return echo.NewHTTPError(http.StatusConflict, "user already exists")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot register user").SetInternal(err)
		}
	}

	l.Info("register_success", "username", user.Username)
	return c.JSON(http.StatusOK, transport.OK("user registered successfully", user))
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	sess, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrUserNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "no such user, register first")
		case errors.Is(err, service.ErrInvalidPassword):
			return echo.NewHTTPError(http.StatusBadRequest, "incorrect password")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot log in").SetInternal(err)
		}
	}

	return h.sessionResponse(c, sess, "logged in successfully")
}

func (h *AuthHTTP) SendOTP(c echo.Context) error {
	return h.issueOTP(c, "auth.send_otp", h.Svc.SendLoginOTP)
}

func (h *AuthHTTP) ResendOTP(c echo.Context) error {
	return h.issueOTP(c, "auth.resend_otp", h.Svc.ResendLoginOTP)
}

func (h *AuthHTTP) issueOTP(c echo.Context, name string, issue func(ctx context.Context, contact, contactType string) error) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", name)

	var req transport.SendOTPRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("send_otp_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := issue(ctx, req.Contact, req.ContactType); err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrUserNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "contact is not registered")
		case errors.Is(err, service.ErrOTPThrottled):
			return echo.NewHTTPError(http.StatusTooManyRequests, "otp requested too recently")
		case errors.Is(err, service.ErrNotificationFailed):
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot send otp").SetInternal(err)
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot issue otp").SetInternal(err)
		}
	}

	l.Info("send_otp_success", "channel", req.ContactType)
	return c.JSON(http.StatusOK, transport.OK("otp sent", nil))
}

func (h *AuthHTTP) VerifyOTP(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.verify_otp")

	var req transport.VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("verify_otp_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	sess, err := h.Svc.VerifyLoginOTP(ctx, req.Contact, req.InputOTP)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrOTPNotFound), errors.Is(err, service.ErrOTPMismatch):
			return echo.NewHTTPError(http.StatusInternalServerError, "invalid or expired otp")
		case errors.Is(err, service.ErrUserNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "contact is not registered")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot verify otp").SetInternal(err)
		}
	}

	return h.sessionResponse(c, sess, "otp verified successfully")
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	c.SetCookie(tokens.ClearSessionCookie(h.SecureCookie))
	return c.JSON(http.StatusOK, transport.OK("logged out", nil))
}

func (h *AuthHTTP) sessionResponse(c echo.Context, sess *service.Session, message string) error {
	c.SetCookie(tokens.SessionCookie(sess.Token, h.SecureCookie))
	logging.FromContext(c.Request().Context()).Info("login_success", "username", sess.Username, "role", sess.Role)
	return c.JSON(http.StatusOK, transport.OK(message, transport.SessionResponse{
		Token: sess.Token,
		Role:  sess.Role,
	}))
}
