package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/inventory/pkg/logging"
	"github.com/Skotchmaster/inventory/pkg/tokens"
)

const (
	CtxUsername = "username"
	CtxRole     = "role"
)

type Verifier interface {
	Verify(token string) (*tokens.Identity, error)
}

// Authenticate is the first stage of the chain. Every failure is a 401; the
// request never reaches role checks or handlers.
func Authenticate(v Verifier, secureCookie bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := logging.FromContext(c.Request().Context())

			raw, fromCookie := ExtractToken(c)
			if raw == "" {
				l.Warn("authenticate_failed", "status", 401, "reason", "missing token")
				return echo.NewHTTPError(http.StatusUnauthorized, "login first")
			}

			id, err := v.Verify(raw)
			if err != nil {
				if fromCookie {
					c.SetCookie(tokens.ClearSessionCookie(secureCookie))
				}
				reason := "invalid token"
				if errors.Is(err, tokens.ErrExpiredToken) {
					reason = "token expired"
				}
				l.Warn("authenticate_failed", "status", 401, "reason", reason, "error", err)
				return echo.NewHTTPError(http.StatusUnauthorized, reason)
			}

			setUserContext(c, id)
			return next(c)
		}
	}
}

// RequireRole must run after Authenticate.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "user is not authenticated")
			}
			if id.Role != role {
				logging.FromContext(c.Request().Context()).Warn("authorize_failed",
					"status", 403, "required_role", role, "role", id.Role)
				return echo.NewHTTPError(http.StatusForbidden, "access denied")
			}
			return next(c)
		}
	}
}

// ExtractToken prefers the session cookie over the Authorization header.
func ExtractToken(c echo.Context) (string, bool) {
	if ck, err := c.Cookie(tokens.CookieName); err == nil && ck.Value != "" {
		return ck.Value, true
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token), false
	}
	return "", false
}

// IdentityFrom reads what Authenticate stored on the context.
func IdentityFrom(c echo.Context) (tokens.Identity, bool) {
	username, _ := c.Get(CtxUsername).(string)
	role, _ := c.Get(CtxRole).(string)
	if username == "" {
		return tokens.Identity{}, false
	}
	return tokens.Identity{Username: username, Role: role}, true
}

func setUserContext(c echo.Context, id *tokens.Identity) {
	c.Set(CtxUsername, id.Username)
	c.Set(CtxRole, id.Role)

	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("username", id.Username)
	c.SetRequest(c.Request().WithContext(logging.IntoContext(ctx, l)))
}
