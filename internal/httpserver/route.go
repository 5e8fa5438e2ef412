package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/inventory/pkg/logging"
	middleware "github.com/Skotchmaster/inventory/pkg/middleware/auth"
)

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Deps struct {
	AuthHandler    *AuthHTTP
	CatalogHandler *CatalogHTTP
	Verifier       middleware.Verifier
	SecureCookie   bool
	AdminRole      string
	// AuthRateLimit is requests per second per client IP on /api/auth; 0 disables it.
	AuthRateLimit float64
	Ready         []Check
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", ready(d.Ready))

	api := e.Group("/api")

	var authMW []echo.MiddlewareFunc
	if d.AuthRateLimit > 0 {
		store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(d.AuthRateLimit),
			Burst:     max(1, int(d.AuthRateLimit)),
			ExpiresIn: 3 * time.Minute,
		})
		authMW = append(authMW, echomw.RateLimiter(store))
	}
	auth := api.Group("/auth", authMW...)
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/login/send-otp", d.AuthHandler.SendOTP)
	auth.POST("/login/verify-otp", d.AuthHandler.VerifyOTP)
	auth.POST("/login/resend-otp", d.AuthHandler.ResendOTP)

	api.POST("/logout", d.AuthHandler.Logout)

	products := api.Group("/products", middleware.Authenticate(d.Verifier, d.SecureCookie))
	products.GET("", d.CatalogHandler.GetProducts)
	products.POST("", d.CatalogHandler.CreateProduct)
	products.GET("/stats", d.CatalogHandler.Stats, middleware.RequireRole(d.AdminRole))
	products.GET("/search", d.CatalogHandler.SearchProducts)
	products.GET("/:id", d.CatalogHandler.GetProduct)
	products.PUT("/:id", d.CatalogHandler.UpdateProduct)
	products.DELETE("/:id", d.CatalogHandler.DeleteProduct)
}

func ready(checks []Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		for _, chk := range checks {
			if err := chk.Probe(ctx); err != nil {
				logging.FromContext(ctx).Warn("readiness_failed", "check", chk.Name, "error", err)
				return echo.NewHTTPError(http.StatusServiceUnavailable, chk.Name+" unavailable")
			}
		}
		return c.NoContent(http.StatusOK)
	}
}
