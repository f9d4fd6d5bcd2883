package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/gate"
)

// gateMiddleware denies the request unless the context account passes gate.Check for res.
// Lecture-scoped rules are applied by the handlers, once the lecture is known.
func gateMiddleware(res gate.Resource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			var principal *account.Account
			if acc, err := getContextAccount(ctx); err == nil {
				principal = &acc
			}
			if err := gate.Check(principal, res); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// joinRateLimiter limits join attempts per account. It must run after authMiddleware.
func joinRateLimiter(conf core.RateLimitConfig) echo.MiddlewareFunc {
	perMinute := conf.JoinPerMinute
	if perMinute <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / time.Minute.Seconds()),
		Burst:     conf.JoinBurst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			acc, err := getContextAccount(ctx)
			if err != nil {
				return ctx.RealIP(), nil
			}
			return acc.ID, nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return gate.ErrUnauthenticated
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return errRateLimited
		},
	})
}
