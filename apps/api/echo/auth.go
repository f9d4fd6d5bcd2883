package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/gate"
	"github.com/trezcool/gatheria/core/session"
)

const (
	contextAccountKey = "account"
	contextTokenKey   = "token"
)

// authMiddleware resolves the bearer token to its account and stores it, with the token, in the echo.Context.
// The account is read from storage on every request.
func authMiddleware(svc *session.Service) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		Validator: func(token string, ctx echo.Context) (bool, error) {
			acc, _, err := svc.Validate(ctx.Request().Context(), token)
			if err != nil {
				return false, err
			}
			ctx.Set(contextAccountKey, acc)
			ctx.Set(contextTokenKey, token)
			return true, nil
		},
		ErrorHandler: func(err error, ctx echo.Context) error {
			var missing *middleware.ErrKeyAuthMissing
			if errors.As(err, &missing) {
				return gate.ErrUnauthenticated
			}
			return errors.Wrap(err, "validating session")
		},
	})
}

func getContextAccount(ctx echo.Context) (account.Account, error) {
	if acc, ok := ctx.Get(contextAccountKey).(account.Account); ok {
		return acc, nil
	}
	return account.Account{}, gate.ErrUnauthenticated
}

func getContextToken(ctx echo.Context) string {
	token, _ := ctx.Get(contextTokenKey).(string)
	return token
}
