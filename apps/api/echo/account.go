package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/gate"
	"github.com/trezcool/gatheria/core/session"
)

var errUnknownRole = core.NewError(core.KindNotFound, "unknown role")

type accountApi struct {
	svc      *account.Service
	sessions *session.Service
	validate *validator.Validate
}

func registerAccountAPI(
	g *echo.Group,
	auth echo.MiddlewareFunc,
	svc *account.Service,
	sessions *session.Service,
	validate *validator.Validate,
) {
	api := accountApi{
		svc:      svc,
		sessions: sessions,
		validate: validate,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/:role/register", api.register)
	ag.POST("/:role/login", api.login)
	ag.POST("/email-verification/confirm", api.confirmVerification)

	// authed endpoints, reachable before activation
	inactive := gateMiddleware(gate.Resource{AllowInactive: true})
	ag.POST("/email-verification", api.requestVerification, auth, inactive)
	ag.GET("/me", api.me, auth, inactive)
	ag.POST("/logout", api.logout, auth, inactive)
}

func pathRole(ctx echo.Context) (account.Role, error) {
	role, ok := account.ParseRole(ctx.Param("role"))
	if !ok {
		return "", errUnknownRole
	}
	return role, nil
}

// Handlers

func (api *accountApi) register(ctx echo.Context) error {
	role, err := pathRole(ctx)
	if err != nil {
		return err
	}

	var data account.NewAccount
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	data.Role = role
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	acc, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering account")
	}
	return ctx.JSON(http.StatusCreated, acc)
}

func (api *accountApi) login(ctx echo.Context) error {
	role, err := pathRole(ctx)
	if err != nil {
		return err
	}

	var data LoginRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	acc, err := api.svc.Authenticate(reqCtx, role, data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	s, token, err := api.sessions.Issue(reqCtx, acc.ID, data.RememberMe)
	if err != nil {
		return errors.Wrap(err, "issuing session")
	}
	return ctx.JSON(http.StatusOK, newLoginResponse(acc, token, s.ExpiresAt))
}

func (api *accountApi) requestVerification(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.RequestVerification(ctx.Request().Context(), acc, ctx.QueryParam("email")); err != nil {
		return errors.Wrap(err, "requesting email verification")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If your account is awaiting email verification, a verification link is on its way.",
	})
}

func (api *accountApi) confirmVerification(ctx echo.Context) error {
	var data VerificationConfirmRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerificationConfirmRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acc, err := api.svc.VerifyEmail(ctx.Request().Context(), data.Token)
	if err != nil {
		return errors.Wrap(err, "verifying email")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *accountApi) me(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *accountApi) logout(ctx echo.Context) error {
	if err := api.sessions.Revoke(ctx.Request().Context(), getContextToken(ctx)); err != nil {
		return errors.Wrap(err, "revoking session")
	}
	return ctx.NoContent(http.StatusNoContent)
}
