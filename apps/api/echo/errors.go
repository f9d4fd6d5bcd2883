package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gatheria/core"
)

var kindStatus = map[core.Kind]int{
	core.KindInvalidCredentials: http.StatusUnauthorized,
	core.KindUnauthenticated:    http.StatusUnauthorized,
	core.KindInvalidToken:       http.StatusUnauthorized,
	core.KindExpiredToken:       http.StatusUnauthorized,
	core.KindAccountNotActive:   http.StatusForbidden,
	core.KindForbiddenRole:      http.StatusForbidden,
	core.KindNotLectureMember:   http.StatusForbidden,
	core.KindNotLectureOwner:    http.StatusForbidden,
	core.KindCodeNotFound:       http.StatusNotFound,
	core.KindNotFound:           http.StatusNotFound,
	core.KindOwnerCannotJoin:    http.StatusConflict,
	core.KindInvalidTransition:  http.StatusConflict,
	core.KindConflict:           http.StatusConflict,
	core.KindCodeSpaceExhausted: http.StatusServiceUnavailable,
	core.KindValidationFailed:   http.StatusBadRequest,
	core.KindRateLimited:        http.StatusTooManyRequests,
	core.KindInternal:           http.StatusInternalServerError,
}

var statusKind = map[int]core.Kind{
	http.StatusBadRequest:            core.KindValidationFailed,
	http.StatusUnauthorized:          core.KindUnauthenticated,
	http.StatusNotFound:              core.KindNotFound,
	http.StatusMethodNotAllowed:      core.KindNotFound,
	http.StatusUnsupportedMediaType:  core.KindValidationFailed,
	http.StatusRequestEntityTooLarge: core.KindValidationFailed,
	http.StatusTooManyRequests:       core.KindRateLimited,
}

var errRateLimited = core.NewError(core.KindRateLimited, "too many requests, slow down")

type errorResponse struct {
	Error   core.Kind         `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var res errorResponse

		switch origErr := errors.Cause(err).(type) {
		case *core.Error:
			res = errorResponse{Error: origErr.Kind, Message: origErr.Message}
		case validator.ValidationErrors:
			res = errorResponse{
				Error:   core.KindValidationFailed,
				Message: "invalid input",
				Fields:  core.TranslateValidationErrors(origErr, translator),
			}
		case *core.ValidationError:
			res = errorResponse{Error: core.KindValidationFailed, Message: origErr.Error()}
			if origErr.Fields != nil {
				res.Fields = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					res.Fields[fErr.Field] = fErr.Error
				}
			}
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			kind, ok := statusKind[origErr.Code]
			if !ok {
				kind = core.KindInternal
			}
			msg, ok := origErr.Message.(string)
			if !ok {
				msg = http.StatusText(origErr.Code)
			}
			res = errorResponse{Error: kind, Message: msg}
		default: // any other error is a server error
			res = errorResponse{Error: core.KindInternal, Message: http.StatusText(http.StatusInternalServerError)}

			args := []interface{}{errors.Wrap(err, res.Message)}
			if acc, aErr := getContextAccount(ctx); aErr == nil {
				args = append(args, acc.Principal())
			}
			logger.Error(res.Message, args...)

			if ctx.Echo().Debug {
				res.Message = err.Error()
			}
			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		code, ok := kindStatus[res.Error]
		if !ok {
			code = http.StatusInternalServerError
		}
		if he, isHTTP := errors.Cause(err).(*echo.HTTPError); isHTTP && res.Error == core.KindInternal {
			code = he.Code
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, res)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
