package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/enrollment"
	"github.com/trezcool/gatheria/core/gate"
	"github.com/trezcool/gatheria/core/lecture"
)

type lectureApi struct {
	svc         *lecture.Service
	enrollments *enrollment.Service
	accounts    *account.Service
	gate        *gate.Gate
	validate    *validator.Validate
}

func registerLectureAPI(
	g *echo.Group,
	auth echo.MiddlewareFunc,
	svc *lecture.Service,
	enrollments *enrollment.Service,
	accounts *account.Service,
	gt *gate.Gate,
	validate *validator.Validate,
	rateLimit core.RateLimitConfig,
) {
	api := lectureApi{
		svc:         svc,
		enrollments: enrollments,
		accounts:    accounts,
		gate:        gt,
		validate:    validate,
	}

	lg := g.Group("/lectures", auth)
	instructor := gateMiddleware(gate.Resource{Role: account.RoleInstructor})
	student := gateMiddleware(gate.Resource{Role: account.RoleStudent})

	lg.GET("", api.listOwned, instructor)
	lg.POST("", api.create, instructor)
	lg.GET("/enrolled", api.listEnrolled, student)
	lg.POST("/join", api.join, student, joinRateLimiter(rateLimit))

	// detail endpoints
	lg.GET("/:identifier", api.retrieve, gateMiddleware(gate.Resource{}))
	lg.POST("/:identifier/code", api.rotateCode, instructor)
}

// authorize applies the lecture-scoped rules of the gate to the lecture of the `:identifier` path param.
// An unknown lecture is denied like one the caller is not in.
func (api *lectureApi) authorize(ctx echo.Context, ownerOnly bool) (lecture.Lecture, account.Account, error) {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return lecture.Lecture{}, account.Account{}, err
	}
	reqCtx := ctx.Request().Context()
	l, err := api.svc.GetByIdentifier(reqCtx, ctx.Param("identifier"))
	if err != nil {
		if !errors.Is(err, lecture.ErrNotFound) {
			return lecture.Lecture{}, account.Account{}, errors.Wrap(err, "finding lecture")
		}
		if ownerOnly {
			return lecture.Lecture{}, account.Account{}, gate.ErrNotLectureOwner
		}
		return lecture.Lecture{}, account.Account{}, gate.ErrNotLectureMember
	}
	if err = api.gate.Authorize(reqCtx, &acc, gate.Resource{Lecture: l.Ref(), OwnerOnly: ownerOnly}); err != nil {
		return lecture.Lecture{}, account.Account{}, err
	}
	return l, acc, nil
}

// Handlers

func (api *lectureApi) listOwned(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	lectures, err := api.svc.ListOwned(ctx.Request().Context(), acc.ID)
	if err != nil {
		return errors.Wrap(err, "listing owned lectures")
	}
	res := make([]LectureSummary, 0, len(lectures))
	for _, l := range lectures {
		res = append(res, newLectureSummary(l))
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *lectureApi) create(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}

	var data lecture.NewLecture
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLecture")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	l, err := api.svc.Create(ctx.Request().Context(), acc, data)
	if err != nil {
		return errors.Wrap(err, "creating lecture")
	}
	return ctx.JSON(http.StatusCreated, newLectureSummary(l))
}

func (api *lectureApi) listEnrolled(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	enrolled, err := api.enrollments.ListEnrolled(ctx.Request().Context(), acc.ID)
	if err != nil {
		return errors.Wrap(err, "listing enrolled lectures")
	}
	res := make([]LectureSummary, 0, len(enrolled))
	for _, el := range enrolled {
		res = append(res, newEnrolledSummary(el))
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *lectureApi) join(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}

	var data JoinRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	joined, err := api.enrollments.JoinByCode(ctx.Request().Context(), acc, data.Code)
	if err != nil {
		return errors.Wrap(err, "joining lecture")
	}
	return ctx.JSON(http.StatusOK, newJoinResponse(joined))
}

func (api *lectureApi) retrieve(ctx echo.Context) error {
	l, _, err := api.authorize(ctx, false)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	owner, err := api.accounts.GetByID(reqCtx, l.OwnerID)
	if err != nil {
		return errors.Wrap(err, "finding lecture owner")
	}
	members, err := api.enrollments.Roster(reqCtx, l.ID)
	if err != nil {
		return errors.Wrap(err, "listing lecture members")
	}
	return ctx.JSON(http.StatusOK, newLectureDetail(l, owner, members))
}

func (api *lectureApi) rotateCode(ctx echo.Context) error {
	l, acc, err := api.authorize(ctx, true)
	if err != nil {
		return err
	}
	if l, err = api.svc.RotateCode(ctx.Request().Context(), acc, l.ID); err != nil {
		return errors.Wrap(err, "rotating lecture code")
	}
	return ctx.JSON(http.StatusOK, newLectureSummary(l))
}
