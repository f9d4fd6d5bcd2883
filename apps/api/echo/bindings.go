package echoapi

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/enrollment"
	"github.com/trezcool/gatheria/core/lecture"
)

type (
	LoginRequest struct {
		Email      string `json:"email" validate:"required"`
		Password   string `json:"password" validate:"required"`
		RememberMe bool   `json:"rememberMe"`
	}

	LoginResponse struct {
		AccessToken     string        `json:"accessToken"`
		Role            account.Role  `json:"role"`
		Email           string        `json:"email"`
		Name            string        `json:"name"`
		Affiliation     string        `json:"affiliation,omitempty"`
		Phone           string        `json:"phone"`
		Activate        bool          `json:"activate"`
		ActivationState account.State `json:"activationState"`
		ExpiresAt       time.Time     `json:"expiresAt"`
	}

	VerificationConfirmRequest struct {
		Token string `json:"token" validate:"required"`
	}

	JoinRequest struct {
		Code string `json:"code" validate:"required,notblank,max=32"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	LectureSummary struct {
		ID         string          `json:"id"`
		Name       string          `json:"name"`
		Code       string          `json:"code"`
		Identifier string          `json:"identifier"`
		Instructor *InstructorInfo `json:"instructor,omitempty"`
		CreatedAt  *time.Time      `json:"createdAt,omitempty"`
	}

	InstructorInfo struct {
		Name  string `json:"name"`
		Email string `json:"email,omitempty"`
	}

	JoinResponse struct {
		ID         string    `json:"id"`
		Name       string    `json:"name"`
		Code       string    `json:"code"`
		Identifier string    `json:"identifier"`
		JoinedAt   time.Time `json:"joinedAt"`
		Created    bool      `json:"created"`
	}

	StudentInfo struct {
		ID       string    `json:"id"`
		Name     string    `json:"name"`
		Email    string    `json:"email"`
		JoinedAt time.Time `json:"joinedAt"`
	}

	LectureDetail struct {
		ID         string         `json:"id"`
		Name       string         `json:"name"`
		Code       string         `json:"code"`
		Identifier string         `json:"identifier"`
		Instructor InstructorInfo `json:"instructor"`
		Students   []StudentInfo  `json:"students"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (vr *VerificationConfirmRequest) Validate(validate *validator.Validate) error {
	vr.Token = core.CleanString(vr.Token)
	return validate.Struct(vr)
}

func (jr *JoinRequest) Validate(validate *validator.Validate) error {
	jr.Code = lecture.NormalizeCode(jr.Code)
	return validate.Struct(jr)
}

func newLoginResponse(acc account.Account, token string, expiresAt time.Time) LoginResponse {
	return LoginResponse{
		AccessToken:     token,
		Role:            acc.Role,
		Email:           acc.Email,
		Name:            acc.Name,
		Affiliation:     acc.Affiliation,
		Phone:           acc.Phone,
		Activate:        acc.IsActive(),
		ActivationState: acc.State,
		ExpiresAt:       expiresAt,
	}
}

func newLectureSummary(l lecture.Lecture) LectureSummary {
	createdAt := l.CreatedAt
	return LectureSummary{
		ID:         l.ID,
		Name:       l.Name,
		Code:       l.Code,
		Identifier: l.Identifier(),
		CreatedAt:  &createdAt,
	}
}

func newEnrolledSummary(el enrollment.EnrolledLecture) LectureSummary {
	return LectureSummary{
		ID:         el.Lecture.ID,
		Name:       el.Lecture.Name,
		Code:       el.Lecture.Code,
		Identifier: el.Lecture.Identifier(),
		Instructor: &InstructorInfo{Name: el.InstructorName, Email: el.InstructorEmail},
	}
}

func newJoinResponse(j enrollment.Joined) JoinResponse {
	return JoinResponse{
		ID:         j.Lecture.ID,
		Name:       j.Lecture.Name,
		Code:       j.Lecture.Code,
		Identifier: j.Lecture.Identifier(),
		JoinedAt:   j.Membership.JoinedAt,
		Created:    j.Created,
	}
}

func newLectureDetail(l lecture.Lecture, owner account.Account, members []enrollment.Member) LectureDetail {
	students := make([]StudentInfo, 0, len(members))
	for _, m := range members {
		students = append(students, StudentInfo{ID: m.AccountID, Name: m.Name, Email: m.Email, JoinedAt: m.JoinedAt})
	}
	return LectureDetail{
		ID:         l.ID,
		Name:       l.Name,
		Code:       l.Code,
		Identifier: l.Identifier(),
		Instructor: InstructorInfo{Name: owner.Name, Email: owner.Email},
		Students:   students,
	}
}
