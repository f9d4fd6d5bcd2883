// Package gate decides whether a principal may reach a resource.
// It holds no state: every decision is made from the account as it is stored right now.
package gate

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
)

var (
	// errors
	ErrUnauthenticated  = core.NewError(core.KindUnauthenticated, "authentication required")
	ErrAccountNotActive = account.ErrAccountNotActive
	ErrForbiddenRole    = core.NewError(core.KindForbiddenRole, "your role cannot access this resource")
	ErrNotLectureMember = core.NewError(core.KindNotLectureMember, "you are not a member of this lecture")
	ErrNotLectureOwner  = core.NewError(core.KindNotLectureOwner, "only the lecture owner can do this")
)

type (
	// LectureRef identifies the lecture a request targets.
	LectureRef struct {
		ID      string
		OwnerID string
	}

	// Resource describes what a request needs from its principal.
	Resource struct {
		Role          account.Role // empty: any role
		AllowInactive bool         // reachable before activation (own profile, verification request, logout)
		Lecture       *LectureRef  // principal must own or be a member of it
		OwnerOnly     bool         // with Lecture: membership is not enough
	}

	MembershipChecker interface {
		IsMember(ctx context.Context, lectureID, accountID string) (bool, error)
	}

	Gate struct {
		members MembershipChecker
	}
)

func New(members MembershipChecker) *Gate {
	return &Gate{members: members}
}

// Check applies every rule that does not need storage: authentication, activation and role.
func Check(principal *account.Account, res Resource) error {
	if principal == nil || principal.ID == "" {
		return ErrUnauthenticated
	}
	if !res.AllowInactive {
		if principal.IsDeactivated() {
			return ErrAccountNotActive.Errorf("account is deactivated")
		}
		if principal.State != account.StateActive {
			return ErrAccountNotActive.Errorf("account is %s", principal.State)
		}
	}
	if res.Role != "" && principal.Role != res.Role {
		return ErrForbiddenRole
	}
	return nil
}

// Authorize denies with, in order: ErrUnauthenticated, ErrAccountNotActive, ErrForbiddenRole, then
// ErrNotLectureOwner / ErrNotLectureMember.
func (g *Gate) Authorize(ctx context.Context, principal *account.Account, res Resource) error {
	if err := Check(principal, res); err != nil {
		return err
	}
	if res.Lecture == nil || res.Lecture.OwnerID == principal.ID {
		return nil
	}
	if res.OwnerOnly {
		return ErrNotLectureOwner
	}

	ok, err := g.members.IsMember(ctx, res.Lecture.ID, principal.ID)
	if err != nil {
		return errors.Wrap(err, "checking lecture membership")
	}
	if !ok {
		return ErrNotLectureMember
	}
	return nil
}
