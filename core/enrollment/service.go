package enrollment

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/gate"
	"github.com/trezcool/gatheria/core/lecture"
)

var (
	// errors
	ErrNotFound        = core.NewError(core.KindNotFound, "membership not found")
	ErrConflict        = core.NewError(core.KindConflict, "membership already exists")
	ErrOwnerCannotJoin = core.NewError(core.KindOwnerCannotJoin, "you own this lecture and cannot join it")
)

type (
	// Membership links an account to a lecture it joined. There is at most one per (lecture, account).
	Membership struct {
		LectureID string    `json:"lectureId"`
		AccountID string    `json:"accountId"`
		JoinedAt  time.Time `json:"joinedAt"` // UTC
	}

	// Joined is the outcome of JoinByCode. Created is false when the membership already existed.
	Joined struct {
		Membership Membership
		Lecture    lecture.Lecture
		Created    bool
	}

	EnrolledLecture struct {
		Lecture         lecture.Lecture
		InstructorName  string
		InstructorEmail string
		JoinedAt        time.Time
	}

	Member struct {
		AccountID string
		Name      string
		Email     string
		JoinedAt  time.Time
	}

	Repository interface {
		// CreateMembership fails with ErrConflict when the membership exists. The failure must leave the
		// transaction of exec usable.
		CreateMembership(ctx context.Context, m Membership, exec ...core.DBExecutor) (Membership, error)
		GetMembership(ctx context.Context, lectureID, accountID string, exec ...core.DBExecutor) (Membership, error)
		DeleteMembership(ctx context.Context, lectureID, accountID string, exec ...core.DBExecutor) error
		ListEnrolledLectures(ctx context.Context, accountID string, exec ...core.DBExecutor) ([]EnrolledLecture, error)
		ListMembers(ctx context.Context, lectureID string, exec ...core.DBExecutor) ([]Member, error)
	}

	// CodeResolver is the part of the lecture registry joins need.
	CodeResolver interface {
		ResolveCodeForShare(ctx context.Context, code string, exec core.DBExecutor) (lecture.Lecture, error)
	}

	Service struct {
		tx       core.Transactor
		repo     Repository
		lectures CodeResolver
	}
)

var _ gate.MembershipChecker = (*Service)(nil)

func NewService(tx core.Transactor, repo Repository, lectures CodeResolver) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		lectures: lectures,
	}
}

// JoinByCode makes caller a member of the lecture currently using code.
// Joining again, concurrently or not, returns the existing membership with Created false.
func (svc *Service) JoinByCode(ctx context.Context, caller account.Account, code string) (Joined, error) {
	if err := gate.Check(&caller, gate.Resource{}); err != nil {
		return Joined{}, err
	}

	var joined Joined
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		l, err := svc.lectures.ResolveCodeForShare(ctx, code, exec)
		if err != nil {
			return err
		}
		if l.OwnerID == caller.ID {
			return ErrOwnerCannotJoin
		}

		m, err := svc.repo.CreateMembership(ctx, Membership{
			LectureID: l.ID,
			AccountID: caller.ID,
			JoinedAt:  core.Now(),
		}, exec)
		created := err == nil
		if errors.Is(err, ErrConflict) {
			m, err = svc.repo.GetMembership(ctx, l.ID, caller.ID, exec)
		}
		if err != nil {
			return errors.Wrap(err, "creating membership")
		}

		joined = Joined{Membership: m, Lecture: l, Created: created}
		return nil
	})
	if err != nil {
		return Joined{}, err
	}
	return joined, nil
}

// Leave removes the membership of accountID in lectureID.
func (svc *Service) Leave(ctx context.Context, lectureID, accountID string) error {
	return svc.repo.DeleteMembership(ctx, lectureID, accountID)
}

func (svc *Service) IsMember(ctx context.Context, lectureID, accountID string) (bool, error) {
	if _, err := svc.repo.GetMembership(ctx, lectureID, accountID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListEnrolled returns the lectures accountID joined, most recent first.
func (svc *Service) ListEnrolled(ctx context.Context, accountID string) ([]EnrolledLecture, error) {
	return svc.repo.ListEnrolledLectures(ctx, accountID)
}

// Roster returns the members of lectureID in the order they joined.
func (svc *Service) Roster(ctx context.Context, lectureID string) ([]Member, error) {
	return svc.repo.ListMembers(ctx, lectureID)
}
