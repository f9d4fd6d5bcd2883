package lecture

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/gate"
)

var (
	// errors
	ErrNotFound           = core.NewError(core.KindNotFound, "lecture not found")
	ErrCodeNotFound       = core.NewError(core.KindCodeNotFound, "no lecture matches this code")
	ErrCodeTaken          = core.NewError(core.KindConflict, "lecture code already in use")
	ErrCodeSpaceExhausted = core.NewError(core.KindCodeSpaceExhausted, "could not generate a unique lecture code, try again later")
)

type (
	Repository interface {
		// CreateLecture fails with ErrCodeTaken when the code is already used by another lecture.
		CreateLecture(ctx context.Context, l Lecture, exec ...core.DBExecutor) (Lecture, error)
		GetLectureByID(ctx context.Context, id string, exec ...core.DBExecutor) (Lecture, error)
		// GetLectureByCode fails with ErrCodeNotFound.
		GetLectureByCode(ctx context.Context, code string, exec ...core.DBExecutor) (Lecture, error)
		// LockLectureByCode is GetLectureByCode holding a shared row lock until the transaction of exec ends.
		LockLectureByCode(ctx context.Context, code string, exec ...core.DBExecutor) (Lecture, error)
		// UpdateLectureCode replaces the code in a single write and fails with ErrCodeTaken on collision.
		UpdateLectureCode(ctx context.Context, id, code string, at time.Time, exec ...core.DBExecutor) (Lecture, error)
		ListLecturesByOwner(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]Lecture, error)
	}

	Service struct {
		repo Repository
		conf *core.Config
	}
)

func NewService(repo Repository, conf *core.Config) *Service {
	return &Service{repo: repo, conf: conf}
}

// Create registers a new lecture owned by owner, with a freshly generated code.
func (svc *Service) Create(ctx context.Context, owner account.Account, nl NewLecture) (Lecture, error) {
	if err := gate.Check(&owner, gate.Resource{Role: account.RoleInstructor}); err != nil {
		return Lecture{}, err
	}

	now := core.Now()
	l := Lecture{
		ID:        uuid.New().String(),
		Name:      nl.Name,
		OwnerID:   owner.ID,
		CreatedAt: now,
	}
	return svc.withFreshCode(func(code string) (Lecture, error) {
		l.Code = code
		l.CodeCreatedAt = now
		return svc.repo.CreateLecture(ctx, l)
	})
}

// RotateCode replaces the code of a lecture owned by caller. The previous code stops resolving at once;
// memberships are kept.
func (svc *Service) RotateCode(ctx context.Context, caller account.Account, id string) (Lecture, error) {
	if err := gate.Check(&caller, gate.Resource{Role: account.RoleInstructor}); err != nil {
		return Lecture{}, err
	}
	l, err := svc.repo.GetLectureByID(ctx, id)
	if err != nil {
		return Lecture{}, err
	}
	if l.OwnerID != caller.ID {
		return Lecture{}, gate.ErrNotLectureOwner
	}

	return svc.withFreshCode(func(code string) (Lecture, error) {
		return svc.repo.UpdateLectureCode(ctx, l.ID, code, core.Now())
	})
}

// withFreshCode calls write with new codes until one is not taken, up to the configured number of attempts.
func (svc *Service) withFreshCode(write func(code string) (Lecture, error)) (Lecture, error) {
	attempts := svc.conf.Lecture.CodeMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		code, err := generateCodeFunc(svc.conf.Lecture.CodeLength)
		if err != nil {
			return Lecture{}, errors.Wrap(err, "generating code")
		}
		l, err := write(code)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return Lecture{}, errors.Wrap(err, "saving lecture code")
		}
	}
	return Lecture{}, ErrCodeSpaceExhausted
}

// ResolveCode finds the lecture currently using code. Every miss looks the same.
func (svc *Service) ResolveCode(ctx context.Context, code string) (Lecture, error) {
	if code = NormalizeCode(code); code == "" {
		return Lecture{}, ErrCodeNotFound
	}
	return svc.repo.GetLectureByCode(ctx, code)
}

// ResolveCodeForShare is ResolveCode inside the transaction of exec: a concurrent rotation of the lecture
// waits for that transaction to end.
func (svc *Service) ResolveCodeForShare(ctx context.Context, code string, exec core.DBExecutor) (Lecture, error) {
	if code = NormalizeCode(code); code == "" {
		return Lecture{}, ErrCodeNotFound
	}
	return svc.repo.LockLectureByCode(ctx, code, exec)
}

// GetByIdentifier finds a lecture by its `{code}-{id}` identifier or bare id.
func (svc *Service) GetByIdentifier(ctx context.Context, identifier string) (Lecture, error) {
	id, ok := ParseIdentifier(identifier)
	if !ok {
		return Lecture{}, ErrNotFound
	}
	return svc.repo.GetLectureByID(ctx, id)
}

func (svc *Service) ListOwned(ctx context.Context, ownerID string) ([]Lecture, error) {
	return svc.repo.ListLecturesByOwner(ctx, ownerID)
}
