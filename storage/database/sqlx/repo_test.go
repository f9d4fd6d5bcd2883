package sqlxrepos_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/enrollment"
	"github.com/trezcool/gatheria/core/lecture"
	"github.com/trezcool/gatheria/core/session"
	"github.com/trezcool/gatheria/storage/database"
	"github.com/trezcool/gatheria/storage/database/sqlx"
	"github.com/trezcool/gatheria/tests"
)

func TestAccountRepository(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := sqlxrepos.NewAccountRepository(db)
	ctx := context.Background()

	acc := testutil.CreateAccount(t, repo, "Student", "student@test.kr", testutil.TestPassword, account.RoleStudent, account.StatePendingEmailVerification)

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetAccountByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, acc.Email, got.Email)
		assert.Equal(t, acc.State, got.State)
		assert.True(t, acc.CreatedAt.Equal(got.CreatedAt))
		assert.NoError(t, got.CheckPassword(testutil.TestPassword))

		got, err = repo.GetAccountByEmail(ctx, acc.Email)
		require.NoError(t, err)
		assert.Equal(t, acc.ID, got.ID)

		for _, id := range []string{"lol", "0f8fad5b-d9cb-469f-a165-70867728950e"} {
			_, err = repo.GetAccountByID(ctx, id)
			assert.True(t, errors.Is(err, account.ErrNotFound), "GetAccountByID(%q) error = %v", id, err)
		}
	})

	t.Run("email taken", func(t *testing.T) {
		dup := acc
		dup.ID = ""
		_, err := repo.CreateAccount(ctx, dup)
		assert.True(t, errors.Is(err, account.ErrEmailExists), "CreateAccount() error = %v", err)
	})

	t.Run("role and state must agree", func(t *testing.T) {
		_, err := repo.CreateAccount(ctx, account.Account{
			Email: "rejected.student@test.kr", Name: "X", Role: account.RoleStudent, State: account.StateRejected,
			StateChangedAt: core.Now(), CreatedAt: core.Now(), UpdatedAt: core.Now(),
		})
		assert.True(t, errors.Is(err, account.ErrInvalidTransition), "CreateAccount() error = %v", err)

		ok, err := repo.UpdateAccountState(ctx, acc.ID, account.StatePendingEmailVerification, account.StatePendingReview, "", core.Now())
		assert.False(t, ok)
		assert.True(t, errors.Is(err, account.ErrInvalidTransition), "UpdateAccountState() error = %v", err)
	})

	t.Run("compare and set state", func(t *testing.T) {
		now := core.Now()
		ok, err := repo.UpdateAccountState(ctx, acc.ID, account.StatePendingEmailVerification, account.StateActive, "", now)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.UpdateAccountState(ctx, acc.ID, account.StatePendingEmailVerification, account.StateActive, "", now)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetAccountByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, account.StateActive, got.State)
		assert.True(t, now.Equal(got.StateChangedAt))
	})

	t.Run("deactivation", func(t *testing.T) {
		now := core.Now()
		require.NoError(t, repo.SetDeactivated(ctx, acc.ID, &now))
		got, err := repo.GetAccountByID(ctx, acc.ID)
		require.NoError(t, err)
		require.NotNil(t, got.DeactivatedAt)
		assert.True(t, now.Equal(*got.DeactivatedAt))

		require.NoError(t, repo.SetDeactivated(ctx, acc.ID, nil))
		got, err = repo.GetAccountByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.Nil(t, got.DeactivatedAt)
	})
}

func TestSessionRepository(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := sqlxrepos.NewSessionRepository(db)
	ctx := context.Background()
	acc := testutil.CreateAccount(t, sqlxrepos.NewAccountRepository(db), "Student", "student@test.kr", "", account.RoleStudent, account.StateActive)

	now := core.Now()
	live, err := repo.CreateSession(ctx, session.Session{
		ID: "6f1c1b1e-6a4b-4d55-8d0f-0a3b8f0e5c11", TokenHash: []byte("live"), AccountID: acc.ID,
		IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = repo.CreateSession(ctx, session.Session{
		ID: "7a2d2c2f-7b5c-4e66-9e1a-1b4c9a1f6d22", TokenHash: []byte("expired"), AccountID: acc.ID,
		IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	got, err := repo.GetSessionByTokenHash(ctx, []byte("live"))
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)

	n, err := repo.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetSessionByTokenHash(ctx, []byte("expired"))
	assert.True(t, errors.Is(err, session.ErrNotFound), "GetSessionByTokenHash() error = %v", err)

	require.NoError(t, repo.DeleteSession(ctx, live.ID))
	assert.True(t, errors.Is(repo.DeleteSession(ctx, live.ID), session.ErrNotFound))

	t.Run("by account", func(t *testing.T) {
		for id, hash := range map[string]string{
			"8b3e3d3a-8c6d-4f77-8f2b-2c5d0b2a7e33": "a",
			"9c4f4e4b-9d7e-4a88-9a3c-3d6e1c3b8f44": "b",
		} {
			_, err := repo.CreateSession(ctx, session.Session{
				ID: id, TokenHash: []byte(hash), AccountID: acc.ID, IssuedAt: now, ExpiresAt: now.Add(time.Hour),
			})
			require.NoError(t, err)
		}
		n, err := repo.DeleteSessionsByAccount(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = repo.DeleteSessionsByAccount(ctx, "lol")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestLectureRepository(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := sqlxrepos.NewLectureRepository(db)
	ctx := context.Background()
	prof := testutil.CreateAccount(t, sqlxrepos.NewAccountRepository(db), "Prof", "prof@test.kr", "", account.RoleInstructor, account.StateActive)

	now := core.Now()
	l1, err := repo.CreateLecture(ctx, lecture.Lecture{
		ID: "0f8fad5b-d9cb-469f-a165-70867728950e", Name: "Databases", OwnerID: prof.ID,
		Code: "ABC123", CodeCreatedAt: now, CreatedAt: now,
	})
	require.NoError(t, err)

	t.Run("code taken", func(t *testing.T) {
		_, err := repo.CreateLecture(ctx, lecture.Lecture{
			ID: "1e9fad5b-d9cb-469f-a165-70867728950f", Name: "Other", OwnerID: prof.ID,
			Code: "ABC123", CodeCreatedAt: now, CreatedAt: now,
		})
		assert.True(t, errors.Is(err, lecture.ErrCodeTaken), "CreateLecture() error = %v", err)
	})

	t.Run("rotate", func(t *testing.T) {
		rotated, err := repo.UpdateLectureCode(ctx, l1.ID, "QWE456", core.Now())
		require.NoError(t, err)
		assert.Equal(t, "QWE456", rotated.Code)

		_, err = repo.GetLectureByCode(ctx, "ABC123")
		assert.True(t, errors.Is(err, lecture.ErrCodeNotFound), "GetLectureByCode() error = %v", err)

		_, err = repo.UpdateLectureCode(ctx, "2d9fad5b-d9cb-469f-a165-70867728950a", "ZZZ999", core.Now())
		assert.True(t, errors.Is(err, lecture.ErrNotFound), "UpdateLectureCode() error = %v", err)
	})

	t.Run("lock in tx", func(t *testing.T) {
		err := database.NewTransactor(db).InTx(ctx, func(exec core.DBExecutor) error {
			l, err := repo.LockLectureByCode(ctx, "QWE456", exec)
			if err != nil {
				return err
			}
			assert.Equal(t, l1.ID, l.ID)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("list owned", func(t *testing.T) {
		owned, err := repo.ListLecturesByOwner(ctx, prof.ID)
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, l1.ID, owned[0].ID)
	})
}

func TestJoinByCode_Concurrent(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	conf := core.NewTestConfig()
	accRepo := sqlxrepos.NewAccountRepository(db)
	tx := database.NewTransactor(db)

	lectures := lecture.NewService(sqlxrepos.NewLectureRepository(db), conf)
	enrollments := enrollment.NewService(tx, sqlxrepos.NewMembershipRepository(db), lectures)

	prof := testutil.CreateAccount(t, accRepo, "Prof", "prof@test.kr", "", account.RoleInstructor, account.StateActive)
	student := testutil.CreateAccount(t, accRepo, "Student", "student@test.kr", "", account.RoleStudent, account.StateActive)
	l, err := lectures.Create(ctx, prof, lecture.NewLecture{Name: "Distributed Systems"})
	require.NoError(t, err)

	const n = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			joined, err := enrollments.JoinByCode(ctx, student, l.Code)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if joined.Created {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, 1, created)

	roster, err := enrollments.Roster(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, student.ID, roster[0].AccountID)

	enrolled, err := enrollments.ListEnrolled(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, enrolled, 1)
	assert.Equal(t, "Prof", enrolled[0].InstructorName)
}

func TestJoinByCode_DuringRotation(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	conf := core.NewTestConfig()
	accRepo := sqlxrepos.NewAccountRepository(db)

	lectures := lecture.NewService(sqlxrepos.NewLectureRepository(db), conf)
	enrollments := enrollment.NewService(database.NewTransactor(db), sqlxrepos.NewMembershipRepository(db), lectures)

	prof := testutil.CreateAccount(t, accRepo, "Prof", "prof@test.kr", "", account.RoleInstructor, account.StateActive)
	l, err := lectures.Create(ctx, prof, lecture.NewLecture{Name: "Databases"})
	require.NoError(t, err)

	const students = 10
	var (
		mu      sync.Mutex
		current = l.Code
		issued  = []string{current}
		joiners sync.WaitGroup
		rotator sync.WaitGroup
		done    = make(chan struct{})
	)

	rotator.Add(1)
	go func() {
		defer rotator.Done()
		for i := 0; i < 200; i++ {
			select {
			case <-done:
				return
			default:
			}
			rotated, err := lectures.RotateCode(ctx, prof, l.ID)
			if err != nil {
				t.Errorf("RotateCode() error = %v", err)
				return
			}
			mu.Lock()
			current = rotated.Code
			issued = append(issued, current)
			mu.Unlock()
		}
	}()

	var created, torn int
	for i := 0; i < students; i++ {
		acc := testutil.CreateAccount(t, accRepo, "Student", fmt.Sprintf("s%d@test.kr", i), "", account.RoleStudent, account.StateActive)
		joiners.Add(1)
		go func() {
			defer joiners.Done()
			for {
				mu.Lock()
				code := current
				mu.Unlock()

				joined, err := enrollments.JoinByCode(ctx, acc, code)
				if errors.Is(err, lecture.ErrCodeNotFound) {
					continue
				}
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					t.Errorf("JoinByCode(%q) error = %v", code, err)
					return
				}
				if joined.Lecture.Code != code || joined.Lecture.ID != l.ID {
					torn++
				}
				if joined.Created {
					created++
				}
				return
			}
		}()
	}
	joiners.Wait()
	close(done)
	rotator.Wait()

	assert.Zero(t, torn)
	assert.Equal(t, students, created)

	var live []string
	for _, code := range issued {
		if _, err := lectures.ResolveCode(ctx, code); err == nil {
			live = append(live, code)
		}
	}
	assert.Equal(t, []string{issued[len(issued)-1]}, live, "only the latest code resolves")
}
