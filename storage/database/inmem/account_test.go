package inmemdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/storage/database/inmem"
	"github.com/trezcool/gatheria/tests"
)

func TestAccountRepository_RoleStates(t *testing.T) {
	repo := inmemdb.NewAccountRepository(inmemdb.Open())
	ctx := context.Background()

	tests := []struct {
		name  string
		role  account.Role
		state account.State
	}{
		{name: "student under review", role: account.RoleStudent, state: account.StatePendingReview},
		{name: "rejected student", role: account.RoleStudent, state: account.StateRejected},
		{name: "instructor awaiting email", role: account.RoleInstructor, state: account.StatePendingEmailVerification},
		{name: "unknown role", role: account.Role("admin"), state: account.StateActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.CreateAccount(ctx, account.Account{Email: "x@test.kr", Role: tt.role, State: tt.state})
			assert.True(t, errors.Is(err, account.ErrInvalidTransition), "CreateAccount() error = %v", err)
		})
	}

	t.Run("update", func(t *testing.T) {
		acc := testutil.CreateAccount(t, repo, "Student", "student@test.kr", "", account.RoleStudent, account.StatePendingEmailVerification)

		ok, err := repo.UpdateAccountState(ctx, acc.ID, account.StatePendingEmailVerification, account.StatePendingReview, "", time.Now())
		assert.False(t, ok)
		assert.True(t, errors.Is(err, account.ErrInvalidTransition), "UpdateAccountState() error = %v", err)

		got, err := repo.GetAccountByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, account.StatePendingEmailVerification, got.State)

		ok, err = repo.UpdateAccountState(ctx, acc.ID, account.StatePendingEmailVerification, account.StateActive, "", time.Now())
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
