package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
)

type accountRepository struct {
	db *accountTable
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *DB) *accountRepository {
	return &accountRepository{db: db.account}
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc account.Account, _ ...core.DBExecutor) (account.Account, error) {
	if !account.ValidState(acc.Role, acc.State) {
		return account.Account{}, account.ErrInvalidTransition.Errorf("%s account cannot be %s", acc.Role, acc.State)
	}

	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, a := range repo.db.table {
		if a.Email == acc.Email {
			return account.Account{}, account.ErrEmailExists
		}
	}
	if acc.ID == "" {
		acc.ID = uuid.New().String()
	}
	repo.db.table[acc.ID] = &acc
	return acc, nil
}

func (repo *accountRepository) GetAccountByID(_ context.Context, id string, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if acc, ok := repo.db.table[id]; ok {
		return *acc, nil
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) GetAccountByEmail(_ context.Context, email string, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, acc := range repo.db.table {
		if acc.Email == email {
			return *acc, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) UpdateAccountState(
	_ context.Context,
	id string,
	from, to account.State,
	reason string,
	at time.Time,
	_ ...core.DBExecutor,
) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acc, ok := repo.db.table[id]
	if !ok || acc.State != from {
		return false, nil
	}
	if !account.ValidState(acc.Role, to) {
		return false, account.ErrInvalidTransition.Errorf("%s account cannot be %s", acc.Role, to)
	}
	acc.State = to
	acc.StateReason = reason
	acc.StateChangedAt = at
	acc.UpdatedAt = at
	return true, nil
}

func (repo *accountRepository) update(id string, fn func(acc *account.Account)) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acc, ok := repo.db.table[id]
	if !ok {
		return account.ErrNotFound
	}
	fn(acc)
	return nil
}

func (repo *accountRepository) SetLastLogin(_ context.Context, id string, at time.Time, _ ...core.DBExecutor) error {
	return repo.update(id, func(acc *account.Account) { acc.LastLogin = at })
}

func (repo *accountRepository) SetPasswordHash(_ context.Context, id string, hash []byte, at time.Time, _ ...core.DBExecutor) error {
	return repo.update(id, func(acc *account.Account) {
		acc.PasswordHash = hash
		acc.UpdatedAt = at
	})
}

func (repo *accountRepository) SetDeactivated(_ context.Context, id string, at *time.Time, _ ...core.DBExecutor) error {
	return repo.update(id, func(acc *account.Account) {
		acc.DeactivatedAt = at
		acc.UpdatedAt = core.Now()
		if at != nil {
			acc.UpdatedAt = *at
		}
	})
}
