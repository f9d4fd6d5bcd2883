package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/storage/database"
)

const (
	accountColumns = `id, email, name, password_hash, role, state, state_reason, state_changed_at,
	affiliation, phone, deactivated_at, created_at, updated_at, last_login`
	roleStateCheck = "account_role_state_check"
)

type accountRow struct {
	ID             string      `db:"id"`
	Email          string      `db:"email"`
	Name           string      `db:"name"`
	PasswordHash   []byte      `db:"password_hash"`
	Role           string      `db:"role"`
	State          string      `db:"state"`
	StateReason    null.String `db:"state_reason"`
	StateChangedAt time.Time   `db:"state_changed_at"`
	Affiliation    null.String `db:"affiliation"`
	Phone          null.String `db:"phone"`
	DeactivatedAt  null.Time   `db:"deactivated_at"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
	LastLogin      null.Time   `db:"last_login"`
}

func toAccountRow(acc account.Account) accountRow {
	if acc.PasswordHash == nil {
		acc.PasswordHash = []byte{} // no usable password
	}
	return accountRow{
		ID:             acc.ID,
		Email:          acc.Email,
		Name:           acc.Name,
		PasswordHash:   acc.PasswordHash,
		Role:           string(acc.Role),
		State:          string(acc.State),
		StateReason:    null.NewString(acc.StateReason, acc.StateReason != ""),
		StateChangedAt: acc.StateChangedAt.UTC(),
		Affiliation:    null.NewString(acc.Affiliation, acc.Affiliation != ""),
		Phone:          null.NewString(acc.Phone, acc.Phone != ""),
		DeactivatedAt:  null.TimeFromPtr(acc.DeactivatedAt),
		CreatedAt:      acc.CreatedAt.UTC(),
		UpdatedAt:      acc.UpdatedAt.UTC(),
		LastLogin:      null.NewTime(acc.LastLogin.UTC(), !acc.LastLogin.IsZero()),
	}
}

func (row accountRow) toAccount() account.Account {
	return account.Account{
		ID:             row.ID,
		Email:          row.Email,
		Name:           row.Name,
		PasswordHash:   row.PasswordHash,
		Role:           account.Role(row.Role),
		State:          account.State(row.State),
		StateReason:    row.StateReason.String,
		StateChangedAt: row.StateChangedAt.UTC(),
		Affiliation:    row.Affiliation.String,
		Phone:          row.Phone.String,
		DeactivatedAt:  utcPtr(row.DeactivatedAt),
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
		LastLogin:      row.LastLogin.Time.UTC(),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

type accountRepository struct {
	db *sqlx.DB
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *sqlx.DB) *accountRepository {
	return &accountRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to account.ErrNotFound
func (repo accountRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return account.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo accountRepository) CreateAccount(ctx context.Context, acc account.Account, exec ...core.DBExecutor) (account.Account, error) {
	if acc.ID == "" {
		acc.ID = uuid.New().String()
	}
	q := `INSERT INTO account (` + accountColumns + `) VALUES (:id, :email, :name, :password_hash, :role, :state,
		:state_reason, :state_changed_at, :affiliation, :phone, :deactivated_at, :created_at, :updated_at, :last_login)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, toAccountRow(acc)); err != nil {
		if database.IsUniqueViolation(err, "account_email_key") {
			return account.Account{}, account.ErrEmailExists
		}
		if database.IsCheckViolation(err, roleStateCheck) {
			return account.Account{}, account.ErrInvalidTransition.Errorf("%s account cannot be %s", acc.Role, acc.State)
		}
		return account.Account{}, errors.Wrap(err, "inserting account")
	}
	return acc, nil
}

func (repo accountRepository) GetAccountByID(ctx context.Context, id string, exec ...core.DBExecutor) (account.Account, error) {
	if !validUUID(id) {
		return account.Account{}, account.ErrNotFound
	}
	var row accountRow
	q := `SELECT ` + accountColumns + ` FROM account WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, id); err != nil {
		return account.Account{}, repo.trapNoRowsErr(err, "selecting account by id")
	}
	return row.toAccount(), nil
}

func (repo accountRepository) GetAccountByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (account.Account, error) {
	var row accountRow
	q := `SELECT ` + accountColumns + ` FROM account WHERE email = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, email); err != nil {
		return account.Account{}, repo.trapNoRowsErr(err, "selecting account by email")
	}
	return row.toAccount(), nil
}

func (repo accountRepository) UpdateAccountState(
	ctx context.Context,
	id string,
	from, to account.State,
	reason string,
	at time.Time,
	exec ...core.DBExecutor,
) (bool, error) {
	q := `UPDATE account SET state = $3, state_reason = $4, state_changed_at = $5, updated_at = $5
		WHERE id = $1 AND state = $2`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, id, from, to, null.NewString(reason, reason != ""), at.UTC())
	if err != nil {
		if database.IsCheckViolation(err, roleStateCheck) {
			return false, account.ErrInvalidTransition.Errorf("account cannot be %s", to)
		}
		return false, errors.Wrap(err, "updating account state")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "updating account state")
	}
	return n == 1, nil
}

func (repo accountRepository) update(ctx context.Context, exec []core.DBExecutor, q string, args ...interface{}) error {
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "updating account")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating account")
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (repo accountRepository) SetLastLogin(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error {
	return repo.update(ctx, exec, `UPDATE account SET last_login = $2 WHERE id = $1`, id, at.UTC())
}

func (repo accountRepository) SetPasswordHash(ctx context.Context, id string, hash []byte, at time.Time, exec ...core.DBExecutor) error {
	return repo.update(ctx, exec, `UPDATE account SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at.UTC())
}

func (repo accountRepository) SetDeactivated(ctx context.Context, id string, at *time.Time, exec ...core.DBExecutor) error {
	deactivatedAt := null.TimeFromPtr(at)
	updatedAt := core.Now()
	if at != nil {
		deactivatedAt.Time = at.UTC()
		updatedAt = at.UTC()
	}
	return repo.update(ctx, exec, `UPDATE account SET deactivated_at = $2, updated_at = $3 WHERE id = $1`, id, deactivatedAt, updatedAt)
}
