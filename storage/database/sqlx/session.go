package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/session"
)

const sessionColumns = `id, token_hash, account_id, remember, issued_at, expires_at`

type sessionRow struct {
	ID        string    `db:"id"`
	TokenHash []byte    `db:"token_hash"`
	AccountID string    `db:"account_id"`
	Remember  bool      `db:"remember"`
	IssuedAt  time.Time `db:"issued_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (row sessionRow) toSession() session.Session {
	return session.Session{
		ID:        row.ID,
		TokenHash: row.TokenHash,
		AccountID: row.AccountID,
		Remember:  row.Remember,
		IssuedAt:  row.IssuedAt.UTC(),
		ExpiresAt: row.ExpiresAt.UTC(),
	}
}

type sessionRepository struct {
	db *sqlx.DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *sqlx.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo sessionRepository) CreateSession(ctx context.Context, s session.Session, exec ...core.DBExecutor) (session.Session, error) {
	q := `INSERT INTO session (` + sessionColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q, s.ID, s.TokenHash, s.AccountID, s.Remember, s.IssuedAt.UTC(), s.ExpiresAt.UTC())
	if err != nil {
		return session.Session{}, errors.Wrap(err, "inserting session")
	}
	return s, nil
}

func (repo sessionRepository) GetSessionByTokenHash(ctx context.Context, hash []byte, exec ...core.DBExecutor) (session.Session, error) {
	var row sessionRow
	q := `SELECT ` + sessionColumns + ` FROM session WHERE token_hash = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, hash); err != nil {
		if err == sql.ErrNoRows {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, errors.Wrap(err, "selecting session")
	}
	return row.toSession(), nil
}

func (repo sessionRepository) DeleteSession(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM session WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (repo sessionRepository) DeleteSessionsByAccount(ctx context.Context, accountID string, exec ...core.DBExecutor) (int64, error) {
	if !validUUID(accountID) {
		return 0, nil
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM session WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, errors.Wrap(err, "deleting account sessions")
	}
	return res.RowsAffected()
}

func (repo sessionRepository) DeleteExpiredSessions(ctx context.Context, now time.Time, exec ...core.DBExecutor) (int64, error) {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM session WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired sessions")
	}
	return res.RowsAffected()
}
