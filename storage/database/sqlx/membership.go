package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/enrollment"
)

type membershipRow struct {
	LectureID string    `db:"lecture_id"`
	AccountID string    `db:"account_id"`
	JoinedAt  time.Time `db:"joined_at"`
}

func (row membershipRow) toMembership() enrollment.Membership {
	return enrollment.Membership{
		LectureID: row.LectureID,
		AccountID: row.AccountID,
		JoinedAt:  row.JoinedAt.UTC(),
	}
}

type enrolledLectureRow struct {
	lectureRow
	InstructorName  string    `db:"instructor_name"`
	InstructorEmail string    `db:"instructor_email"`
	JoinedAt        time.Time `db:"joined_at"`
}

type memberRow struct {
	AccountID string    `db:"account_id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	JoinedAt  time.Time `db:"joined_at"`
}

type membershipRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*membershipRepository)(nil) // interface compliance check

func NewMembershipRepository(db *sqlx.DB) *membershipRepository {
	return &membershipRepository{db: db}
}

// CreateMembership relies on the membership primary key. ON CONFLICT keeps a duplicate from aborting the
// caller's transaction: a concurrent insert of the same pair waits for the other one to commit, then reports
// enrollment.ErrConflict.
func (repo membershipRepository) CreateMembership(ctx context.Context, m enrollment.Membership, exec ...core.DBExecutor) (enrollment.Membership, error) {
	var row membershipRow
	q := `INSERT INTO membership (lecture_id, account_id, joined_at) VALUES ($1, $2, $3)
		ON CONFLICT (lecture_id, account_id) DO NOTHING
		RETURNING lecture_id, account_id, joined_at`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, m.LectureID, m.AccountID, m.JoinedAt.UTC()); err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Membership{}, enrollment.ErrConflict
		}
		return enrollment.Membership{}, errors.Wrap(err, "inserting membership")
	}
	return row.toMembership(), nil
}

func (repo membershipRepository) GetMembership(ctx context.Context, lectureID, accountID string, exec ...core.DBExecutor) (enrollment.Membership, error) {
	if !validUUID(lectureID) || !validUUID(accountID) {
		return enrollment.Membership{}, enrollment.ErrNotFound
	}
	var row membershipRow
	q := `SELECT lecture_id, account_id, joined_at FROM membership WHERE lecture_id = $1 AND account_id = $2`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, lectureID, accountID); err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Membership{}, enrollment.ErrNotFound
		}
		return enrollment.Membership{}, errors.Wrap(err, "selecting membership")
	}
	return row.toMembership(), nil
}

func (repo membershipRepository) DeleteMembership(ctx context.Context, lectureID, accountID string, exec ...core.DBExecutor) error {
	if !validUUID(lectureID) || !validUUID(accountID) {
		return enrollment.ErrNotFound
	}
	q := `DELETE FROM membership WHERE lecture_id = $1 AND account_id = $2`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, lectureID, accountID)
	if err != nil {
		return errors.Wrap(err, "deleting membership")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return enrollment.ErrNotFound
	}
	return nil
}

func (repo membershipRepository) ListEnrolledLectures(ctx context.Context, accountID string, exec ...core.DBExecutor) ([]enrollment.EnrolledLecture, error) {
	if !validUUID(accountID) {
		return nil, nil
	}
	var rows []enrolledLectureRow
	q := `SELECT l.id, l.name, l.owner_id, l.code, l.code_created_at, l.created_at,
			a.name AS instructor_name, a.email AS instructor_email, m.joined_at
		FROM membership m
		JOIN lecture l ON l.id = m.lecture_id
		JOIN account a ON a.id = l.owner_id
		WHERE m.account_id = $1
		ORDER BY m.joined_at DESC, l.name`
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, q, accountID); err != nil {
		return nil, errors.Wrap(err, "selecting enrolled lectures")
	}
	enrolled := make([]enrollment.EnrolledLecture, 0, len(rows))
	for _, row := range rows {
		enrolled = append(enrolled, enrollment.EnrolledLecture{
			Lecture:         row.toLecture(),
			InstructorName:  row.InstructorName,
			InstructorEmail: row.InstructorEmail,
			JoinedAt:        row.JoinedAt.UTC(),
		})
	}
	return enrolled, nil
}

func (repo membershipRepository) ListMembers(ctx context.Context, lectureID string, exec ...core.DBExecutor) ([]enrollment.Member, error) {
	if !validUUID(lectureID) {
		return nil, nil
	}
	var rows []memberRow
	q := `SELECT a.id AS account_id, a.name, a.email, m.joined_at
		FROM membership m
		JOIN account a ON a.id = m.account_id
		WHERE m.lecture_id = $1
		ORDER BY m.joined_at, a.name`
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, q, lectureID); err != nil {
		return nil, errors.Wrap(err, "selecting lecture members")
	}
	members := make([]enrollment.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, enrollment.Member{
			AccountID: row.AccountID,
			Name:      row.Name,
			Email:     row.Email,
			JoinedAt:  row.JoinedAt.UTC(),
		})
	}
	return members, nil
}
