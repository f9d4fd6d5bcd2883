package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/lecture"
	"github.com/trezcool/gatheria/storage/database"
)

const (
	lectureColumns     = `id, name, owner_id, code, code_created_at, created_at`
	lectureCodeKey     = "lecture_code_key"
	selectLectureByKey = `SELECT ` + lectureColumns + ` FROM lecture WHERE `
)

type lectureRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	OwnerID       string    `db:"owner_id"`
	Code          string    `db:"code"`
	CodeCreatedAt time.Time `db:"code_created_at"`
	CreatedAt     time.Time `db:"created_at"`
}

func (row lectureRow) toLecture() lecture.Lecture {
	return lecture.Lecture{
		ID:            row.ID,
		Name:          row.Name,
		OwnerID:       row.OwnerID,
		Code:          row.Code,
		CodeCreatedAt: row.CodeCreatedAt.UTC(),
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

type lectureRepository struct {
	db *sqlx.DB
}

var _ lecture.Repository = (*lectureRepository)(nil) // interface compliance check

func NewLectureRepository(db *sqlx.DB) *lectureRepository {
	return &lectureRepository{db: db}
}

func (repo lectureRepository) CreateLecture(ctx context.Context, l lecture.Lecture, exec ...core.DBExecutor) (lecture.Lecture, error) {
	q := `INSERT INTO lecture (` + lectureColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q, l.ID, l.Name, l.OwnerID, l.Code, l.CodeCreatedAt.UTC(), l.CreatedAt.UTC())
	if err != nil {
		if database.IsUniqueViolation(err, lectureCodeKey) {
			return lecture.Lecture{}, lecture.ErrCodeTaken
		}
		return lecture.Lecture{}, errors.Wrap(err, "inserting lecture")
	}
	return l, nil
}

func (repo lectureRepository) get(ctx context.Context, exec []core.DBExecutor, notFound error, where string, args ...interface{}) (lecture.Lecture, error) {
	var row lectureRow
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, selectLectureByKey+where, args...); err != nil {
		if err == sql.ErrNoRows {
			return lecture.Lecture{}, notFound
		}
		return lecture.Lecture{}, errors.Wrap(err, "selecting lecture")
	}
	return row.toLecture(), nil
}

func (repo lectureRepository) GetLectureByID(ctx context.Context, id string, exec ...core.DBExecutor) (lecture.Lecture, error) {
	if !validUUID(id) {
		return lecture.Lecture{}, lecture.ErrNotFound
	}
	return repo.get(ctx, exec, lecture.ErrNotFound, `id = $1`, id)
}

func (repo lectureRepository) GetLectureByCode(ctx context.Context, code string, exec ...core.DBExecutor) (lecture.Lecture, error) {
	return repo.get(ctx, exec, lecture.ErrCodeNotFound, `code = $1`, code)
}

func (repo lectureRepository) LockLectureByCode(ctx context.Context, code string, exec ...core.DBExecutor) (lecture.Lecture, error) {
	return repo.get(ctx, exec, lecture.ErrCodeNotFound, `code = $1 FOR SHARE`, code)
}

func (repo lectureRepository) UpdateLectureCode(ctx context.Context, id, code string, at time.Time, exec ...core.DBExecutor) (lecture.Lecture, error) {
	var row lectureRow
	q := `UPDATE lecture SET code = $2, code_created_at = $3 WHERE id = $1 RETURNING ` + lectureColumns
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, id, code, at.UTC()); err != nil {
		if err == sql.ErrNoRows {
			return lecture.Lecture{}, lecture.ErrNotFound
		}
		if database.IsUniqueViolation(err, lectureCodeKey) {
			return lecture.Lecture{}, lecture.ErrCodeTaken
		}
		return lecture.Lecture{}, errors.Wrap(err, "updating lecture code")
	}
	return row.toLecture(), nil
}

func (repo lectureRepository) ListLecturesByOwner(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]lecture.Lecture, error) {
	if !validUUID(ownerID) {
		return nil, nil
	}
	var rows []lectureRow
	q := selectLectureByKey + `owner_id = $1 ORDER BY created_at DESC, name`
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, q, ownerID); err != nil {
		return nil, errors.Wrap(err, "selecting owned lectures")
	}
	lectures := make([]lecture.Lecture, 0, len(rows))
	for _, row := range rows {
		lectures = append(lectures, row.toLecture())
	}
	return lectures, nil
}
