package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/lecture"
)

type lectureRepository struct {
	db *lectureTable
}

var _ lecture.Repository = (*lectureRepository)(nil) // interface compliance check

func NewLectureRepository(db *DB) *lectureRepository {
	return &lectureRepository{db: db.lecture}
}

// codeTaken must be called with the table lock held.
func (repo *lectureRepository) codeTaken(code, excludedID string) bool {
	for _, l := range repo.db.table {
		if l.Code == code && l.ID != excludedID {
			return true
		}
	}
	return false
}

func (repo *lectureRepository) CreateLecture(_ context.Context, l lecture.Lecture, _ ...core.DBExecutor) (lecture.Lecture, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.codeTaken(l.Code, "") {
		return lecture.Lecture{}, lecture.ErrCodeTaken
	}
	repo.db.table[l.ID] = &l
	return l, nil
}

func (repo *lectureRepository) GetLectureByID(_ context.Context, id string, _ ...core.DBExecutor) (lecture.Lecture, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if l, ok := repo.db.table[id]; ok {
		return *l, nil
	}
	return lecture.Lecture{}, lecture.ErrNotFound
}

func (repo *lectureRepository) GetLectureByCode(_ context.Context, code string, _ ...core.DBExecutor) (lecture.Lecture, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, l := range repo.db.table {
		if l.Code == code {
			return *l, nil
		}
	}
	return lecture.Lecture{}, lecture.ErrCodeNotFound
}

// LockLectureByCode takes no lock: in-memory writes are atomic and nothing is held across calls.
func (repo *lectureRepository) LockLectureByCode(ctx context.Context, code string, exec ...core.DBExecutor) (lecture.Lecture, error) {
	return repo.GetLectureByCode(ctx, code, exec...)
}

func (repo *lectureRepository) UpdateLectureCode(_ context.Context, id, code string, at time.Time, _ ...core.DBExecutor) (lecture.Lecture, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	l, ok := repo.db.table[id]
	if !ok {
		return lecture.Lecture{}, lecture.ErrNotFound
	}
	if repo.codeTaken(code, id) {
		return lecture.Lecture{}, lecture.ErrCodeTaken
	}
	l.Code = code
	l.CodeCreatedAt = at
	return *l, nil
}

func (repo *lectureRepository) ListLecturesByOwner(_ context.Context, ownerID string, _ ...core.DBExecutor) ([]lecture.Lecture, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	lectures := make([]lecture.Lecture, 0)
	for _, l := range repo.db.table {
		if l.OwnerID == ownerID {
			lectures = append(lectures, *l)
		}
	}
	sort.Slice(lectures, func(i, j int) bool {
		if !lectures[i].CreatedAt.Equal(lectures[j].CreatedAt) {
			return lectures[i].CreatedAt.After(lectures[j].CreatedAt)
		}
		return lectures[i].Name < lectures[j].Name
	})
	return lectures, nil
}
