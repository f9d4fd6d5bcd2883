package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/enrollment"
)

type membershipRepository struct {
	db       *membershipTable
	lectures *lectureTable
	accounts *accountTable
}

var _ enrollment.Repository = (*membershipRepository)(nil) // interface compliance check

func NewMembershipRepository(db *DB) *membershipRepository {
	return &membershipRepository{
		db:       db.membership,
		lectures: db.lecture,
		accounts: db.account,
	}
}

func (repo *membershipRepository) CreateMembership(_ context.Context, m enrollment.Membership, _ ...core.DBExecutor) (enrollment.Membership, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := membershipKey{lectureID: m.LectureID, accountID: m.AccountID}
	if _, ok := repo.db.table[key]; ok {
		return enrollment.Membership{}, enrollment.ErrConflict
	}
	repo.db.table[key] = &m
	return m, nil
}

func (repo *membershipRepository) GetMembership(_ context.Context, lectureID, accountID string, _ ...core.DBExecutor) (enrollment.Membership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.table[membershipKey{lectureID: lectureID, accountID: accountID}]; ok {
		return *m, nil
	}
	return enrollment.Membership{}, enrollment.ErrNotFound
}

func (repo *membershipRepository) DeleteMembership(_ context.Context, lectureID, accountID string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := membershipKey{lectureID: lectureID, accountID: accountID}
	if _, ok := repo.db.table[key]; !ok {
		return enrollment.ErrNotFound
	}
	delete(repo.db.table, key)
	return nil
}

// filter copies the memberships matching keep. Tables are locked one at a time.
func (repo *membershipRepository) filter(keep func(m *enrollment.Membership) bool) []enrollment.Membership {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ms := make([]enrollment.Membership, 0)
	for _, m := range repo.db.table {
		if keep(m) {
			ms = append(ms, *m)
		}
	}
	return ms
}

func (repo *membershipRepository) ListEnrolledLectures(_ context.Context, accountID string, _ ...core.DBExecutor) ([]enrollment.EnrolledLecture, error) {
	ms := repo.filter(func(m *enrollment.Membership) bool { return m.AccountID == accountID })

	enrolled := make([]enrollment.EnrolledLecture, 0, len(ms))
	repo.lectures.mutex.RLock()
	for _, m := range ms {
		if l, ok := repo.lectures.table[m.LectureID]; ok {
			enrolled = append(enrolled, enrollment.EnrolledLecture{Lecture: *l, JoinedAt: m.JoinedAt})
		}
	}
	repo.lectures.mutex.RUnlock()

	repo.accounts.mutex.RLock()
	for i := range enrolled {
		if owner, ok := repo.accounts.table[enrolled[i].Lecture.OwnerID]; ok {
			enrolled[i].InstructorName = owner.Name
			enrolled[i].InstructorEmail = owner.Email
		}
	}
	repo.accounts.mutex.RUnlock()

	sort.Slice(enrolled, func(i, j int) bool {
		if !enrolled[i].JoinedAt.Equal(enrolled[j].JoinedAt) {
			return enrolled[i].JoinedAt.After(enrolled[j].JoinedAt)
		}
		return enrolled[i].Lecture.Name < enrolled[j].Lecture.Name
	})
	return enrolled, nil
}

func (repo *membershipRepository) ListMembers(_ context.Context, lectureID string, _ ...core.DBExecutor) ([]enrollment.Member, error) {
	ms := repo.filter(func(m *enrollment.Membership) bool { return m.LectureID == lectureID })

	members := make([]enrollment.Member, 0, len(ms))
	repo.accounts.mutex.RLock()
	for _, m := range ms {
		if acc, ok := repo.accounts.table[m.AccountID]; ok {
			members = append(members, enrollment.Member{
				AccountID: acc.ID,
				Name:      acc.Name,
				Email:     acc.Email,
				JoinedAt:  m.JoinedAt,
			})
		}
	}
	repo.accounts.mutex.RUnlock()

	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].Name < members[j].Name
	})
	return members, nil
}
