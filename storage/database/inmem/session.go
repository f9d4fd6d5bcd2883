package inmemdb

import (
	"bytes"
	"context"
	"time"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/session"
)

type sessionRepository struct {
	db *sessionTable
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db.session}
}

func (repo *sessionRepository) CreateSession(_ context.Context, s session.Session, _ ...core.DBExecutor) (session.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.table[s.ID] = &s
	return s, nil
}

func (repo *sessionRepository) GetSessionByTokenHash(_ context.Context, hash []byte, _ ...core.DBExecutor) (session.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, s := range repo.db.table {
		if bytes.Equal(s.TokenHash, hash) {
			return *s, nil
		}
	}
	return session.Session{}, session.ErrNotFound
}

func (repo *sessionRepository) DeleteSession(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return session.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *sessionRepository) DeleteSessionsByAccount(_ context.Context, accountID string, _ ...core.DBExecutor) (int64, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int64
	for id, s := range repo.db.table {
		if s.AccountID == accountID {
			delete(repo.db.table, id)
			n++
		}
	}
	return n, nil
}

func (repo *sessionRepository) DeleteExpiredSessions(_ context.Context, now time.Time, _ ...core.DBExecutor) (int64, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int64
	for id, s := range repo.db.table {
		if s.Expired(now) {
			delete(repo.db.table, id)
			n++
		}
	}
	return n, nil
}
