// Package inmemdb implements the core repositories in memory. It backs the unit tests and the `-inmem` mode
// of the API.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/enrollment"
	"github.com/trezcool/gatheria/core/lecture"
	"github.com/trezcool/gatheria/core/session"
)

type (
	DB struct {
		account    *accountTable
		session    *sessionTable
		lecture    *lectureTable
		membership *membershipTable
	}

	accountTable struct {
		mutex sync.RWMutex
		table map[string]*account.Account
	}

	sessionTable struct {
		mutex sync.RWMutex
		table map[string]*session.Session
	}

	lectureTable struct {
		mutex sync.RWMutex
		table map[string]*lecture.Lecture
	}

	membershipKey struct {
		lectureID string
		accountID string
	}

	membershipTable struct {
		mutex sync.RWMutex
		table map[membershipKey]*enrollment.Membership
	}
)

func Open() *DB {
	return &DB{
		account:    &accountTable{table: make(map[string]*account.Account)},
		session:    &sessionTable{table: make(map[string]*session.Session)},
		lecture:    &lectureTable{table: make(map[string]*lecture.Lecture)},
		membership: &membershipTable{table: make(map[membershipKey]*enrollment.Membership)},
	}
}

type transactor struct{}

// NewTransactor returns a core.Transactor for in-memory repositories.
// Every repository write is atomic on its own, but nothing is rolled back when fn fails.
func NewTransactor() core.Transactor {
	return transactor{}
}

func (transactor) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(nil)
}
