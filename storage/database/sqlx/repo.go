// Package sqlxrepos implements the core repositories on postgres with sqlx.
package sqlxrepos

import (
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/gatheria/core"
)

// getExec returns the executor of the caller's transaction if any, db otherwise.
// Executors handed out by database.NewTransactor are *sqlx.Tx.
func getExec(db *sqlx.DB, svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 && svcExec[0] != nil {
		if ext, ok := svcExec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return db
}

// validUUID guards uuid columns against malformed ids, which postgres would reject with a syntax error.
func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
