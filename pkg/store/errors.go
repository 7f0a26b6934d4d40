package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// PostgreSQL error codes the store reacts to
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// classify maps driver errors onto rbac sentinels. Unique violations become
// onUnique (left untouched when nil); lock contention and serialization
// failures become rbac.ErrConflictingMutation.
func classify(err error, onUnique error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation:
			if onUnique != nil {
				return fmt.Errorf("%w: %s", onUnique, pqErr.Message)
			}
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", rbac.ErrConflictingMutation, pqErr.Message)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			if onUnique != nil {
				return fmt.Errorf("%w: %s", onUnique, liteErr.Error())
			}
		case liteErr.Code == sqlite3.ErrBusy, liteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %s", rbac.ErrConflictingMutation, liteErr.Error())
		}
	}
	return err
}
