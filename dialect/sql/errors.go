package sql

import (
	"errors"
	"strings"

	"github.com/syssam/dataspace"
)

// Classifier reports whether a driver error carries a dialect-specific
// concurrency conflict signature. Providers supply one for their driver's
// concrete error types.
type Classifier func(error) bool

// sqlStateError is an interface for errors that provide SQLSTATE codes.
// Implemented by: pq.Error, pgconn.PgError.
type sqlStateError interface {
	SQLState() string
}

// errorNumberer is an interface for errors that provide SQL Server error
// numbers. Implemented by: mssql.Error.
type errorNumberer interface {
	SQLErrorNumber() int32
}

// errorCoder is an interface for errors that provide numeric result codes.
// Implemented by: modernc.org/sqlite Error.
type errorCoder interface {
	Code() int
}

// SQLSTATE codes signalling a transaction conflict (class 40).
const (
	sqlStateSerialization = "40001"
	sqlStateDeadlock      = "40P01"
)

// SQL Server error numbers signalling a conflict.
const (
	mssqlDeadlockVictim   = 1205
	mssqlSnapshotConflict = 3960
)

// SQLite primary result codes signalling a conflict.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// IsConcurrencyError reports if the error resulted from a transaction
// conflict: a serialization failure, a deadlock, or a lock held by another
// connection.
func IsConcurrencyError(err error) bool {
	if err == nil {
		return false
	}
	if dataspace.IsConcurrencyError(err) {
		return true
	}

	// Check for SQLSTATE code (PostgreSQL, pgx)
	if e, ok := asError[sqlStateError](err); ok {
		switch e.SQLState() {
		case sqlStateSerialization, sqlStateDeadlock:
			return true
		}
	}

	// Check for SQL Server error number
	if e, ok := asError[errorNumberer](err); ok {
		switch e.SQLErrorNumber() {
		case mssqlDeadlockVictim, mssqlSnapshotConflict:
			return true
		}
	}

	// Check for SQLite result code (extended codes keep the primary code in the low byte)
	if e, ok := asError[errorCoder](err); ok {
		switch e.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
	}

	// Fallback to string matching for drivers that don't implement interfaces
	return containsAny(err.Error(),
		"Error 1213",                 // MySQL deadlock
		"Error 1205",                 // MySQL lock wait timeout
		"Error 1020",                 // MySQL record changed since last read
		"deadlock detected",          // Postgres
		"could not serialize access", // Postgres
		"database is locked",         // SQLite
		"was deadlocked on lock",     // SQL Server
		"Snapshot isolation transaction aborted due to update conflict", // SQL Server
	)
}

// Classify returns err as a dataspace.ConcurrencyError when it matches the
// generic signatures or the provider classifier, and err unchanged otherwise.
func Classify(err error, table, op string, c Classifier) error {
	if err == nil || dataspace.IsConcurrencyError(err) {
		return err
	}
	if IsConcurrencyError(err) || (c != nil && c(err)) {
		return dataspace.NewConcurrencyError(table, op, err)
	}
	return err
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
