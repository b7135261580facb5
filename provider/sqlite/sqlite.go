// Package sqlite provides the SQLite data provider, backed by the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/syssam/dataspace/dialect"
	"github.com/syssam/dataspace/provider"
)

// Name is the registry name of the provider.
const Name = "sqlite"

// driverName is the database/sql name registered by modernc.org/sqlite.
const driverName = "sqlite"

// New returns a SQLite provider. Connection strings are file names or
// file: URIs as understood by the driver.
func New(opts ...provider.Option) *provider.Provider {
	base := []provider.Option{
		provider.WithClassifier(IsConflict),
	}
	return provider.New(Name, dialect.MustLookup(dialect.SQLite), driverName, append(base, opts...)...)
}

// IsConflict reports whether err is a busy or locked database error.
func IsConflict(err error) bool {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
