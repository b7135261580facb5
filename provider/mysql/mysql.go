// Package mysql provides the MySQL data provider, backed by
// github.com/go-sql-driver/mysql.
package mysql

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/syssam/dataspace/dialect"
	"github.com/syssam/dataspace/provider"
)

// Name is the registry name of the provider.
const Name = "mysql"

// MySQL server error numbers signalling a conflict.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errRecordChanged   = 1020
)

// New returns a MySQL provider. Connection strings use the driver's DSN
// format.
func New(opts ...provider.Option) *provider.Provider {
	base := []provider.Option{
		provider.WithClassifier(IsConflict),
		provider.WithDSN(DSN),
	}
	return provider.New(Name, dialect.MustLookup(dialect.MySQL), "mysql", append(base, opts...)...)
}

// DSN returns connStr with the settings the provider relies on: affected
// row counts report matched rows, so an UPDATE writing unchanged values is
// not taken for a concurrency conflict, and DATETIME values scan into
// time.Time.
func DSN(connStr string) (string, error) {
	cfg, err := mysql.ParseDSN(connStr)
	if err != nil {
		return "", err
	}
	cfg.ClientFoundRows = true
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// IsConflict reports whether err is a deadlock, lock wait timeout or
// changed-record error.
func IsConflict(err error) bool {
	var e *mysql.MySQLError
	if !errors.As(err, &e) {
		return false
	}
	switch e.Number {
	case errLockWaitTimeout, errDeadlock, errRecordChanged:
		return true
	}
	return false
}
