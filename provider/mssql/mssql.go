// Package mssql provides the SQL Server data provider, backed by
// github.com/denisenkom/go-mssqldb.
package mssql

import (
	"errors"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"

	"github.com/syssam/dataspace/dialect"
	dsql "github.com/syssam/dataspace/dialect/sql"
	"github.com/syssam/dataspace/provider"
)

// Name is the registry name of the provider.
const Name = "mssql"

// SQL Server error numbers signalling a conflict.
const (
	errDeadlockVictim   = 1205
	errSnapshotConflict = 3960
)

// New returns a SQL Server provider. Connection strings use the
// sqlserver:// URL or ADO key=value format.
func New(opts ...provider.Option) *provider.Provider {
	base := []provider.Option{
		provider.WithClassifier(IsConflict),
		provider.WithConverter(Convert),
	}
	return provider.New(Name, dialect.MustLookup(dialect.MSSQL), "sqlserver", append(base, opts...)...)
}

// Convert binds string values of non-unicode character parameters as
// varchar. The driver sends any other string as nvarchar.
func Convert(p *dsql.Parameter) any {
	s, ok := p.Value.(string)
	if !ok {
		return p.Value
	}
	switch strings.ToLower(p.Type) {
	case "varchar", "char", "text":
		return mssql.VarChar(s)
	}
	return p.Value
}

// IsConflict reports whether err is a deadlock or snapshot update
// conflict.
func IsConflict(err error) bool {
	var e mssql.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Number {
	case errDeadlockVictim, errSnapshotConflict:
		return true
	}
	return false
}
