// Package postgres provides the PostgreSQL data provider. New uses the
// lib/pq driver and NewPgx the pgx standard library driver.
package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/syssam/dataspace/dialect"
	"github.com/syssam/dataspace/provider"
)

// Name is the registry name of the provider.
const Name = "postgres"

// New returns a PostgreSQL provider using lib/pq.
func New(opts ...provider.Option) *provider.Provider {
	return newProvider("postgres", opts)
}

// NewPgx returns a PostgreSQL provider using pgx through database/sql.
func NewPgx(opts ...provider.Option) *provider.Provider {
	return newProvider("pgx", opts)
}

func newProvider(driver string, opts []provider.Option) *provider.Provider {
	base := []provider.Option{
		provider.WithClassifier(IsConflict),
	}
	return provider.New(Name, dialect.MustLookup(dialect.Postgres), driver, append(base, opts...)...)
}

// IsConflict reports whether err carries a transaction rollback SQLSTATE
// (class 40), from either driver.
func IsConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "40"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "40")
	}
	return false
}
