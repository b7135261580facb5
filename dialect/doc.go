// Package dialect describes the SQL dialects understood by dataspace providers.
//
// A dialect is identified by a constant string and described by a Policy:
// the quoting characters used for identifiers, how parameters are bound,
// how literals are delimited and which expressions stand for "now", the
// current user and the last generated identity.
//
// # Supported Dialects
//
//	dialect.SQLite   = "sqlite"
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.MSSQL    = "mssql"
//
// # Usage
//
//	p, err := dialect.Lookup(dialect.Postgres)
//	if err != nil {
//	    return err
//	}
//	p.Quote("Employees")         // "Employees"
//	p.Placeholder("LastName1", 2) // $2
//
// # Sub-packages
//
//   - dialect/sql: SQL text builder, commands, parameter templates and
//     driver error classification.
package dialect
