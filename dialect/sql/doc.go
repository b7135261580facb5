// Package sql renders query models and save packets into dialect SQL and
// executes the resulting commands over database/sql.
//
// # Building
//
// Build walks a query.Query with a dialect.Policy and returns the SQL text
// with its parameters in placeholder order:
//
//	q := query.New("Employees").
//	    Where(query.C("EmployeeID").GT(5), query.C("LastName").Like("G%")).
//	    OrderBy(query.C("LastName").Asc())
//	text, params, err := sql.Build(dialect.MustLookup(dialect.SQLite), q)
//	// SELECT * FROM "Employees" WHERE "EmployeeID" > @EmployeeID1
//	//     AND "LastName" LIKE @LastName2 ORDER BY "LastName" ASC
//
// Clauses are emitted in the order SELECT, FROM, JOIN, WHERE, set
// operations, GROUP BY, HAVING, ORDER BY and paging. The second and later
// operands of a set operation carry no column aliases.
//
// # Save commands
//
// InsertCommand, UpdateCommand and DeleteCommand build the statements of
// one save packet and return a Plan telling which columns are bound, which
// the database assigns, which carry server expressions and which must be
// read back after execution:
//
//	cmd, plan, err := sql.UpdateCommand(policy, sql.Target{Table: "Employees"},
//	    cols, templates, packet, sql.SaveOptions{})
//
// Parameter templates are cached per entity type by ParameterCache; every
// command receives fresh Parameter values instantiated from them.
//
// # Execution
//
// A Command runs on the connection and transaction attached to it by the
// transaction scope:
//
//	txscope.Enlist(ctx, cmd, connStr, opener)
//	res, err := cmd.Exec(ctx)
//
// Driver errors with a conflict signature are turned into
// dataspace.ConcurrencyError by Classify. StatsTracer and DebugTracer are
// ready-made subscribers of the per-command trace hook.
package sql
