package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/syssam/dataspace"
	"github.com/syssam/dataspace/dialect"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// escapeStringValue escapes a string value for use inside a quoted SQL
// literal. Single quotes are doubled; backslashes are doubled only on MySQL,
// the one dialect that treats them as escapes.
func escapeStringValue(p dialect.Policy, s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	if p.Name == dialect.MySQL {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return strings.ReplaceAll(s, "'", "''")
}

// ErrNotAttached is returned when a command runs before it was enlisted.
var ErrNotAttached = errors.New("dialect/sql: command has no connection")

// CommandKind tells how the command text is interpreted.
type CommandKind int

const (
	// KindText is plain SQL text.
	KindText CommandKind = iota
	// KindStoredProcedure is a rendered stored procedure call.
	KindStoredProcedure
)

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ValueConverter maps a parameter to the driver argument bound for it.
// Providers use it for driver-specific types; it returns the parameter
// value unchanged when no conversion applies.
type ValueConverter func(*Parameter) any

// Command is one executable statement with its parameters. A command is
// attached to a connection, and optionally a transaction, by the
// transaction scope before it runs.
type Command struct {
	Text    string
	Kind    CommandKind
	Params  []*Parameter
	Timeout time.Duration
	Policy  dialect.Policy
	Convert ValueConverter

	conn *sql.Conn
	tx   *sql.Tx
}

// NewCommand returns a text command.
func NewCommand(p dialect.Policy, text string, params ...*Parameter) *Command {
	return &Command{Text: text, Policy: p, Params: params}
}

// Attach sets the connection and transaction the command runs on.
func (c *Command) Attach(conn *sql.Conn, tx *sql.Tx) {
	c.conn, c.tx = conn, tx
}

// Conn returns the attached connection.
func (c *Command) Conn() *sql.Conn { return c.conn }

// Tx returns the attached transaction, nil in auto-commit mode.
func (c *Command) Tx() *sql.Tx { return c.tx }

// Param returns the parameter with the given name.
func (c *Command) Param(name string) *Parameter {
	for _, p := range c.Params {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Args returns the driver arguments in binding order.
func (c *Command) Args() []any {
	args := make([]any, 0, len(c.Params))
	for _, p := range c.Params {
		v := p.Value
		if c.Convert != nil {
			v = c.Convert(p)
		}
		if !c.Policy.Named() {
			args = append(args, v)
			continue
		}
		switch p.Direction {
		case dataspace.Output, dataspace.InputOutput, dataspace.ReturnValue:
			args = append(args, sql.Named(p.Name, sql.Out{Dest: &p.Value, In: p.Direction == dataspace.InputOutput}))
		default:
			args = append(args, sql.Named(p.Name, v))
		}
	}
	return args
}

// Values returns the parameter values keyed by name.
func (c *Command) Values() map[string]any {
	m := make(map[string]any, len(c.Params))
	for _, p := range c.Params {
		m[p.Name] = p.Value
	}
	return m
}

// Outputs returns the values of non-input parameters keyed by name.
func (c *Command) Outputs() map[string]any {
	var m map[string]any
	for _, p := range c.Params {
		if p.Direction == dataspace.Input {
			continue
		}
		if m == nil {
			m = make(map[string]any)
		}
		m[p.Name] = p.Value
	}
	return m
}

func (c *Command) execer() (ExecQuerier, error) {
	switch {
	case c.tx != nil:
		return c.tx, nil
	case c.conn != nil:
		return c.conn, nil
	default:
		return nil, ErrNotAttached
	}
}

func (c *Command) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return ctx, func() {}
}

// Exec runs the command and returns its result.
func (c *Command) Exec(ctx context.Context) (sql.Result, error) {
	ex, err := c.execer()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.context(ctx)
	defer cancel()
	if err := c.setVars(ctx, ex); err != nil {
		return nil, fmt.Errorf("dialect/sql: exec: set session vars: %w", err)
	}
	res, err := ex.ExecContext(ctx, c.Text, c.Args()...)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: exec: %w", err)
	}
	return res, nil
}

// Query runs the command and returns its rows. The command timeout stays
// in force until the rows are closed.
func (c *Command) Query(ctx context.Context) (*Rows, error) {
	ex, err := c.execer()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.context(ctx)
	if err := c.setVars(ctx, ex); err != nil {
		cancel()
		return nil, fmt.Errorf("dialect/sql: query: set session vars: %w", err)
	}
	rows, err := ex.QueryContext(ctx, c.Text, c.Args()...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dialect/sql: query: %w", err)
	}
	return &Rows{rowsWithCloser{rows, func() error { cancel(); return nil }}}, nil
}

// ctyVarsKey is the key used for attaching and reading the context variables.
type ctxVarsKey struct{}

// sessionVars holds sessions/transactions variables to set before every statement.
type sessionVars struct {
	vars []struct{ k, v string }
}

// WithVar returns a new context that holds the session variable to be executed before every command.
func WithVar(ctx context.Context, name, value string) context.Context {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	sv.vars = append(sv.vars, struct {
		k, v string
	}{
		k: name,
		v: value,
	})
	return context.WithValue(ctx, ctxVarsKey{}, sv)
}

// VarFromContext returns the session variable value from the context.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	for i := len(sv.vars) - 1; i >= 0; i-- {
		if sv.vars[i].k == name {
			return sv.vars[i].v, true
		}
	}
	return "", false
}

// setVars sets the session variables carried by ctx on the command's
// connection. Variables stay set for the connection's lifetime, which is
// the enclosing scope or the single auto-commit command.
func (c *Command) setVars(ctx context.Context, ex ExecQuerier) error {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	for _, s := range sv.vars {
		if !isValidIdentifier(s.k) {
			return fmt.Errorf("invalid session variable name: %q", s.k)
		}
		stmt := fmt.Sprintf("SET %s = '%s'", s.k, escapeStringValue(c.Policy, s.v))
		if c.Policy.Name == dialect.MSSQL {
			stmt = fmt.Sprintf("EXEC sp_set_session_context '%s', N'%s'", s.k, escapeStringValue(c.Policy, s.v))
		}
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type (
	// Rows wraps the sql.Rows to avoid locks copy.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// WithCloser returns rows that call closer after the underlying rows are
// closed. Providers use it to release an auto-commit connection together
// with the reader.
func WithCloser(rows *Rows, closer func() error) *Rows {
	return &Rows{rowsWithCloser{rows.ColumnScanner, closer}}
}

// rowsWithCloser wraps the ColumnScanner interface with a custom Close hook.
type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

// Close closes the underlying ColumnScanner and calls the custom closer.
func (r rowsWithCloser) Close() error {
	err := r.ColumnScanner.Close()
	return errors.Join(err, r.closer())
}

// ResultSet is one materialized result set.
type ResultSet struct {
	Columns []string
	Rows    []map[string]any
}

// ScanMaps reads every remaining row of the current result set into
// column-keyed maps and closes rows.
func ScanMaps(rows ColumnScanner) (rs ResultSet, err error) {
	defer func() { err = errors.Join(err, rows.Close()) }()
	return scanResultSet(rows)
}

// ScanResultSets reads every result set and closes rows.
func ScanResultSets(rows ColumnScanner) (sets []ResultSet, err error) {
	defer func() { err = errors.Join(err, rows.Close()) }()
	for {
		rs, err := scanResultSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, rs)
		if !rows.NextResultSet() {
			return sets, rows.Err()
		}
	}
}

func scanResultSet(rows ColumnScanner) (ResultSet, error) {
	var rs ResultSet
	cols, err := rows.Columns()
	if err != nil {
		return rs, err
	}
	rs.Columns = cols
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return rs, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				vals[i] = append([]byte(nil), b...)
			}
			m[c] = vals[i]
		}
		rs.Rows = append(rs.Rows, m)
	}
	return rs, rows.Err()
}
