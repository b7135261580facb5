package sql

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/syssam/dataspace"
	"github.com/syssam/dataspace/dialect"
)

// ErrNoChanges is returned by UpdateCommand for a packet without modified
// columns.
var ErrNoChanges = errors.New("dialect/sql: packet has no modified columns")

// Target names the table written by a save command.
type Target struct {
	Catalog string
	Schema  string
	Table   string
}

// SaveOptions carries request-level settings of save commands.
type SaveOptions struct {
	Audit    dataspace.Audit
	UserName string
	// Now returns the application time used for client-side audit dates.
	Now            func() time.Time
	IgnoreComputed bool
}

func (o SaveOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Plan tells how a save command treats each column.
type Plan struct {
	// Params are the columns bound as parameters.
	Params []string
	// Assigned are the columns whose value the database assigns: identity,
	// row version and computed columns, and columns left out of an INSERT.
	Assigned []string
	// Server are the columns set by a literal SQL expression.
	Server []string
	// Refresh are the columns whose stored value must be read back.
	Refresh []string
	// Identity is the auto-increment column, if any.
	Identity string
	// Returning reports whether the command itself returns the Refresh
	// columns through RETURNING or OUTPUT INSERTED.
	Returning bool
}

// InsertCommand builds the INSERT of an added packet.
func InsertCommand(p dialect.Policy, t Target, cols dataspace.Columns, tpl *Templates, pkt *dataspace.SavePacket, opt SaveOptions) (*Command, *Plan, error) {
	if t.Table == "" {
		return nil, nil, dataspace.Constructionf("insert: no destination table")
	}
	var (
		plan   = &Plan{}
		names  []string
		values []func(*Builder)
	)
	for _, c := range cols.Sorted() {
		switch {
		case opt.Audit.IsSpecial(c):
			server, v := auditValue(p, c, opt)
			names = append(names, c.Name)
			if server != "" {
				plan.Server = append(plan.Server, c.Name)
				plan.Refresh = append(plan.Refresh, c.Name)
				values = append(values, func(b *Builder) { b.WriteString(server) })
				continue
			}
			pkt.Set(c.Name, v)
			plan.Params = append(plan.Params, c.Name)
			prm := tpl.template(c).Instantiate(v)
			values = append(values, func(b *Builder) { b.Bind(prm) })
		case c.Generated():
			plan.Assigned = append(plan.Assigned, c.Name)
			if c.IsAutoIncrement {
				plan.Identity = c.Name
			}
			if !c.IsComputed || !opt.IgnoreComputed {
				plan.Refresh = append(plan.Refresh, c.Name)
			}
		case c.IsEntitySpacesConcurrency:
			names = append(names, c.Name)
			plan.Server = append(plan.Server, c.Name)
			plan.Refresh = append(plan.Refresh, c.Name)
			values = append(values, func(b *Builder) { b.WriteString("1") })
		case pkt.IsModified(c.Name):
			names = append(names, c.Name)
			plan.Params = append(plan.Params, c.Name)
			prm := tpl.template(c).Instantiate(pkt.CurrentValues[c.Name])
			values = append(values, func(b *Builder) { b.Bind(prm) })
		default:
			plan.Assigned = append(plan.Assigned, c.Name)
			if c.HasDefault {
				plan.Refresh = append(plan.Refresh, c.Name)
			}
		}
	}
	plan.Returning = len(plan.Refresh) > 0 && (p.Returning || p.OutputInserted)

	b := NewBuilder(p)
	b.WriteString("INSERT INTO ").Table(t.Catalog, t.Schema, t.Table)
	if len(names) > 0 {
		b.WriteString(" (")
		for i, n := range names {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(n)
		}
		b.WriteString(")")
	}
	if plan.Returning && p.OutputInserted {
		b.outputInserted(plan.Refresh)
	}
	switch {
	case len(names) > 0:
		b.WriteString(" VALUES (")
		for i, v := range values {
			if i > 0 {
				b.WriteString(", ")
			}
			v(b)
		}
		b.WriteString(")")
	case p.Name == dialect.MySQL:
		b.WriteString(" () VALUES ()")
	default:
		b.WriteString(" DEFAULT VALUES")
	}
	if plan.Returning && p.Returning {
		b.returning(plan.Refresh)
	}
	return b.command(), plan, nil
}

// UpdateCommand builds the UPDATE of a modified packet. The WHERE clause
// matches the primary key, the row version and the application version
// counter against their original values, so a lost update affects no rows.
func UpdateCommand(p dialect.Policy, t Target, cols dataspace.Columns, tpl *Templates, pkt *dataspace.SavePacket, opt SaveOptions) (*Command, *Plan, error) {
	if t.Table == "" {
		return nil, nil, dataspace.Constructionf("update: no destination table")
	}
	sorted := cols.Sorted()
	if len(sorted.PrimaryKeys()) == 0 {
		return nil, nil, dataspace.Constructionf("update %s: no primary key columns", t.Table)
	}
	var (
		plan     = &Plan{}
		sets     []func(*Builder)
		modified int
	)
	for _, c := range sorted {
		switch {
		case opt.Audit.IsSpecial(c):
			if c.Special != dataspace.DateModified && c.Special != dataspace.ModifiedBy {
				continue
			}
			server, v := auditValue(p, c, opt)
			if server != "" {
				plan.Server = append(plan.Server, c.Name)
				plan.Refresh = append(plan.Refresh, c.Name)
				sets = append(sets, func(b *Builder) { b.Ident(c.Name).WriteString(" = ").WriteString(server) })
				continue
			}
			pkt.Set(c.Name, v)
			plan.Params = append(plan.Params, c.Name)
			prm := tpl.template(c).Instantiate(v)
			sets = append(sets, func(b *Builder) { b.Ident(c.Name).WriteString(" = ").Bind(prm) })
		case c.Generated():
			plan.Assigned = append(plan.Assigned, c.Name)
			if c.IsConcurrency || (c.IsComputed && !opt.IgnoreComputed) {
				plan.Refresh = append(plan.Refresh, c.Name)
			}
		case c.IsEntitySpacesConcurrency:
			plan.Server = append(plan.Server, c.Name)
			plan.Refresh = append(plan.Refresh, c.Name)
			sets = append(sets, func(b *Builder) {
				b.Ident(c.Name).WriteString(" = ").Ident(c.Name).WriteString(" + 1")
			})
		case pkt.IsModified(c.Name):
			modified++
			plan.Params = append(plan.Params, c.Name)
			prm := tpl.template(c).Instantiate(pkt.CurrentValues[c.Name])
			sets = append(sets, func(b *Builder) { b.Ident(c.Name).WriteString(" = ").Bind(prm) })
		}
	}
	if modified == 0 {
		return nil, nil, ErrNoChanges
	}
	plan.Returning = len(plan.Refresh) > 0 && (p.Returning || p.OutputInserted)

	b := NewBuilder(p)
	b.WriteString("UPDATE ").Table(t.Catalog, t.Schema, t.Table).WriteString(" SET ")
	for i, s := range sets {
		if i > 0 {
			b.WriteString(", ")
		}
		s(b)
	}
	if plan.Returning && p.OutputInserted {
		b.outputInserted(plan.Refresh)
	}
	b.WriteString(" WHERE ")
	b.originalMatch(sorted, tpl, pkt, func(c *dataspace.Column) bool {
		return c.IsInPrimaryKey || c.IsConcurrency || c.IsEntitySpacesConcurrency
	})
	if plan.Returning && p.Returning {
		b.returning(plan.Refresh)
	}
	return b.command(), plan, nil
}

// DeleteCommand builds the DELETE of a deleted packet.
func DeleteCommand(p dialect.Policy, t Target, cols dataspace.Columns, tpl *Templates, pkt *dataspace.SavePacket) (*Command, error) {
	if t.Table == "" {
		return nil, dataspace.Constructionf("delete: no destination table")
	}
	sorted := cols.Sorted()
	if len(sorted.PrimaryKeys()) == 0 {
		return nil, dataspace.Constructionf("delete %s: no primary key columns", t.Table)
	}
	b := NewBuilder(p)
	b.WriteString("DELETE FROM ").Table(t.Catalog, t.Schema, t.Table).WriteString(" WHERE ")
	b.originalMatch(sorted, tpl, pkt, func(c *dataspace.Column) bool {
		return c.IsInPrimaryKey || c.IsEntitySpacesConcurrency
	})
	return b.command(), nil
}

// SelectByKey builds the query reading columns of the row identified by the
// key values.
func SelectByKey(p dialect.Policy, t Target, columns []string, keys dataspace.Columns, values map[string]any) (*Command, error) {
	if len(columns) == 0 || len(keys) == 0 {
		return nil, dataspace.Constructionf("select %s: no columns or keys", t.Table)
	}
	b := NewBuilder(p)
	b.WriteString("SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c)
	}
	b.WriteString(" FROM ").Table(t.Catalog, t.Schema, t.Table).WriteString(" WHERE ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		v, ok := values[k.Name]
		if !ok || v == nil {
			return nil, dataspace.Constructionf("select %s: no value for key %s", t.Table, k.Name)
		}
		b.Ident(k.Name).WriteString(" = ").Arg(k.Property(), v)
	}
	return b.command(), nil
}

// ProcCommand renders a stored procedure call. rows selects the form that
// returns a result set where the dialect distinguishes it.
func ProcCommand(p dialect.Policy, name string, params []*Parameter, rows bool) (*Command, error) {
	if !isValidIdentifier(name) {
		return nil, dataspace.Constructionf("invalid procedure name %q", name)
	}
	qname := p.QuoteQualified(strings.Split(name, ".")...)
	b := NewBuilder(p)
	switch p.Name {
	case dialect.MSSQL:
		b.WriteString("EXEC ").WriteString(qname)
		for i, prm := range params {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(" ").WriteString(p.ParamPrefix + prm.Name).WriteString(" = ").Bind(prm)
			if prm.Direction != dataspace.Input {
				b.WriteString(" OUTPUT")
			}
		}
	case dialect.Postgres, dialect.MySQL:
		if rows && p.Name == dialect.Postgres {
			b.WriteString("SELECT * FROM ")
		} else {
			b.WriteString("CALL ")
		}
		b.WriteString(qname).WriteString("(")
		for i, prm := range params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Bind(prm)
		}
		b.WriteString(")")
	default:
		return nil, fmt.Errorf("%w: %s stored procedures", dataspace.ErrUnsupported, p.Name)
	}
	cmd := b.command()
	cmd.Kind = KindStoredProcedure
	return cmd, nil
}

// ProcSaveCommand renders the stored procedure call persisting a packet.
// Inserts and updates pass every column's current value, deletes pass the
// original key and version values. Generated columns are bound as
// input/output parameters on dialects supporting output parameters.
func ProcSaveCommand(p dialect.Policy, proc string, cols dataspace.Columns, tpl *Templates, pkt *dataspace.SavePacket) (*Command, error) {
	var params []*Parameter
	for _, c := range cols.Sorted() {
		t := tpl.template(c)
		switch pkt.RowState {
		case dataspace.Deleted:
			if c.IsInPrimaryKey || c.IsConcurrency || c.IsEntitySpacesConcurrency {
				params = append(params, t.Instantiate(pkt.Original(c.Name)))
			}
		case dataspace.Added, dataspace.Modified:
			prm := t.Instantiate(pkt.CurrentValues[c.Name])
			if p.Named() && (c.Generated() || c.IsEntitySpacesConcurrency) {
				prm.Direction = dataspace.InputOutput
			}
			params = append(params, prm)
		default:
			return nil, fmt.Errorf("dialect/sql: cannot save packet in state %s", pkt.RowState)
		}
	}
	return ProcCommand(p, proc, params, false)
}

// originalMatch renders "col = @OrigCol" for the selected columns, using
// IS NULL for a missing original row version.
func (b *Builder) originalMatch(cols dataspace.Columns, tpl *Templates, pkt *dataspace.SavePacket, match func(*dataspace.Column) bool) {
	first := true
	for _, c := range cols {
		if !match(c) {
			continue
		}
		if !first {
			b.WriteString(" AND ")
		}
		first = false
		v := pkt.Original(c.Name)
		if v == nil && !c.IsInPrimaryKey {
			b.Ident(c.Name).WriteString(" IS NULL")
			continue
		}
		t := tpl.template(c)
		b.Ident(c.Name).WriteString(" = ").Bind(t.InstantiateAs("Orig"+t.Name, v))
	}
}

func (b *Builder) outputInserted(cols []string) {
	b.WriteString(" OUTPUT ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("INSERTED.").Ident(c)
	}
}

func (b *Builder) returning(cols []string) {
	b.WriteString(" RETURNING ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c)
	}
}

func (b *Builder) command() *Command {
	return &Command{Text: b.String(), Params: b.params, Policy: b.policy}
}

// auditValue returns the server expression of an audit column, or the
// application value to bind when the column is maintained client side.
func auditValue(p dialect.Policy, c *dataspace.Column, opt SaveOptions) (string, any) {
	ac := opt.Audit.For(c.Special)
	switch c.Special {
	case dataspace.DateAdded, dataspace.DateModified:
		if ac.ServerSide {
			return p.Now, nil
		}
		return "", opt.now()
	default:
		if ac.ServerSide {
			return p.CurrentUser, nil
		}
		return "", opt.UserName
	}
}
