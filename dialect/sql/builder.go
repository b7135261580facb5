package sql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/dataspace"
	"github.com/syssam/dataspace/dialect"
	"github.com/syssam/dataspace/query"
)

// Builder renders query models and commands into SQL text for one dialect,
// collecting parameters in the order their placeholders are emitted.
// A Builder is not safe for concurrent use.
type Builder struct {
	sb       strings.Builder
	policy   dialect.Policy
	params   []*Parameter
	seq      int
	visiting map[*query.Query]bool
	root     *query.Query
	defaults Defaults
}

// Defaults qualify the outermost table of a query that does not name its
// own catalog, schema or source.
type Defaults struct {
	Catalog string
	Schema  string
	Source  string
}

// NewBuilder returns a Builder for the dialect policy.
func NewBuilder(p dialect.Policy) *Builder {
	return &Builder{policy: p, visiting: make(map[*query.Query]bool)}
}

// Build renders q as a SELECT statement. Failures are construction errors.
//
//	text, params, err := sql.Build(dialect.MustLookup(dialect.SQLite), q)
func Build(p dialect.Policy, q *query.Query) (string, []*Parameter, error) {
	return BuildWith(p, q, Defaults{})
}

// BuildWith renders q like Build, applying d to its outermost table. The
// query itself is left unchanged.
func BuildWith(p dialect.Policy, q *query.Query, d Defaults) (string, []*Parameter, error) {
	b := NewBuilder(p)
	b.root, b.defaults = q, d
	if err := b.Select(q); err != nil {
		return "", nil, dataspace.NewConstructionError(err)
	}
	return b.String(), b.params, nil
}

// String returns the accumulated SQL text.
func (b *Builder) String() string { return b.sb.String() }

// Params returns the collected parameters.
func (b *Builder) Params() []*Parameter { return b.params }

// Policy returns the dialect policy.
func (b *Builder) Policy() dialect.Policy { return b.policy }

// WriteString appends raw text.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Ident appends a quoted identifier.
func (b *Builder) Ident(name string) *Builder {
	if name == "*" {
		return b.WriteString(name)
	}
	return b.WriteString(b.policy.Quote(name))
}

// Table appends a quoted, qualified table name.
func (b *Builder) Table(catalog, schema, table string) *Builder {
	return b.WriteString(b.policy.QuoteQualified(catalog, schema, table))
}

// Bind appends a placeholder for p and records it.
func (b *Builder) Bind(p *Parameter) *Builder {
	b.params = append(b.params, p)
	return b.WriteString(b.policy.Placeholder(p.Name, len(b.params)))
}

// Arg binds v under a generated name derived from base.
func (b *Builder) Arg(base string, v any) *Builder {
	b.seq++
	return b.Bind(&Parameter{Name: paramName(base) + strconv.Itoa(b.seq), Value: v})
}

// Select renders q as a SELECT statement.
func (b *Builder) Select(q *query.Query) error {
	return b.query(q, false)
}

// query renders one SELECT. arm is set for the second and later operands of
// a set operation, whose column aliases are suppressed so they line up
// positionally with the first operand.
func (b *Builder) query(q *query.Query, arm bool) error {
	if q == nil {
		return errors.New("dialect/sql: nil query")
	}
	if b.visiting[q] {
		return fmt.Errorf("dialect/sql: query on %q contains itself", q.SourceName())
	}
	b.visiting[q] = true
	defer delete(b.visiting, q)
	if err := q.Err(); err != nil {
		return err
	}
	page, size := q.Paging()
	if size > 0 && q.TopN() > 0 {
		return errors.New("dialect/sql: row limit and paging cannot be combined")
	}

	b.WriteString("SELECT ")
	if q.IsDistinct() {
		b.WriteString("DISTINCT ")
	}
	if n := q.TopN(); n > 0 && b.policy.Top {
		b.WriteString("TOP ").WriteString(strconv.Itoa(n)).WriteString(" ")
	}
	if err := b.selectList(q, arm); err != nil {
		return err
	}
	b.WriteString(" FROM ")
	if err := b.from(q); err != nil {
		return err
	}
	if g := q.WhereGroup(); g.Len() > 0 {
		b.WriteString(" WHERE ")
		if err := b.group(g, false); err != nil {
			return err
		}
	}
	for _, op := range q.SetOps() {
		b.WriteString(" ").WriteString(op.Kind.String()).WriteString(" ")
		if err := b.query(op.Query, true); err != nil {
			return err
		}
	}
	if err := b.groupBy(q); err != nil {
		return err
	}
	if g := q.HavingGroup(); g.Len() > 0 {
		b.WriteString(" HAVING ")
		if err := b.group(g, false); err != nil {
			return err
		}
	}
	if err := b.orderBy(q, size > 0); err != nil {
		return err
	}
	switch {
	case size > 0 && b.policy.Paging == dialect.OffsetFetch:
		fmt.Fprintf(&b.sb, " OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", (page-1)*size, size)
	case size > 0:
		fmt.Fprintf(&b.sb, " LIMIT %d OFFSET %d", size, (page-1)*size)
	case q.TopN() > 0 && !b.policy.Top:
		fmt.Fprintf(&b.sb, " LIMIT %d", q.TopN())
	}
	return nil
}

func (b *Builder) selectList(q *query.Query, arm bool) error {
	sels := q.Selects()
	count, countAlias := q.CountAll()
	if len(sels) == 0 && !count {
		b.WriteString("*")
		return nil
	}
	for i, e := range sels {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := b.Expr(e); err != nil {
			return err
		}
		if alias := selectAlias(e); alias != "" && !arm {
			b.WriteString(" AS ").Ident(alias)
		}
	}
	if count {
		if len(sels) > 0 {
			b.WriteString(", ")
		}
		b.WriteString("COUNT(*)")
		if countAlias != "" && !arm {
			b.WriteString(" AS ").Ident(countAlias)
		}
	}
	return nil
}

// selectAlias returns the output alias of a selected expression. Columns
// wrapped by sub-operators keep their column name.
func selectAlias(e *query.Expr) string {
	if a := e.Alias(); a != "" {
		return a
	}
	if e.Kind() == query.KindColumn && !e.IsLiteralText() && len(e.Ops()) > 0 && e.Name() != "*" {
		return e.Name()
	}
	return ""
}

// from renders the FROM source and its joins. Two or more joins are nested
// with parentheses so every dialect associates them left to right.
func (b *Builder) from(q *query.Query) error {
	joins := q.Joins()
	if len(joins) > 1 {
		b.WriteString(strings.Repeat("(", len(joins)-1))
	}
	if err := b.tableRef(q); err != nil {
		return err
	}
	for i, j := range joins {
		b.WriteString(" ").WriteString(j.Kind().String()).WriteString(" ")
		if err := b.tableRef(j.Query()); err != nil {
			return err
		}
		if j.Cond().Len() == 0 {
			return fmt.Errorf("dialect/sql: %s %q has no ON condition", j.Kind(), j.Query().SourceName())
		}
		b.WriteString(" ON ")
		if err := b.group(j.Cond(), false); err != nil {
			return err
		}
		if i < len(joins)-1 {
			b.WriteString(")")
		}
	}
	return nil
}

// tableRef renders a table or derived table with its alias. Only the source
// and alias of a joined query are used.
// sourceName is the object name q reads from, after request defaults.
func (b *Builder) sourceName(q *query.Query) string {
	source := q.SourceName()
	if q == b.root && source == q.Table() && b.defaults.Source != "" {
		return b.defaults.Source
	}
	return source
}

func (b *Builder) tableRef(q *query.Query) error {
	if q == nil {
		return errors.New("dialect/sql: nil table source")
	}
	if inner := q.From(); inner != nil {
		b.WriteString("(")
		if err := b.query(inner, false); err != nil {
			return err
		}
		b.WriteString(") ").Ident(q.FromAlias())
		return nil
	}
	catalog, schema, source := q.CatalogName(), q.SchemaName(), b.sourceName(q)
	if q == b.root {
		if catalog == "" {
			catalog = b.defaults.Catalog
		}
		if schema == "" {
			schema = b.defaults.Schema
		}
	}
	if source == "" {
		return errors.New("dialect/sql: query has no table")
	}
	b.Table(catalog, schema, source)
	if a := q.Alias(); a != "" {
		b.WriteString(" ").Ident(a)
	}
	return nil
}

func (b *Builder) groupBy(q *query.Query) error {
	items := q.GroupItems()
	if len(items) == 0 {
		if q.Rollup() {
			return errors.New("dialect/sql: WITH ROLLUP requires GROUP BY columns")
		}
		return nil
	}
	b.WriteString(" GROUP BY ")
	rollup := q.Rollup()
	if rollup {
		switch b.policy.Name {
		case dialect.Postgres:
			b.WriteString("ROLLUP (")
		case dialect.SQLite:
			return errors.New("dialect/sql: sqlite does not support ROLLUP")
		}
	}
	for i, e := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := b.Expr(e); err != nil {
			return err
		}
	}
	if rollup {
		if b.policy.Name == dialect.Postgres {
			b.WriteString(")")
		} else {
			b.WriteString(" WITH ROLLUP")
		}
	}
	return nil
}

// orderBy renders ORDER BY. Paging with OFFSET/FETCH requires an ORDER BY,
// which is synthesized from the first selected column when absent.
func (b *Builder) orderBy(q *query.Query, paged bool) error {
	items := q.OrderItems()
	if len(items) == 0 {
		if paged && b.policy.Paging == dialect.OffsetFetch {
			b.WriteString(" ORDER BY ")
			if sels := q.Selects(); len(sels) > 0 && sels[0].Kind() == query.KindColumn && !sels[0].IsLiteralText() && sels[0].Name() != "*" {
				return b.column(sels[0])
			}
			b.WriteString("(SELECT NULL)")
		}
		return nil
	}
	b.WriteString(" ORDER BY ")
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		if it.Expr == nil {
			return errors.New("dialect/sql: nil order item")
		}
		if it.Expr.IsLiteralText() && len(it.Expr.Ops()) == 0 {
			text, err := it.Expr.LiteralText()
			if err != nil {
				return err
			}
			b.WriteString(text)
			if err := b.direction(it.Dir, false); err != nil {
				return err
			}
			continue
		}
		if err := b.Expr(it.Expr); err != nil {
			return err
		}
		if err := b.direction(it.Dir, true); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) direction(d query.Direction, defaultAsc bool) error {
	switch {
	case d == query.Desc:
		b.WriteString(" DESC")
	case d == query.Asc || d == query.DirNone && defaultAsc:
		b.WriteString(" ASC")
	case d != query.DirNone:
		return fmt.Errorf("dialect/sql: unknown sort direction %s", d)
	}
	return nil
}
