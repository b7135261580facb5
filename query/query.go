package query

import (
	"errors"
	"fmt"
)

// JoinKind is the type of a join.
type JoinKind int

// Join kinds.
const (
	InnerJoin JoinKind = iota
	LeftJoin
	RightJoin
	FullJoin
)

// String returns the SQL keyword of the join.
func (k JoinKind) String() string {
	switch k {
	case InnerJoin:
		return "INNER JOIN"
	case LeftJoin:
		return "LEFT JOIN"
	case RightJoin:
		return "RIGHT JOIN"
	case FullJoin:
		return "FULL JOIN"
	default:
		return fmt.Sprintf("JoinKind(%d)", int(k))
	}
}

// SetKind is a set operation.
type SetKind int

// Set operations.
const (
	Union SetKind = iota
	UnionAll
	Intersect
	Except
)

// String returns the SQL keyword of the set operation.
func (k SetKind) String() string {
	switch k {
	case Union:
		return "UNION"
	case UnionAll:
		return "UNION ALL"
	case Intersect:
		return "INTERSECT"
	case Except:
		return "EXCEPT"
	default:
		return fmt.Sprintf("SetKind(%d)", int(k))
	}
}

// Quantifier prefixes a sub-query used in a comparison.
type Quantifier int

// Sub-query quantifiers.
const (
	NoQuantifier Quantifier = iota
	All
	Any
	Some
)

// String returns the SQL keyword of the quantifier.
func (q Quantifier) String() string {
	switch q {
	case All:
		return "ALL"
	case Any:
		return "ANY"
	case Some:
		return "SOME"
	default:
		return ""
	}
}

// Direction is a sort direction.
type Direction int

// Sort directions. DirNone renders ASC for expressions and nothing for
// literal passthroughs.
const (
	DirNone Direction = iota
	Asc
	Desc
)

// String returns the SQL keyword of the direction.
func (d Direction) String() string {
	switch d {
	case DirNone:
		return ""
	case Asc:
		return "ASC"
	case Desc:
		return "DESC"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// OrderItem is one ORDER BY entry.
type OrderItem struct {
	Expr *Expr
	Dir  Direction
}

// SetOp is one set operation applied to a query.
type SetOp struct {
	Kind  SetKind
	Query *Query
}

// Join is a joined query with its ON predicate.
type Join struct {
	kind   JoinKind
	query  *Query
	on     *Group
	parent *Query
}

// Kind returns the join kind.
func (j *Join) Kind() JoinKind { return j.kind }

// Query returns the joined query.
func (j *Join) Query() *Query { return j.query }

// Cond returns the ON predicate.
func (j *Join) Cond() *Group { return j.on }

// On appends to the ON predicate and returns the parent query.
func (j *Join) On(items ...Item) *Query {
	j.on.Append(items...)
	return j.parent
}

// Query is a dialect-neutral SELECT description.
type Query struct {
	table      string
	catalog    string
	schema     string
	source     string
	alias      string
	from       *Query
	fromAlias  string
	subAlias   string
	quantifier Quantifier
	distinct   bool
	top        int
	selects    []*Expr
	countAll   bool
	countAlias string
	where      *Group
	having     *Group
	joins      []*Join
	orderBy    []OrderItem
	groupBy    []*Expr
	rollup     bool
	setOps     []SetOp
	pageNumber int
	pageSize   int
	errs       []error
}

// New returns a query reading from the given table or view.
func New(table string) *Query {
	return &Query{
		table:  table,
		where:  &Group{def: ConjAnd},
		having: &Group{def: ConjAnd},
	}
}

// Derived returns a query reading from the result of inner, which is
// rendered as a parenthesized derived table with the given alias.
func Derived(inner *Query, alias string) *Query {
	q := New("")
	q.from = inner
	if alias == "" {
		q.fail(errors.New("query: derived table requires an alias"))
	}
	q.fromAlias = alias
	return q
}

func (q *Query) fail(err error) {
	q.errs = append(q.errs, err)
}

// Catalog sets the catalog (database) qualifying the table.
func (q *Query) Catalog(name string) *Query {
	q.catalog = name
	return q
}

// Schema sets the schema qualifying the table.
func (q *Query) Schema(name string) *Query {
	q.schema = name
	return q
}

// Source overrides the table name with a named query source, such as a view.
func (q *Query) Source(name string) *Query {
	q.source = name
	return q
}

// As sets the alias of the table in FROM and JOIN clauses.
func (q *Query) As(alias string) *Query {
	q.alias = alias
	return q
}

// Distinct selects distinct rows.
func (q *Query) Distinct() *Query {
	q.distinct = true
	return q
}

// Top limits the number of rows.
func (q *Query) Top(n int) *Query {
	if n < 0 {
		q.fail(fmt.Errorf("query: negative row limit %d", n))
	}
	q.top = n
	return q
}

// Select appends selected expressions. Plain strings are column names.
func (q *Query) Select(cols ...any) *Query {
	for _, c := range cols {
		switch v := c.(type) {
		case string:
			q.selects = append(q.selects, C(v))
		case *Expr:
			q.selects = append(q.selects, v)
		case *Query:
			e := &Expr{kind: KindSubQuery, sub: v}
			if v.subAlias == "" {
				q.fail(errors.New("query: inline sub-query requires an alias"))
			}
			e.alias = v.subAlias
			q.selects = append(q.selects, e)
		default:
			q.fail(fmt.Errorf("query: unsupported select item %T", c))
		}
	}
	return q
}

// Count selects COUNT(*) with an optional alias.
func (q *Query) Count(alias string) *Query {
	q.countAll = true
	q.countAlias = alias
	return q
}

// Where appends to the WHERE predicate. Successive calls are joined with AND.
func (q *Query) Where(items ...Item) *Query {
	q.where.Append(items...)
	return q
}

// Having appends to the HAVING predicate.
func (q *Query) Having(items ...Item) *Query {
	q.having.Append(items...)
	return q
}

func (q *Query) join(kind JoinKind, other *Query) *Join {
	j := &Join{kind: kind, query: other, on: &Group{def: ConjAnd}, parent: q}
	if other == q {
		q.fail(errors.New("query: a query cannot join itself"))
	}
	q.joins = append(q.joins, j)
	return j
}

// InnerJoin joins other with INNER JOIN.
func (q *Query) InnerJoin(other *Query) *Join { return q.join(InnerJoin, other) }

// LeftJoin joins other with LEFT JOIN.
func (q *Query) LeftJoin(other *Query) *Join { return q.join(LeftJoin, other) }

// RightJoin joins other with RIGHT JOIN.
func (q *Query) RightJoin(other *Query) *Join { return q.join(RightJoin, other) }

// FullJoin joins other with FULL JOIN.
func (q *Query) FullJoin(other *Query) *Join { return q.join(FullJoin, other) }

// OrderBy appends ORDER BY items. Accepts OrderItem, *Expr and column names.
func (q *Query) OrderBy(items ...any) *Query {
	for _, it := range items {
		switch v := it.(type) {
		case OrderItem:
			if v.Dir < DirNone || v.Dir > Desc {
				q.fail(fmt.Errorf("query: unknown sort direction %s", v.Dir))
				continue
			}
			q.orderBy = append(q.orderBy, v)
		case *Expr:
			q.orderBy = append(q.orderBy, OrderItem{Expr: v})
		case string:
			q.orderBy = append(q.orderBy, OrderItem{Expr: C(v)})
		default:
			q.fail(fmt.Errorf("query: unsupported order item %T", it))
		}
	}
	return q
}

// GroupBy appends GROUP BY expressions. Accepts *Expr and column names.
func (q *Query) GroupBy(items ...any) *Query {
	for _, it := range items {
		switch v := it.(type) {
		case *Expr:
			q.groupBy = append(q.groupBy, v)
		case string:
			q.groupBy = append(q.groupBy, C(v))
		default:
			q.fail(fmt.Errorf("query: unsupported group item %T", it))
		}
	}
	return q
}

// WithRollup adds WITH ROLLUP to the GROUP BY clause.
func (q *Query) WithRollup() *Query {
	q.rollup = true
	return q
}

func (q *Query) set(kind SetKind, other *Query) *Query {
	if other == nil || other == q {
		q.fail(fmt.Errorf("query: invalid %s operand", kind))
		return q
	}
	q.setOps = append(q.setOps, SetOp{Kind: kind, Query: other})
	return q
}

// Union appends UNION other.
func (q *Query) Union(other *Query) *Query { return q.set(Union, other) }

// UnionAll appends UNION ALL other.
func (q *Query) UnionAll(other *Query) *Query { return q.set(UnionAll, other) }

// Intersect appends INTERSECT other.
func (q *Query) Intersect(other *Query) *Query { return q.set(Intersect, other) }

// Except appends EXCEPT other.
func (q *Query) Except(other *Query) *Query { return q.set(Except, other) }

// Page selects the 1-based page of the given size. Both values are required.
func (q *Query) Page(number, size int) *Query {
	if number < 1 || size < 1 {
		q.fail(fmt.Errorf("query: page number and size must both be positive, got %d and %d", number, size))
	}
	q.pageNumber, q.pageSize = number, size
	return q
}

// SubQuery sets the alias used when q is embedded as an inline sub-query.
func (q *Query) SubQuery(alias string) *Query {
	q.subAlias = alias
	return q
}

// All marks the sub-query with the ALL quantifier.
func (q *Query) All() *Query {
	q.quantifier = All
	return q
}

// Any marks the sub-query with the ANY quantifier.
func (q *Query) Any() *Query {
	q.quantifier = Any
	return q
}

// Some marks the sub-query with the SOME quantifier.
func (q *Query) Some() *Query {
	q.quantifier = Some
	return q
}

// C returns a column reference qualified by q's alias.
func (q *Query) C(name string) *Expr {
	return C(name).Of(q)
}

// Table returns the table name.
func (q *Query) Table() string { return q.table }

// CatalogName returns the catalog.
func (q *Query) CatalogName() string { return q.catalog }

// SchemaName returns the schema.
func (q *Query) SchemaName() string { return q.schema }

// SourceName returns the named query source, falling back to the table.
func (q *Query) SourceName() string {
	if q.source != "" {
		return q.source
	}
	return q.table
}

// Alias returns the FROM/JOIN alias.
func (q *Query) Alias() string { return q.alias }

// From returns the inner query of a derived table.
func (q *Query) From() *Query { return q.from }

// FromAlias returns the alias of the derived table.
func (q *Query) FromAlias() string { return q.fromAlias }

// SubAlias returns the alias used as an inline sub-query.
func (q *Query) SubAlias() string { return q.subAlias }

// Quantifier returns the sub-query quantifier.
func (q *Query) Quantifier() Quantifier { return q.quantifier }

// IsDistinct reports whether DISTINCT is set.
func (q *Query) IsDistinct() bool { return q.distinct }

// TopN returns the row limit, or 0.
func (q *Query) TopN() int { return q.top }

// Selects returns the selected expressions.
func (q *Query) Selects() []*Expr { return q.selects }

// CountAll returns whether COUNT(*) mode is set and its alias.
func (q *Query) CountAll() (bool, string) { return q.countAll, q.countAlias }

// WhereGroup returns the WHERE predicate.
func (q *Query) WhereGroup() *Group { return q.where }

// HavingGroup returns the HAVING predicate.
func (q *Query) HavingGroup() *Group { return q.having }

// Joins returns the joins in insertion order.
func (q *Query) Joins() []*Join { return q.joins }

// OrderItems returns the ORDER BY items.
func (q *Query) OrderItems() []OrderItem { return q.orderBy }

// GroupItems returns the GROUP BY expressions.
func (q *Query) GroupItems() []*Expr { return q.groupBy }

// Rollup reports whether WITH ROLLUP is set.
func (q *Query) Rollup() bool { return q.rollup }

// SetOps returns the set operations in insertion order.
func (q *Query) SetOps() []SetOp { return q.setOps }

// Paging returns the page number and size, both zero when unset.
func (q *Query) Paging() (number, size int) { return q.pageNumber, q.pageSize }

// Err returns the construction errors recorded on the query itself.
func (q *Query) Err() error {
	errs := append([]error(nil), q.errs...)
	errs = append(errs, q.where.Err(), q.having.Err())
	for _, j := range q.joins {
		errs = append(errs, j.on.Err())
	}
	for _, e := range q.selects {
		errs = append(errs, e.Err())
	}
	return errors.Join(errs...)
}
