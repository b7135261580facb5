package sql

import (
	"errors"
	"fmt"

	"github.com/syssam/dataspace/dialect"
	"github.com/syssam/dataspace/query"
)

// Predicate renders a WHERE, HAVING or ON predicate without the keyword.
func (b *Builder) Predicate(g *query.Group) error {
	return b.group(g, false)
}

// group renders the terms of g in insertion order. Nested groups are
// parenthesized, which reproduces the markers of a flat item stream.
func (b *Builder) group(g *query.Group, wrap bool) error {
	if g.Len() == 0 {
		return errors.New("dialect/sql: empty predicate")
	}
	if err := g.Err(); err != nil {
		return err
	}
	if wrap {
		b.WriteString("(")
	}
	for i, t := range g.Terms() {
		if t.Conj < query.ConjAnd || t.Conj > query.ConjOrNot {
			return fmt.Errorf("dialect/sql: unknown conjunction %s", t.Conj)
		}
		switch {
		case i > 0:
			b.WriteString(" ").WriteString(t.Conj.String()).WriteString(" ")
		case t.Conj.Negated():
			b.WriteString("NOT ")
		}
		var err error
		switch n := t.Node.(type) {
		case *query.Comparison:
			err = b.comparison(n)
		case *query.Group:
			err = b.group(n, true)
		default:
			err = fmt.Errorf("dialect/sql: unexpected predicate node %T", n)
		}
		if err != nil {
			return err
		}
	}
	if wrap {
		b.WriteString(")")
	}
	return nil
}

func (b *Builder) comparison(c *query.Comparison) error {
	if err := c.Err(); err != nil {
		return err
	}
	op := c.Op()
	if op == query.Exists || op == query.NotExists {
		sub, ok := c.Right().(*query.Query)
		if !ok {
			return fmt.Errorf("dialect/sql: %s needs a sub-query", op)
		}
		b.WriteString(op.String()).WriteString(" (")
		if err := b.query(sub, false); err != nil {
			return err
		}
		b.WriteString(")")
		return nil
	}
	left := c.Left()
	if left == nil {
		return fmt.Errorf("dialect/sql: %s without left operand", op)
	}
	base := paramBase(c)
	switch op {
	case query.IsNull, query.IsNotNull:
		if err := b.Expr(left); err != nil {
			return err
		}
		b.WriteString(" ").WriteString(op.String())
	case query.In, query.NotIn:
		if err := b.Expr(left); err != nil {
			return err
		}
		b.WriteString(" ").WriteString(op.String()).WriteString(" (")
		switch r := c.Right().(type) {
		case *query.Query:
			if err := b.query(r, false); err != nil {
				return err
			}
		case []any:
			if len(r) == 0 {
				return fmt.Errorf("dialect/sql: empty %s list", op)
			}
			for i, v := range r {
				if i > 0 {
					b.WriteString(", ")
				}
				if err := b.value(v); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("dialect/sql: invalid %s operand %T", op, r)
		}
		b.WriteString(")")
	case query.Between:
		if err := b.Expr(left); err != nil {
			return err
		}
		b.WriteString(" BETWEEN ")
		if err := b.rhs(c.Right(), base); err != nil {
			return err
		}
		b.WriteString(" AND ")
		if err := b.rhs(c.Upper(), base); err != nil {
			return err
		}
	case query.Contains:
		return b.contains(left, c.Right(), base)
	case query.EQ, query.NEQ:
		if c.Right() == nil {
			if err := b.Expr(left); err != nil {
				return err
			}
			if op == query.EQ {
				b.WriteString(" IS NULL")
			} else {
				b.WriteString(" IS NOT NULL")
			}
			return nil
		}
		return b.binary(c, base)
	case query.GT, query.GTE, query.LT, query.LTE, query.Like, query.NotLike:
		return b.binary(c, base)
	default:
		return fmt.Errorf("dialect/sql: unknown comparison operator %s", op)
	}
	return nil
}

// binary renders "left op right", or "right op left" when flipped.
func (b *Builder) binary(c *query.Comparison, base string) error {
	first, second := func() error { return b.Expr(c.Left()) }, func() error { return b.rhs(c.Right(), base) }
	if c.Flipped() {
		first, second = second, first
	}
	if err := first(); err != nil {
		return err
	}
	b.WriteString(" ").WriteString(c.Op().String()).WriteString(" ")
	return second()
}

// rhs renders a right operand: a column or expression, a quantified
// sub-query, or a bound parameter for plain values.
func (b *Builder) rhs(v any, base string) error {
	switch r := v.(type) {
	case *query.Expr:
		return b.Expr(r)
	case *query.Query:
		if q := r.Quantifier(); q != query.NoQuantifier {
			b.WriteString(q.String()).WriteString(" ")
		}
		b.WriteString("(")
		if err := b.query(r, false); err != nil {
			return err
		}
		b.WriteString(")")
		return nil
	default:
		b.Arg(base, v)
		return nil
	}
}

func (b *Builder) contains(left *query.Expr, v any, base string) error {
	var open, mid, end string
	switch b.policy.Name {
	case dialect.MSSQL:
		open, mid, end = "CONTAINS(", ", ", ")"
	case dialect.Postgres:
		open, mid, end = "to_tsvector(", ") @@ plainto_tsquery(", ")"
	case dialect.MySQL:
		open, mid, end = "MATCH(", ") AGAINST(", ")"
	default:
		open, mid, end = "instr(", ", ", ") > 0"
	}
	b.WriteString(open)
	if err := b.Expr(left); err != nil {
		return err
	}
	b.WriteString(mid)
	if err := b.rhs(v, base); err != nil {
		return err
	}
	b.WriteString(end)
	return nil
}

// paramBase names the parameters of a comparison after its column.
func paramBase(c *query.Comparison) string {
	if n := c.ParamName(); n != "" {
		return n
	}
	if l := c.Left(); l != nil && l.Kind() == query.KindColumn && !l.IsLiteralText() && l.Name() != "*" {
		return l.Name()
	}
	return "p"
}
