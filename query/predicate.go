package query

import (
	"errors"
	"fmt"
)

// Operator is a comparison operator.
type Operator int

// Comparison operators.
const (
	EQ Operator = iota
	NEQ
	GT
	GTE
	LT
	LTE
	Like
	NotLike
	IsNull
	IsNotNull
	In
	NotIn
	Between
	Exists
	NotExists
	Contains
)

var operatorNames = [...]string{
	EQ:        "=",
	NEQ:       "<>",
	GT:        ">",
	GTE:       ">=",
	LT:        "<",
	LTE:       "<=",
	Like:      "LIKE",
	NotLike:   "NOT LIKE",
	IsNull:    "IS NULL",
	IsNotNull: "IS NOT NULL",
	In:        "IN",
	NotIn:     "NOT IN",
	Between:   "BETWEEN",
	Exists:    "EXISTS",
	NotExists: "NOT EXISTS",
	Contains:  "CONTAINS",
}

// String returns the SQL text of the operator.
func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return fmt.Sprintf("Operator(%d)", int(o))
	}
	return operatorNames[o]
}

// Comparison is a leaf predicate: Left Op Right.
type Comparison struct {
	left    *Expr
	op      Operator
	right   any
	upper   any
	flipped bool
	param   string
	err     error
}

// Left returns the left operand. It is nil for EXISTS comparisons.
func (c *Comparison) Left() *Expr { return c.left }

// Op returns the operator.
func (c *Comparison) Op() Operator { return c.op }

// Right returns the right operand: a value, a []any, an *Expr or a *Query.
func (c *Comparison) Right() any { return c.right }

// Upper returns the upper bound of a BETWEEN comparison.
func (c *Comparison) Upper() any { return c.upper }

// Flipped reports whether the right operand is emitted first.
func (c *Comparison) Flipped() bool { return c.flipped }

// ParamName returns the explicit parameter base name, if set.
func (c *Comparison) ParamName() string { return c.param }

// Err returns the construction error of the comparison, if any.
func (c *Comparison) Err() error { return c.err }

// Flip emits the right operand before the operator and the left after it.
func (c *Comparison) Flip() *Comparison {
	c.flipped = true
	return c
}

// Param overrides the base name used for the generated parameter.
func (c *Comparison) Param(name string) *Comparison {
	c.param = name
	return c
}

func (e *Expr) cmp(op Operator, right any) *Comparison {
	c := &Comparison{left: e, op: op, right: right, err: e.err}
	if r, ok := right.(*Expr); ok && c.err == nil {
		c.err = r.err
	}
	return c
}

// EQ returns e = v.
func (e *Expr) EQ(v any) *Comparison { return e.cmp(EQ, v) }

// NEQ returns e <> v.
func (e *Expr) NEQ(v any) *Comparison { return e.cmp(NEQ, v) }

// GT returns e > v.
func (e *Expr) GT(v any) *Comparison { return e.cmp(GT, v) }

// GTE returns e >= v.
func (e *Expr) GTE(v any) *Comparison { return e.cmp(GTE, v) }

// LT returns e < v.
func (e *Expr) LT(v any) *Comparison { return e.cmp(LT, v) }

// LTE returns e <= v.
func (e *Expr) LTE(v any) *Comparison { return e.cmp(LTE, v) }

// Like returns e LIKE pattern.
func (e *Expr) Like(pattern any) *Comparison { return e.cmp(Like, pattern) }

// NotLike returns e NOT LIKE pattern.
func (e *Expr) NotLike(pattern any) *Comparison { return e.cmp(NotLike, pattern) }

// IsNull returns e IS NULL.
func (e *Expr) IsNull() *Comparison { return e.cmp(IsNull, nil) }

// IsNotNull returns e IS NOT NULL.
func (e *Expr) IsNotNull() *Comparison { return e.cmp(IsNotNull, nil) }

// Contains returns a full-text containment test.
func (e *Expr) Contains(v any) *Comparison { return e.cmp(Contains, v) }

// In returns e IN (...). A single *Query argument renders a sub-query.
func (e *Expr) In(vs ...any) *Comparison { return e.cmp(In, inOperand(vs)) }

// NotIn returns e NOT IN (...).
func (e *Expr) NotIn(vs ...any) *Comparison { return e.cmp(NotIn, inOperand(vs)) }

// Between returns e BETWEEN lo AND hi.
func (e *Expr) Between(lo, hi any) *Comparison {
	c := e.cmp(Between, lo)
	c.upper = hi
	return c
}

// ExistsQ returns EXISTS (q).
func ExistsQ(q *Query) *Comparison {
	return &Comparison{op: Exists, right: q}
}

// NotExistsQ returns NOT EXISTS (q).
func NotExistsQ(q *Query) *Comparison {
	return &Comparison{op: NotExists, right: q}
}

func inOperand(vs []any) any {
	if len(vs) == 1 {
		switch v := vs[0].(type) {
		case *Query:
			return v
		case []any:
			return v
		}
	}
	return vs
}

// Conj joins a term to the previous one.
type Conj int

// Conjunctions.
const (
	ConjAnd Conj = iota
	ConjOr
	ConjAndNot
	ConjOrNot
)

const noConj Conj = -1

// String returns the SQL text of the conjunction.
func (c Conj) String() string {
	switch c {
	case ConjAnd:
		return "AND"
	case ConjOr:
		return "OR"
	case ConjAndNot:
		return "AND NOT"
	case ConjOrNot:
		return "OR NOT"
	default:
		return fmt.Sprintf("Conj(%d)", int(c))
	}
}

// Negated reports whether the conjunction carries NOT.
func (c Conj) Negated() bool {
	return c == ConjAndNot || c == ConjOrNot
}

// Paren is an opening or closing parenthesis marker.
type Paren bool

// Parenthesis markers.
const (
	LParen Paren = true
	RParen Paren = false
)

// Item is accepted by Where, Having and Join.On: a *Comparison, a *Group,
// a Conj marker or a Paren marker.
type Item interface{ item() }

func (*Comparison) item() {}
func (*Group) item()      {}
func (Conj) item()        {}
func (Paren) item()       {}

// Node is a predicate tree node: *Comparison or *Group.
type Node interface {
	Item
	node()
}

func (*Comparison) node() {}
func (*Group) node()      {}

// Term is a node joined to its predecessor by Conj. The conjunction of the
// first term is only significant when negated.
type Term struct {
	Conj Conj
	Node Node
}

// Group is a parenthesized sequence of terms.
type Group struct {
	def   Conj
	terms []Term
	err   error
}

// And returns a group whose unmarked terms are joined with AND.
func And(items ...Item) *Group {
	g := &Group{def: ConjAnd}
	g.Append(items...)
	return g
}

// Or returns a group whose unmarked terms are joined with OR.
func Or(items ...Item) *Group {
	g := &Group{def: ConjOr}
	g.Append(items...)
	return g
}

// Not returns a group rendering NOT (n).
func Not(n Node) *Group {
	g := &Group{def: ConjAnd}
	g.terms = append(g.terms, Term{Conj: ConjAndNot, Node: n})
	return g
}

// Terms returns the terms in insertion order.
func (g *Group) Terms() []Term { return g.terms }

// Len returns the number of terms.
func (g *Group) Len() int {
	if g == nil {
		return 0
	}
	return len(g.terms)
}

// Err returns the first folding or construction error in the group.
func (g *Group) Err() error {
	if g == nil {
		return nil
	}
	return g.err
}

// Append folds a flat item stream into the group. Unmarked consecutive
// nodes are joined with the group's default conjunction.
func (g *Group) Append(items ...Item) *Group {
	stack := []*Group{g}
	pending := noConj
	fail := func(err error) {
		if g.err == nil {
			g.err = err
		}
	}
	for _, it := range items {
		cur := stack[len(stack)-1]
		switch v := it.(type) {
		case Conj:
			if pending != noConj {
				fail(fmt.Errorf("query: conjunction %s follows %s", v, pending))
			}
			pending = v
		case Paren:
			if v == LParen {
				ng := &Group{def: cur.def}
				cur.add(pending, ng)
				pending = noConj
				stack = append(stack, ng)
				continue
			}
			if len(stack) == 1 {
				fail(errors.New("query: unmatched closing parenthesis"))
				continue
			}
			if cur.Len() == 0 {
				fail(errors.New("query: empty parentheses"))
			}
			if pending != noConj {
				fail(fmt.Errorf("query: dangling conjunction %s before closing parenthesis", pending))
				pending = noConj
			}
			stack = stack[:len(stack)-1]
		case *Comparison:
			if v == nil {
				fail(errors.New("query: nil comparison"))
				continue
			}
			if v.err != nil {
				fail(v.err)
			}
			cur.add(pending, v)
			pending = noConj
		case *Group:
			if v == nil {
				fail(errors.New("query: nil group"))
				continue
			}
			if v.err != nil {
				fail(v.err)
			}
			cur.add(pending, v)
			pending = noConj
		case nil:
			fail(errors.New("query: nil predicate item"))
		}
	}
	if len(stack) > 1 {
		fail(fmt.Errorf("query: %d unclosed parenthesis", len(stack)-1))
	}
	if pending != noConj {
		fail(fmt.Errorf("query: dangling conjunction %s", pending))
	}
	return g
}

func (g *Group) add(c Conj, n Node) {
	if c == noConj {
		c = g.def
	}
	g.terms = append(g.terms, Term{Conj: c, Node: n})
}
