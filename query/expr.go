package query

import (
	"fmt"
	"slices"
	"strings"
)

// ExprKind identifies the shape of an expression.
type ExprKind int

const (
	// KindColumn is a column reference or a literal passthrough.
	KindColumn ExprKind = iota
	// KindLiteral is a constant value.
	KindLiteral
	// KindMath is a binary arithmetic operation.
	KindMath
	// KindCase is a CASE/WHEN/THEN/ELSE expression.
	KindCase
	// KindSubQuery is a scalar sub-query used as a value.
	KindSubQuery
)

// LiteralType declares how a literal is rendered inline.
type LiteralType int

const (
	// LitAuto infers the rendering from the Go type.
	LitAuto LiteralType = iota
	// LitString renders a delimited string.
	LitString
	// LitDate renders a dialect date literal.
	LitDate
	// LitNumber renders the default string form of the value.
	LitNumber
)

// ArithOp is a binary arithmetic operator.
type ArithOp int

// Arithmetic operators.
const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
)

// String returns the SQL token of the operator.
func (o ArithOp) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	default:
		return fmt.Sprintf("ArithOp(%d)", int(o))
	}
}

// SubOpKind identifies a function applied on top of an expression.
type SubOpKind int

// Sub-operators, applied left to right in declaration order.
const (
	SubTrim SubOpKind = iota
	SubLTrim
	SubRTrim
	SubUpper
	SubLower
	SubSubstring
	SubRound
	SubCast
	SubSum
	SubAvg
	SubMin
	SubMax
	SubCount
	SubCountDistinct
	SubStdDev
	SubVar
	SubCoalesce
	SubDatePart
	SubLength
)

// SubOp is one function in an expression's sub-operator chain.
type SubOp struct {
	Kind SubOpKind
	Args []any
}

// Aggregate reports whether the operator is an aggregate function.
func (o SubOp) Aggregate() bool {
	switch o.Kind {
	case SubSum, SubAvg, SubMin, SubMax, SubCount, SubCountDistinct, SubStdDev, SubVar:
		return true
	}
	return false
}

// Math is a binary arithmetic operation. Item is the expression the
// operation was created from; ItemFirst controls whether it is emitted on
// the left (col - 5) or on the right (5 - col) of the operator.
type Math struct {
	Item      *Expr
	Op        ArithOp
	Operand   *Expr
	ItemFirst bool
}

// Operands returns the left and right operands in emission order.
func (m *Math) Operands() (*Expr, *Expr) {
	if m.ItemFirst {
		return m.Item, m.Operand
	}
	return m.Operand, m.Item
}

// When is one branch of a CASE expression. Cond is a *Comparison or *Group
// for searched CASE, or a value/expression for simple CASE.
type When struct {
	Cond any
	Then any
}

// CaseExpr holds the branches of a CASE expression.
type CaseExpr struct {
	Input   *Expr
	Whens   []When
	Else    any
	HasElse bool
}

// Expr is a column reference, literal, arithmetic operation, CASE
// expression or scalar sub-query, optionally wrapped by sub-operators.
type Expr struct {
	kind    ExprKind
	name    string
	owner   *Query
	value   any
	litType LiteralType
	math    *Math
	cas     *CaseExpr
	sub     *Query
	ops     []SubOp
	alias   string
	err     error
}

// C returns a column reference. Names of the form "<...>" are literal
// passthroughs emitted verbatim.
func C(name string) *Expr {
	e := &Expr{kind: KindColumn, name: name}
	if strings.HasPrefix(name, "<") && !strings.HasSuffix(name, ">") {
		e.err = fmt.Errorf("query: literal column %q is missing its closing '>'", name)
	}
	return e
}

// Lit returns a literal value expression.
func Lit(v any) *Expr {
	return &Expr{kind: KindLiteral, value: v}
}

// TypedLit returns a literal with an explicit rendering type.
func TypedLit(v any, t LiteralType) *Expr {
	return &Expr{kind: KindLiteral, value: v, litType: t}
}

// Arith returns the arithmetic operation "left op right". At least one
// side must be an *Expr; the other may be a plain value.
func Arith(left any, op ArithOp, right any) *Expr {
	if l, ok := left.(*Expr); ok {
		return l.arith(op, right, true)
	}
	if r, ok := right.(*Expr); ok {
		return r.arith(op, left, false)
	}
	return &Expr{kind: KindMath, err: fmt.Errorf("query: arithmetic needs at least one expression operand")}
}

// Case returns a searched CASE expression.
func Case(whens ...When) *Expr {
	return &Expr{kind: KindCase, cas: &CaseExpr{Whens: whens}}
}

// CaseOf returns a simple CASE expression comparing input to each branch.
func CaseOf(input *Expr, whens ...When) *Expr {
	return &Expr{kind: KindCase, cas: &CaseExpr{Input: input, Whens: whens}}
}

// Then returns a CASE branch.
func Then(cond, then any) When {
	return When{Cond: cond, Then: then}
}

// Else returns a copy of the CASE expression with its ELSE value set.
func (e *Expr) Else(v any) *Expr {
	c := e.clone()
	if c.kind != KindCase {
		c.setErr(fmt.Errorf("query: Else on non-CASE expression"))
		return c
	}
	cas := *c.cas
	cas.Else, cas.HasElse = v, true
	c.cas = &cas
	return c
}

// Of returns a copy of the column qualified with the alias of q.
func (e *Expr) Of(q *Query) *Expr {
	c := e.clone()
	c.owner = q
	return c
}

// As returns a copy of the expression with the output alias set.
func (e *Expr) As(alias string) *Expr {
	c := e.clone()
	c.alias = alias
	return c
}

// Kind returns the expression kind.
func (e *Expr) Kind() ExprKind { return e.kind }

// Name returns the column name.
func (e *Expr) Name() string { return e.name }

// Owner returns the query qualifying the column, if any.
func (e *Expr) Owner() *Query { return e.owner }

// Value returns the literal value.
func (e *Expr) Value() any { return e.value }

// LiteralType returns the declared literal type.
func (e *Expr) LiteralType() LiteralType { return e.litType }

// Math returns the arithmetic operation of a KindMath expression.
func (e *Expr) Math() *Math { return e.math }

// CaseExpr returns the branches of a KindCase expression.
func (e *Expr) CaseExpr() *CaseExpr { return e.cas }

// SubQuery returns the query of a KindSubQuery expression.
func (e *Expr) SubQuery() *Query { return e.sub }

// Ops returns the sub-operator chain in declaration order.
func (e *Expr) Ops() []SubOp { return e.ops }

// Alias returns the output alias.
func (e *Expr) Alias() string { return e.alias }

// Err returns the first construction error recorded on the expression.
func (e *Expr) Err() error { return e.err }

// IsLiteralText reports whether the expression is a "<...>" passthrough.
func (e *Expr) IsLiteralText() bool {
	return e.kind == KindColumn && strings.HasPrefix(e.name, "<")
}

// LiteralText returns the passthrough text with exactly one pair of angle
// brackets stripped.
func (e *Expr) LiteralText() (string, error) {
	if !strings.HasPrefix(e.name, "<") || !strings.HasSuffix(e.name, ">") || len(e.name) < 2 {
		return "", fmt.Errorf("query: malformed literal column %q", e.name)
	}
	return e.name[1 : len(e.name)-1], nil
}

// OutputName returns the alias or, for plain columns, the column name.
func (e *Expr) OutputName() string {
	if e.alias != "" {
		return e.alias
	}
	if e.kind == KindColumn && !e.IsLiteralText() {
		return e.name
	}
	return ""
}

func (e *Expr) setErr(err error) {
	if e.err == nil {
		e.err = err
	}
}

// clone returns a shallow copy of e that owns its sub-operator chain, so
// derived expressions never write through to e.
func (e *Expr) clone() *Expr {
	c := *e
	c.ops = slices.Clip(c.ops)
	return &c
}

func (e *Expr) with(kind SubOpKind, args ...any) *Expr {
	c := e.clone()
	c.ops = append(c.ops, SubOp{Kind: kind, Args: args})
	return c
}

func (e *Expr) arith(op ArithOp, v any, itemFirst bool) *Expr {
	m := &Math{Item: e, Op: op, Operand: toExpr(v), ItemFirst: itemFirst}
	out := &Expr{kind: KindMath, math: m}
	if e.err != nil {
		out.err = e.err
	} else if m.Operand.err != nil {
		out.err = m.Operand.err
	}
	return out
}

// Trim removes leading and trailing blanks.
func (e *Expr) Trim() *Expr { return e.with(SubTrim) }

// LTrim removes leading blanks.
func (e *Expr) LTrim() *Expr { return e.with(SubLTrim) }

// RTrim removes trailing blanks.
func (e *Expr) RTrim() *Expr { return e.with(SubRTrim) }

// Upper converts to upper case.
func (e *Expr) Upper() *Expr { return e.with(SubUpper) }

// Lower converts to lower case.
func (e *Expr) Lower() *Expr { return e.with(SubLower) }

// Substring extracts length characters starting at the 1-based start.
func (e *Expr) Substring(start, length int) *Expr { return e.with(SubSubstring, start, length) }

// Round rounds to the given number of decimals.
func (e *Expr) Round(decimals int) *Expr { return e.with(SubRound, decimals) }

// Cast converts to the given SQL type, e.g. "VARCHAR(20)".
func (e *Expr) Cast(sqlType string) *Expr { return e.with(SubCast, sqlType) }

// Sum aggregates with SUM.
func (e *Expr) Sum() *Expr { return e.with(SubSum) }

// Avg aggregates with AVG.
func (e *Expr) Avg() *Expr { return e.with(SubAvg) }

// Min aggregates with MIN.
func (e *Expr) Min() *Expr { return e.with(SubMin) }

// Max aggregates with MAX.
func (e *Expr) Max() *Expr { return e.with(SubMax) }

// Count aggregates with COUNT.
func (e *Expr) Count() *Expr { return e.with(SubCount) }

// CountDistinct aggregates with COUNT(DISTINCT ...).
func (e *Expr) CountDistinct() *Expr { return e.with(SubCountDistinct) }

// StdDev aggregates with the standard deviation.
func (e *Expr) StdDev() *Expr { return e.with(SubStdDev) }

// Var aggregates with the variance.
func (e *Expr) Var() *Expr { return e.with(SubVar) }

// Coalesce returns the first non-null of the expression and the fallbacks.
func (e *Expr) Coalesce(fallbacks ...any) *Expr { return e.with(SubCoalesce, fallbacks...) }

// DatePart extracts a date part: year, month, day, hour, minute or second.
func (e *Expr) DatePart(part string) *Expr { return e.with(SubDatePart, part) }

// Length returns the character length.
func (e *Expr) Length() *Expr { return e.with(SubLength) }

// Add returns (e + v).
func (e *Expr) Add(v any) *Expr { return e.arith(OpAdd, v, true) }

// Sub returns (e - v).
func (e *Expr) Sub(v any) *Expr { return e.arith(OpSub, v, true) }

// Mul returns (e * v).
func (e *Expr) Mul(v any) *Expr { return e.arith(OpMul, v, true) }

// Div returns (e / v).
func (e *Expr) Div(v any) *Expr { return e.arith(OpDiv, v, true) }

// Mod returns (e % v).
func (e *Expr) Mod(v any) *Expr { return e.arith(OpMod, v, true) }

// Asc returns an ascending order item.
func (e *Expr) Asc() OrderItem { return OrderItem{Expr: e, Dir: Asc} }

// Desc returns a descending order item.
func (e *Expr) Desc() OrderItem { return OrderItem{Expr: e, Dir: Desc} }

func toExpr(v any) *Expr {
	if e, ok := v.(*Expr); ok {
		return e
	}
	if q, ok := v.(*Query); ok {
		return &Expr{kind: KindSubQuery, sub: q}
	}
	return Lit(v)
}
