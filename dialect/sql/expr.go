package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/dataspace/dialect"
	"github.com/syssam/dataspace/query"
)

// castTypeRe validates CAST target types such as "VARCHAR(20)" or
// "DECIMAL(10, 2)".
var castTypeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ ]*(\(\s*\d+\s*(,\s*\d+\s*)?\))?$`)

var dateParts = map[string]string{
	"year":   "%Y",
	"month":  "%m",
	"day":    "%d",
	"hour":   "%H",
	"minute": "%M",
	"second": "%S",
}

// Expr renders an expression with its sub-operators. Sub-operators nest
// outward in declaration order: each one's opening text is written before
// the inner expression and its closer is pushed on a stack that is
// unwound afterwards.
func (b *Builder) Expr(e *query.Expr) error {
	if e == nil {
		return errors.New("dialect/sql: nil expression")
	}
	if err := e.Err(); err != nil {
		return err
	}
	ops := e.Ops()
	closers := make([]func() error, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		open, closer, err := b.subOp(ops[i])
		if err != nil {
			return err
		}
		b.WriteString(open)
		closers = append(closers, closer)
	}
	if err := b.operand(e); err != nil {
		return err
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) operand(e *query.Expr) error {
	switch e.Kind() {
	case query.KindColumn:
		return b.column(e)
	case query.KindLiteral:
		return b.Literal(e.Value(), e.LiteralType())
	case query.KindMath:
		m := e.Math()
		if m == nil {
			return errors.New("dialect/sql: arithmetic expression without operands")
		}
		if m.Op < query.OpAdd || m.Op > query.OpMod {
			return fmt.Errorf("dialect/sql: unknown arithmetic operator %s", m.Op)
		}
		l, r := m.Operands()
		b.WriteString("(")
		if err := b.Expr(l); err != nil {
			return err
		}
		b.WriteString(" ").WriteString(m.Op.String()).WriteString(" ")
		if err := b.Expr(r); err != nil {
			return err
		}
		b.WriteString(")")
		return nil
	case query.KindCase:
		return b.caseExpr(e.CaseExpr())
	case query.KindSubQuery:
		b.WriteString("(")
		if err := b.query(e.SubQuery(), false); err != nil {
			return err
		}
		b.WriteString(")")
		return nil
	default:
		return fmt.Errorf("dialect/sql: unknown expression kind %d", e.Kind())
	}
}

// column renders a column reference. Literal passthroughs are written
// verbatim without their angle brackets.
func (b *Builder) column(e *query.Expr) error {
	if e.IsLiteralText() {
		text, err := e.LiteralText()
		if err != nil {
			return err
		}
		b.WriteString(text)
		return nil
	}
	if e.Name() == "" {
		return errors.New("dialect/sql: empty column name")
	}
	if owner := e.Owner(); owner != nil {
		switch {
		case owner.Alias() != "":
			b.Ident(owner.Alias())
		case owner.From() != nil:
			b.Ident(owner.FromAlias())
		default:
			b.Ident(b.sourceName(owner))
		}
		b.WriteString(".")
	}
	b.Ident(e.Name())
	return nil
}

// Literal renders v inline.
func (b *Builder) Literal(v any, t query.LiteralType) error {
	if v == nil {
		b.WriteString("NULL")
		return nil
	}
	switch t {
	case query.LitString:
		b.WriteString(b.policy.String(fmt.Sprint(v)))
		return nil
	case query.LitDate:
		tm, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("dialect/sql: date literal of type %T", v)
		}
		b.WriteString(b.policy.Date(tm))
		return nil
	case query.LitNumber:
		s := fmt.Sprint(v)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return fmt.Errorf("dialect/sql: invalid numeric literal %q", s)
		}
		b.WriteString(s)
		return nil
	}
	switch v := v.(type) {
	case string:
		b.WriteString(b.policy.String(v))
	case time.Time:
		b.WriteString(b.policy.Date(v))
	case bool:
		switch {
		case b.policy.Name == dialect.Postgres && v:
			b.WriteString("TRUE")
		case b.policy.Name == dialect.Postgres:
			b.WriteString("FALSE")
		case v:
			b.WriteString("1")
		default:
			b.WriteString("0")
		}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		fmt.Fprint(&b.sb, v)
	case float32:
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	case float64:
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return fmt.Errorf("dialect/sql: unsupported literal type %T", v)
	}
	return nil
}

// value renders a CASE result, a sub-operator argument or an IN list item.
func (b *Builder) value(v any) error {
	switch v := v.(type) {
	case *query.Expr:
		return b.Expr(v)
	case *query.Query:
		b.WriteString("(")
		if err := b.query(v, false); err != nil {
			return err
		}
		b.WriteString(")")
		return nil
	default:
		return b.Literal(v, query.LitAuto)
	}
}

func (b *Builder) caseExpr(c *query.CaseExpr) error {
	if c == nil || len(c.Whens) == 0 {
		return errors.New("dialect/sql: CASE without WHEN branches")
	}
	b.WriteString("CASE")
	if c.Input != nil {
		b.WriteString(" ")
		if err := b.Expr(c.Input); err != nil {
			return err
		}
	}
	for _, w := range c.Whens {
		b.WriteString(" WHEN ")
		var err error
		switch cond := w.Cond.(type) {
		case *query.Comparison:
			err = b.comparison(cond)
		case *query.Group:
			err = b.group(cond, false)
		default:
			err = b.value(cond)
		}
		if err != nil {
			return err
		}
		b.WriteString(" THEN ")
		if err := b.value(w.Then); err != nil {
			return err
		}
	}
	if c.HasElse {
		b.WriteString(" ELSE ")
		if err := b.value(c.Else); err != nil {
			return err
		}
	}
	b.WriteString(" END")
	return nil
}

// subOp returns the opening text of a sub-operator and the function that
// writes its closing text.
func (b *Builder) subOp(op query.SubOp) (string, func() error, error) {
	name := b.policy.Name
	closeWith := func(s string) func() error {
		return func() error {
			b.WriteString(s)
			return nil
		}
	}
	paren := closeWith(")")
	switch op.Kind {
	case query.SubTrim:
		if name == dialect.MSSQL {
			return "LTRIM(RTRIM(", closeWith("))"), nil
		}
		return "TRIM(", paren, nil
	case query.SubLTrim:
		return "LTRIM(", paren, nil
	case query.SubRTrim:
		return "RTRIM(", paren, nil
	case query.SubUpper:
		return "UPPER(", paren, nil
	case query.SubLower:
		return "LOWER(", paren, nil
	case query.SubSubstring:
		if len(op.Args) != 2 {
			return "", nil, errors.New("dialect/sql: substring needs start and length")
		}
		fn := "SUBSTRING("
		if name == dialect.SQLite || name == dialect.Postgres {
			fn = "SUBSTR("
		}
		return fn, closeWith(fmt.Sprintf(", %v, %v)", op.Args[0], op.Args[1])), nil
	case query.SubRound:
		if len(op.Args) != 1 {
			return "", nil, errors.New("dialect/sql: round needs the number of decimals")
		}
		return "ROUND(", closeWith(fmt.Sprintf(", %v)", op.Args[0])), nil
	case query.SubCast:
		if len(op.Args) != 1 {
			return "", nil, errors.New("dialect/sql: cast needs a target type")
		}
		typ := fmt.Sprint(op.Args[0])
		if !castTypeRe.MatchString(typ) {
			return "", nil, fmt.Errorf("dialect/sql: invalid cast type %q", typ)
		}
		return "CAST(", closeWith(" AS " + typ + ")"), nil
	case query.SubSum:
		return "SUM(", paren, nil
	case query.SubAvg:
		return "AVG(", paren, nil
	case query.SubMin:
		return "MIN(", paren, nil
	case query.SubMax:
		return "MAX(", paren, nil
	case query.SubCount:
		return "COUNT(", paren, nil
	case query.SubCountDistinct:
		return "COUNT(DISTINCT ", paren, nil
	case query.SubStdDev:
		switch name {
		case dialect.MSSQL:
			return "STDEV(", paren, nil
		case dialect.SQLite:
			return "", nil, errors.New("dialect/sql: sqlite has no standard deviation aggregate")
		}
		return "STDDEV(", paren, nil
	case query.SubVar:
		switch name {
		case dialect.MSSQL:
			return "VAR(", paren, nil
		case dialect.SQLite:
			return "", nil, errors.New("dialect/sql: sqlite has no variance aggregate")
		}
		return "VARIANCE(", paren, nil
	case query.SubCoalesce:
		if len(op.Args) == 0 {
			return "", nil, errors.New("dialect/sql: coalesce needs at least one fallback")
		}
		return "COALESCE(", func() error {
			for _, a := range op.Args {
				b.WriteString(", ")
				if err := b.value(a); err != nil {
					return err
				}
			}
			b.WriteString(")")
			return nil
		}, nil
	case query.SubDatePart:
		if len(op.Args) != 1 {
			return "", nil, errors.New("dialect/sql: date part needs a part name")
		}
		part := strings.ToLower(fmt.Sprint(op.Args[0]))
		format, ok := dateParts[part]
		if !ok {
			return "", nil, fmt.Errorf("dialect/sql: unknown date part %q", part)
		}
		switch name {
		case dialect.MSSQL:
			return "DATEPART(" + part + ", ", paren, nil
		case dialect.SQLite:
			return "CAST(strftime('" + format + "', ", closeWith(") AS INTEGER)"), nil
		}
		return "EXTRACT(" + strings.ToUpper(part) + " FROM ", paren, nil
	case query.SubLength:
		switch name {
		case dialect.MSSQL:
			return "LEN(", paren, nil
		case dialect.SQLite:
			return "LENGTH(", paren, nil
		}
		return "CHAR_LENGTH(", paren, nil
	default:
		return "", nil, fmt.Errorf("dialect/sql: unknown sub-operator %d", op.Kind)
	}
}
