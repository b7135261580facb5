package dialect

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect names.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	MySQL    = "mysql"
	MSSQL    = "mssql"
)

// BindStyle controls how parameters appear in SQL text and how they are
// handed to the driver.
type BindStyle int

const (
	// BindNamed renders "@name" and binds with sql.Named.
	BindNamed BindStyle = iota
	// BindDollar renders "$n" and binds positionally.
	BindDollar
	// BindQuestion renders "?" and binds positionally.
	BindQuestion
)

// PagingStyle controls how row limits and pages are rendered.
type PagingStyle int

const (
	// LimitOffset renders "LIMIT n OFFSET m".
	LimitOffset PagingStyle = iota
	// OffsetFetch renders "OFFSET m ROWS FETCH NEXT n ROWS ONLY".
	OffsetFetch
)

// Policy holds the per-dialect rendering rules.
type Policy struct {
	Name        string
	QuoteOpen   string
	QuoteClose  string
	ParamPrefix string
	Bind        BindStyle
	StringDelim string
	// DateLayout is the short-date layout used for date literals.
	DateLayout string
	// DateTimeLayout is used when a date literal carries a time of day.
	DateTimeLayout string
	Now            string
	CurrentUser    string
	// LastIdentity is the follow-up query returning the identity generated
	// by the last INSERT on the same connection. Empty when the dialect
	// returns generated values from the INSERT itself.
	LastIdentity string
	Paging       PagingStyle
	// Top reports whether row limits without paging use SELECT TOP n.
	Top bool
	// Returning reports whether INSERT ... RETURNING is used to fetch
	// generated values.
	Returning bool
	// OutputInserted reports whether INSERT ... OUTPUT INSERTED.col is used.
	OutputInserted bool
}

var policies = map[string]Policy{
	SQLite: {
		Name:           SQLite,
		QuoteOpen:      `"`,
		QuoteClose:     `"`,
		ParamPrefix:    "@",
		Bind:           BindNamed,
		StringDelim:    "'",
		DateLayout:     "2006-01-02",
		DateTimeLayout: "2006-01-02 15:04:05",
		Now:            "CURRENT_TIMESTAMP",
		CurrentUser:    "'sqlite'",
		LastIdentity:   "SELECT last_insert_rowid()",
		Paging:         LimitOffset,
	},
	Postgres: {
		Name:           Postgres,
		QuoteOpen:      `"`,
		QuoteClose:     `"`,
		ParamPrefix:    "$",
		Bind:           BindDollar,
		StringDelim:    "'",
		DateLayout:     "2006-01-02",
		DateTimeLayout: "2006-01-02 15:04:05",
		Now:            "now()",
		CurrentUser:    "current_user",
		Paging:         LimitOffset,
		Returning:      true,
	},
	MySQL: {
		Name:           MySQL,
		QuoteOpen:      "`",
		QuoteClose:     "`",
		ParamPrefix:    "?",
		Bind:           BindQuestion,
		StringDelim:    "'",
		DateLayout:     "2006-01-02",
		DateTimeLayout: "2006-01-02 15:04:05",
		Now:            "NOW()",
		CurrentUser:    "CURRENT_USER()",
		LastIdentity:   "SELECT LAST_INSERT_ID()",
		Paging:         LimitOffset,
	},
	MSSQL: {
		Name:           MSSQL,
		QuoteOpen:      "[",
		QuoteClose:     "]",
		ParamPrefix:    "@",
		Bind:           BindNamed,
		StringDelim:    "'",
		DateLayout:     "20060102",
		DateTimeLayout: "20060102 15:04:05",
		Now:            "GETDATE()",
		CurrentUser:    "SUSER_SNAME()",
		Paging:         OffsetFetch,
		Top:            true,
		OutputInserted: true,
	},
}

// Lookup returns the policy registered for the dialect name.
func Lookup(name string) (Policy, error) {
	p, ok := policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("dialect: unknown dialect %q", name)
	}
	return p, nil
}

// MustLookup is like Lookup but panics on unknown dialects.
func MustLookup(name string) Policy {
	p, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return p
}

// Quote quotes a single identifier, doubling any embedded closing quote.
func (p Policy) Quote(ident string) string {
	if p.QuoteClose != "" {
		ident = strings.ReplaceAll(ident, p.QuoteClose, p.QuoteClose+p.QuoteClose)
	}
	return p.QuoteOpen + ident + p.QuoteClose
}

// QuoteQualified quotes and dot-joins the non-empty parts of a qualified name,
// e.g. catalog, schema and table.
func (p Policy) QuoteQualified(parts ...string) string {
	var b strings.Builder
	for _, s := range parts {
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p.Quote(s))
	}
	return b.String()
}

// Placeholder returns the parameter marker for a parameter. The ordinal is
// 1-based and only used by positional styles.
func (p Policy) Placeholder(name string, ordinal int) string {
	switch p.Bind {
	case BindDollar:
		return "$" + strconv.Itoa(ordinal)
	case BindQuestion:
		return "?"
	default:
		return p.ParamPrefix + name
	}
}

// Named reports whether parameters are bound by name.
func (p Policy) Named() bool {
	return p.Bind == BindNamed
}

// String returns s as a delimited string literal.
func (p Policy) String(s string) string {
	d := p.StringDelim
	s = strings.ReplaceAll(s, d, d+d)
	if p.Name == MySQL && strings.Contains(s, `\`) {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return d + s + d
}

// Date returns t as a delimited date literal.
func (p Policy) Date(t time.Time) string {
	layout := p.DateLayout
	if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 {
		layout = p.DateTimeLayout
	}
	return p.StringDelim + t.Format(layout) + p.StringDelim
}
