package dataspace

import (
	"sort"
	"strings"

	"github.com/go-openapi/inflect"
)

// SpecialColumn identifies a synthetic audit column.
type SpecialColumn int

// Special audit columns.
const (
	NotSpecial SpecialColumn = iota
	DateAdded
	DateModified
	AddedBy
	ModifiedBy
)

// String returns the special column kind name.
func (s SpecialColumn) String() string {
	switch s {
	case DateAdded:
		return "DateAdded"
	case DateModified:
		return "DateModified"
	case AddedBy:
		return "AddedBy"
	case ModifiedBy:
		return "ModifiedBy"
	default:
		return ""
	}
}

// Column describes one column of an entity table.
type Column struct {
	Name string
	// PropertyName is the entity property alias. When empty it is derived
	// from Name.
	PropertyName string
	Ordinal      int
	// NativeType is the provider-native type name, e.g. "varchar".
	NativeType string

	IsNullable      bool
	IsInPrimaryKey  bool
	IsAutoIncrement bool
	// IsConcurrency marks a database-maintained row version.
	IsConcurrency bool
	// IsEntitySpacesConcurrency marks an application-maintained integer
	// version counter.
	IsEntitySpacesConcurrency bool
	IsComputed                bool
	HasDefault                bool
	Default                   string

	CharacterMaxLength int64
	NumericPrecision   int
	NumericScale       int

	Special SpecialColumn
}

// Property returns the property alias, deriving a camel-cased one from the
// column name when none was configured.
func (c *Column) Property() string {
	if c.PropertyName != "" {
		return c.PropertyName
	}
	name := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '.' {
			return '_'
		}
		return r
	}, c.Name)
	return inflect.Camelize(name)
}

// Generated reports whether the database assigns the column's value.
func (c *Column) Generated() bool {
	return c.IsAutoIncrement || c.IsConcurrency || c.IsComputed
}

// Columns is the ordered column metadata of an entity table.
type Columns []*Column

// FindByName returns the column with the given name.
func (cs Columns) FindByName(name string) *Column {
	for _, c := range cs {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FindByProperty returns the column with the given property alias.
func (cs Columns) FindByProperty(prop string) *Column {
	for _, c := range cs {
		if c.Property() == prop {
			return c
		}
	}
	return nil
}

// PrimaryKeys returns the primary-key columns.
func (cs Columns) PrimaryKeys() Columns {
	var pk Columns
	for _, c := range cs {
		if c.IsInPrimaryKey {
			pk = append(pk, c)
		}
	}
	return pk
}

// AutoIncrement returns the identity column, if any.
func (cs Columns) AutoIncrement() *Column {
	for _, c := range cs {
		if c.IsAutoIncrement {
			return c
		}
	}
	return nil
}

// Sorted returns the columns ordered by ordinal.
func (cs Columns) Sorted() Columns {
	out := append(Columns(nil), cs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// Names returns the column names.
func (cs Columns) Names() []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

// AuditColumn configures one special audit column.
type AuditColumn struct {
	Enabled bool
	// Column is the column name flagged by Audit.Apply.
	Column string
	// ServerSide renders a server expression ("now", current user) instead
	// of binding an application value.
	ServerSide bool
}

// Audit configures the special audit columns.
type Audit struct {
	DateAdded    AuditColumn
	DateModified AuditColumn
	AddedBy      AuditColumn
	ModifiedBy   AuditColumn
}

// For returns the settings of a special column kind.
func (a Audit) For(s SpecialColumn) AuditColumn {
	switch s {
	case DateAdded:
		return a.DateAdded
	case DateModified:
		return a.DateModified
	case AddedBy:
		return a.AddedBy
	case ModifiedBy:
		return a.ModifiedBy
	default:
		return AuditColumn{}
	}
}

// Apply flags the columns named by enabled audit settings as special.
// Columns already flagged are left unchanged.
func (a Audit) Apply(cs Columns) {
	for _, kind := range []SpecialColumn{DateAdded, DateModified, AddedBy, ModifiedBy} {
		ac := a.For(kind)
		if !ac.Enabled || ac.Column == "" {
			continue
		}
		if c := cs.FindByName(ac.Column); c != nil && c.Special == NotSpecial {
			c.Special = kind
		}
	}
}

// IsSpecial reports whether the column is an enabled audit column. Disabled
// audit columns are handled as ordinary columns.
func (a Audit) IsSpecial(c *Column) bool {
	return c.Special != NotSpecial && a.For(c.Special).Enabled
}
