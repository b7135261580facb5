package sql

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/singleflight"

	"github.com/syssam/dataspace"
)

// Parameter is a command parameter bound to exactly one command.
type Parameter struct {
	// Name is the parameter name without the dialect prefix.
	Name string
	// Column is the source column, empty for query parameters.
	Column    string
	Type      string
	Size      int64
	Precision int
	Scale     int
	Direction dataspace.Direction
	Value     any
}

// ParameterTemplate describes the native parameter of one column. It is a
// value type; use Instantiate to obtain a parameter for a command.
type ParameterTemplate struct {
	Name      string
	Column    string
	Type      string
	Size      int64
	Precision int
	Scale     int
	Direction dataspace.Direction
}

// Instantiate returns a new parameter carrying v.
func (t ParameterTemplate) Instantiate(v any) *Parameter {
	return &Parameter{
		Name:      t.Name,
		Column:    t.Column,
		Type:      t.Type,
		Size:      t.Size,
		Precision: t.Precision,
		Scale:     t.Scale,
		Direction: t.Direction,
		Value:     v,
	}
}

// InstantiateAs is like Instantiate with a different parameter name.
func (t ParameterTemplate) InstantiateAs(name string, v any) *Parameter {
	p := t.Instantiate(v)
	p.Name = name
	return p
}

// TemplateFor returns the template of a column. native overrides the
// column's native type when not empty.
func TemplateFor(c *dataspace.Column, native string) ParameterTemplate {
	if native == "" {
		native = c.NativeType
	}
	return ParameterTemplate{
		Name:      paramName(c.Property()),
		Column:    c.Name,
		Type:      strings.ToLower(native),
		Size:      c.CharacterMaxLength,
		Precision: c.NumericPrecision,
		Scale:     c.NumericScale,
	}
}

// Templates is the immutable set of parameter templates of an entity type,
// keyed by column name.
type Templates struct {
	m map[string]ParameterTemplate
}

// NewTemplates builds the templates of the given columns. types maps column
// names to provider-native type names and may be nil.
func NewTemplates(cols dataspace.Columns, types map[string]string) *Templates {
	t := &Templates{m: make(map[string]ParameterTemplate, len(cols))}
	for _, c := range cols {
		t.m[c.Name] = TemplateFor(c, types[c.Name])
	}
	return t
}

// Lookup returns the template of a column.
func (t *Templates) Lookup(column string) (ParameterTemplate, bool) {
	if t == nil {
		return ParameterTemplate{}, false
	}
	tpl, ok := t.m[column]
	return tpl, ok
}

// Len returns the number of templates.
func (t *Templates) Len() int {
	if t == nil {
		return 0
	}
	return len(t.m)
}

// template returns the cached template or one derived from the column.
func (t *Templates) template(c *dataspace.Column) ParameterTemplate {
	if tpl, ok := t.Lookup(c.Name); ok {
		return tpl
	}
	return TemplateFor(c, "")
}

// ParameterCache caches Templates per entity type for the lifetime of the
// process. It is safe for concurrent use; each entity type is built once.
type ParameterCache struct {
	mu    sync.RWMutex
	m     map[string]*Templates
	group singleflight.Group
}

// NewParameterCache returns an empty cache.
func NewParameterCache() *ParameterCache {
	return &ParameterCache{m: make(map[string]*Templates)}
}

// Get returns the templates of the entity type, building them from the
// column metadata on first use. An empty entityTypeID bypasses the cache.
func (c *ParameterCache) Get(entityTypeID string, cols dataspace.Columns, types map[string]string) *Templates {
	if entityTypeID == "" {
		return NewTemplates(cols, types)
	}
	c.mu.RLock()
	t, ok := c.m[entityTypeID]
	c.mu.RUnlock()
	if ok {
		return t
	}
	v, _, _ := c.group.Do(entityTypeID, func() (any, error) {
		c.mu.RLock()
		t, ok := c.m[entityTypeID]
		c.mu.RUnlock()
		if ok {
			return t, nil
		}
		t = NewTemplates(cols, types)
		c.mu.Lock()
		c.m[entityTypeID] = t
		c.mu.Unlock()
		return t, nil
	})
	return v.(*Templates)
}

// Len returns the number of cached entity types.
func (c *ParameterCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// paramName strips characters that are not valid in parameter names.
func paramName(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
	if s == "" || unicode.IsDigit(rune(s[0])) {
		s = "p" + s
	}
	return s
}

// String implements fmt.Stringer for trace output.
func (p *Parameter) String() string {
	return fmt.Sprintf("%s=%v", p.Name, p.Value)
}
