package dataspace

import "reflect"

// Row is one buffered row of a Table.
type Row struct {
	State    RowState
	Values   map[string]any
	Original map[string]any
}

// Table is a generic tabular buffer used to load rows and to carry pending
// changes to SaveTable.
type Table struct {
	Name    string
	Columns []string
	Rows    []*Row
}

// NewTable returns an empty table with the given columns.
func NewTable(name string, columns ...string) *Table {
	return &Table{Name: name, Columns: columns}
}

// AddRow appends a row in the Added state.
func (t *Table) AddRow(values map[string]any) *Row {
	r := &Row{State: Added, Values: values}
	t.Rows = append(t.Rows, r)
	return r
}

// Load appends an unchanged row as read from the database.
func (t *Table) Load(values map[string]any) *Row {
	orig := make(map[string]any, len(values))
	for k, v := range values {
		orig[k] = v
	}
	r := &Row{State: Unchanged, Values: values, Original: orig}
	t.Rows = append(t.Rows, r)
	return r
}

// Set changes a value of an unchanged or modified row and marks it Modified.
func (r *Row) Set(column string, v any) {
	r.Values[column] = v
	if r.State == Unchanged {
		r.State = Modified
	}
}

// Delete marks the row Deleted. Added rows are simply forgotten by Packets.
func (r *Row) Delete() {
	if r.State == Added {
		r.State = Invalid
		return
	}
	r.State = Deleted
}

// AcceptChanges makes the current values the original ones.
func (r *Row) AcceptChanges() {
	r.Original = make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		r.Original[k] = v
	}
	r.State = Unchanged
}

// Packets returns one save packet per pending row, in row order. Modified
// columns are every column for added rows and the changed ones otherwise.
func (t *Table) Packets() []*SavePacket {
	var out []*SavePacket
	for _, r := range t.Rows {
		switch r.State {
		case Added, Modified, Deleted:
		default:
			continue
		}
		p := &SavePacket{
			RowState:       r.State,
			CurrentValues:  r.Values,
			OriginalValues: r.Original,
			Row:            r,
		}
		for _, c := range t.Columns {
			v, ok := r.Values[c]
			if !ok {
				continue
			}
			if r.State == Added || !reflect.DeepEqual(v, r.Original[c]) {
				p.ModifiedColumns = append(p.ModifiedColumns, c)
			}
		}
		out = append(out, p)
	}
	return out
}
