package dataspace

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/syssam/dataspace/query"
)

// RowState is the persistence intent of a row. The numeric values are part
// of the packet wire format and must not change.
type RowState int

// Row states.
const (
	Invalid   RowState = 0
	Unchanged RowState = 2
	Added     RowState = 4
	Deleted   RowState = 8
	Modified  RowState = 16
)

// String returns the state name.
func (s RowState) String() string {
	switch s {
	case Invalid:
		return "Invalid"
	case Unchanged:
		return "Unchanged"
	case Added:
		return "Added"
	case Deleted:
		return "Deleted"
	case Modified:
		return "Modified"
	default:
		return fmt.Sprintf("RowState(%d)", int(s))
	}
}

// AccessType selects how a provider reaches the data.
type AccessType int

const (
	// AccessDynamic builds SQL text from the query model and column metadata.
	AccessDynamic AccessType = iota
	// AccessStoredProcedure calls the procedures named in ProviderMetadata.
	AccessStoredProcedure
)

// String returns the configuration spelling of the access type.
func (a AccessType) String() string {
	if a == AccessStoredProcedure {
		return "stored_procedure"
	}
	return "dynamic"
}

// Direction is the direction of a command parameter.
type Direction int

// Parameter directions.
const (
	Input Direction = iota
	Output
	InputOutput
	ReturnValue
)

// Param is a caller-supplied parameter of a raw command.
type Param struct {
	Name      string
	Value     any
	Direction Direction
	// Column names the packet column that receives the value of an output
	// parameter after execution.
	Column string
}

// SavePacket carries one row to persist.
type SavePacket struct {
	RowState        RowState       `msgpack:"state"`
	CurrentValues   map[string]any `msgpack:"current"`
	OriginalValues  map[string]any `msgpack:"original,omitempty"`
	ModifiedColumns []string       `msgpack:"modified,omitempty"`

	// Entity is an opaque caller reference handed back through OnError.
	Entity any `msgpack:"-"`
	// Row is the buffered table row the packet was taken from, if any.
	// Generated values are written back to it after execution.
	Row *Row `msgpack:"-"`
}

// IsModified reports whether the column is listed as modified.
func (p *SavePacket) IsModified(column string) bool {
	for _, c := range p.ModifiedColumns {
		if c == column {
			return true
		}
	}
	return false
}

// Original returns the original value of the column, falling back to the
// current value when no original was captured.
func (p *SavePacket) Original(column string) any {
	if v, ok := p.OriginalValues[column]; ok {
		return v
	}
	return p.CurrentValues[column]
}

// Set stores a current value and mirrors it into the buffered row.
func (p *SavePacket) Set(column string, v any) {
	if p.CurrentValues == nil {
		p.CurrentValues = make(map[string]any)
	}
	p.CurrentValues[column] = v
	if p.Row != nil {
		p.Row.Values[column] = v
	}
}

// ProviderMetadata holds provider-specific mapping information for one
// entity type.
type ProviderMetadata struct {
	// Source is the table or view read by LoadTable.
	Source string
	// Destination is the table written by SaveTable.
	Destination string

	SPInsert           string
	SPUpdate           string
	SPDelete           string
	SPLoadAll          string
	SPLoadByPrimaryKey string

	// Types maps column names to provider-native type names.
	Types map[string]string
}

// DataRequest is the envelope handed to a provider.
type DataRequest struct {
	ProviderName     string
	ConnectionString string
	Catalog          string
	Schema           string
	DatabaseVersion  string
	Access           AccessType
	CommandTimeout   time.Duration
	Application      string

	// EntityTypeID is a stable per-entity-type key used to cache parameter
	// templates.
	EntityTypeID string
	Columns      Columns
	Metadata     *ProviderMetadata
	Audit        Audit
	UserName     string

	Query   *query.Query
	Table   *Table
	Packet  *SavePacket
	Packets []*SavePacket

	// CommandText and Parameters drive the raw Execute* operations. With
	// AccessStoredProcedure the text is a procedure name.
	CommandText string
	Parameters  []*Param

	// Properties carries state from command building to post-execution
	// callbacks.
	Properties map[string]any

	ContinueOnError       bool
	IgnoreComputedColumns bool
	BulkSave              bool

	// OnError receives each failing packet when ContinueOnError is set.
	OnError func(*SavePacket, error)
}

// Property returns a transient property.
func (r *DataRequest) Property(key string) (any, bool) {
	v, ok := r.Properties[key]
	return v, ok
}

// SetProperty stores a transient property.
func (r *DataRequest) SetProperty(key string, v any) {
	if r.Properties == nil {
		r.Properties = make(map[string]any)
	}
	r.Properties[key] = v
}

// Reader is a forward-only result reader. Closing it releases the
// connection it reads from.
type Reader interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	ColumnTypes() ([]*sql.ColumnType, error)
	NextResultSet() bool
	Err() error
	Close() error
}

// DataResponse is returned by every provider operation. Consumers must
// check Err before reading any other field.
type DataResponse struct {
	Table        *Table
	Reader       Reader
	Scalar       any
	Tables       []*Table
	OutputParams map[string]any
	RowsAffected int64
	LastQuery    string
	Err          error
}

// Fail records err on the response, wrapping untyped driver errors in an
// ExecutionError carrying LastQuery, and returns the response.
func (r *DataResponse) Fail(op string, err error) *DataResponse {
	if err == nil {
		return r
	}
	if IsConcurrencyError(err) || IsConstructionError(err) || IsExecutionError(err) {
		r.Err = err
		return r
	}
	var pe *PacketError
	if errors.As(err, &pe) {
		r.Err = err
		return r
	}
	r.Err = NewExecutionError(op, r.LastQuery, err)
	return r
}
