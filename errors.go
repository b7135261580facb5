package dataspace

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors.
var (
	// ErrConcurrency is matched by every concurrency conflict: an UPDATE or
	// DELETE that affected no rows, or a driver error carrying a dialect
	// conflict signature.
	ErrConcurrency = errors.New("dataspace: concurrency conflict")

	// ErrConstruction is matched by every malformed query or command.
	ErrConstruction = errors.New("dataspace: invalid query construction")

	// ErrUnknownProvider is returned when a request names no registered provider.
	ErrUnknownProvider = errors.New("dataspace: unknown provider")

	// ErrMixedBatch is returned when a save-packet batch mixes deletes with
	// inserts or updates.
	ErrMixedBatch = errors.New("dataspace: save batch mixes deleted and non-deleted packets")

	// ErrUnsupported is returned for operations a provider cannot perform.
	ErrUnsupported = errors.New("dataspace: operation not supported by provider")
)

// ConcurrencyError reports a lost-update conflict.
type ConcurrencyError struct {
	Table string // Table being saved
	Op    string // "update" or "delete"
	Err   error  // Driver error, nil when zero rows were affected
}

// Error returns the error string.
func (e *ConcurrencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dataspace: concurrency conflict on %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("dataspace: concurrency conflict on %s %s: no rows affected", e.Op, e.Table)
}

// Is reports whether the target error matches ErrConcurrency.
func (e *ConcurrencyError) Is(err error) bool {
	return err == ErrConcurrency
}

// Unwrap returns the underlying driver error.
func (e *ConcurrencyError) Unwrap() error {
	return e.Err
}

// NewConcurrencyError returns a new ConcurrencyError.
func NewConcurrencyError(table, op string, err error) *ConcurrencyError {
	return &ConcurrencyError{Table: table, Op: op, Err: err}
}

// IsConcurrencyError returns true if the error is a concurrency conflict.
func IsConcurrencyError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConcurrencyError
	return errors.As(err, &e) || errors.Is(err, ErrConcurrency)
}

// ConstructionError reports a malformed query model or command.
type ConstructionError struct {
	Err error
}

// Error returns the error string.
func (e *ConstructionError) Error() string {
	return fmt.Sprintf("dataspace: invalid query construction: %v", e.Err)
}

// Is reports whether the target error matches ErrConstruction.
func (e *ConstructionError) Is(err error) bool {
	return err == ErrConstruction
}

// Unwrap returns the underlying error.
func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// NewConstructionError wraps err as a ConstructionError. It returns nil
// for a nil error and does not double wrap.
func NewConstructionError(err error) error {
	if err == nil {
		return nil
	}
	var e *ConstructionError
	if errors.As(err, &e) {
		return err
	}
	return &ConstructionError{Err: err}
}

// Constructionf returns a formatted ConstructionError.
func Constructionf(format string, args ...any) error {
	return &ConstructionError{Err: fmt.Errorf(format, args...)}
}

// IsConstructionError returns true if the error is a ConstructionError.
func IsConstructionError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConstructionError
	return errors.As(err, &e)
}

// ExecutionError wraps a driver failure with the SQL text that caused it.
type ExecutionError struct {
	Op        string // Provider operation, e.g. "load_table"
	LastQuery string // SQL text of the failing command
	Err       error
}

// Error returns the error string.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("dataspace: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError returns a new ExecutionError.
func NewExecutionError(op, lastQuery string, err error) *ExecutionError {
	return &ExecutionError{Op: op, LastQuery: lastQuery, Err: err}
}

// IsExecutionError returns true if the error is an ExecutionError.
func IsExecutionError(err error) bool {
	if err == nil {
		return false
	}
	var e *ExecutionError
	return errors.As(err, &e)
}

// PacketError associates an error with the save packet that caused it.
type PacketError struct {
	Index  int         // Position of the packet in the batch
	Packet *SavePacket // Offending packet
	Err    error
}

// Error returns the error string.
func (e *PacketError) Error() string {
	return fmt.Sprintf("dataspace: save packet %d (%s): %v", e.Index, e.Packet.RowState, e.Err)
}

// Unwrap returns the underlying error.
func (e *PacketError) Unwrap() error {
	return e.Err
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("dataspace: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "dataspace: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("dataspace: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
