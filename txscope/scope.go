package txscope

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/syssam/dataspace"
)

// Scope misuse errors.
var (
	// ErrNoScope is returned when an operation needs an active scope.
	ErrNoScope = errors.New("txscope: no active scope")
	// ErrCompleted is returned by a second Complete on the same scope.
	ErrCompleted = errors.New("txscope: scope already completed")
	// ErrClosed is returned when completing a scope that was closed.
	ErrClosed = errors.New("txscope: scope already closed")
	// ErrRolledBack is returned when the transaction of the scope was rolled
	// back because a nested scope exited without completing.
	ErrRolledBack = errors.New("txscope: transaction was rolled back")
)

// Option selects how a scope relates to the enclosing one.
type Option int

const (
	// Required joins the enclosing transaction, or starts one.
	Required Option = iota
	// RequiresNew always starts an independent transaction.
	RequiresNew
	// Suppress runs enlisted commands outside any transaction, each on its
	// own auto-commit connection.
	Suppress
)

// String returns the option name.
func (o Option) String() string {
	switch o {
	case Required:
		return "required"
	case RequiresNew:
		return "requires_new"
	case Suppress:
		return "suppress"
	default:
		return fmt.Sprintf("Option(%d)", int(o))
	}
}

// Enlistable is a command that runs on an attached connection.
type Enlistable interface {
	Attach(conn *sql.Conn, tx *sql.Tx)
	Conn() *sql.Conn
}

// Opener opens a dedicated connection for a connection string.
type Opener func(ctx context.Context, connStr string) (*sql.Conn, error)

// entry is one physical transaction of a root.
type entry struct {
	connStr string
	conn    *sql.Conn
	tx      *sql.Tx
}

// root owns the transactions shared by a scope and the scopes joining it.
type root struct {
	id            string
	isolation     sql.IsolationLevel
	entries       []*entry
	byConn        map[string]*entry
	count         int
	hasRolledBack bool
	callbacks     []func()
	log           *slog.Logger
}

// Scope is one level of the ambient transaction stack.
//
// A scope is confined to the goroutine that entered it: the stack lives in
// the context returned by Enter and must not be shared with other
// goroutines. Work started on another goroutine runs outside the scope
// unless it is handed the scope's context explicitly and runs to completion
// before the scope is completed or closed.
type Scope struct {
	id        string
	option    Option
	parent    *Scope
	root      *root
	completed bool
	closed    bool
}

type ctxScopeKey struct{}

type ctxLoggerKey struct{}

// WithLogger returns a context whose scopes log to l.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, l)
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxLoggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// Enter pushes a new scope and returns the context carrying it. Required
// joins the transaction of the nearest active scope unless that scope
// suppresses transactions; every other combination starts a new root.
//
//	ctx, scope := txscope.Enter(ctx, txscope.Required, sql.LevelDefault)
//	defer scope.Close()
//	...
//	return scope.Complete()
func Enter(ctx context.Context, opt Option, isolation sql.IsolationLevel) (context.Context, *Scope) {
	parent := Current(ctx)
	s := &Scope{id: uuid.NewString(), option: opt, parent: parent}
	if opt == Required && parent != nil && parent.option != Suppress {
		s.root = parent.root
	} else {
		s.root = &root{
			id:        s.id,
			isolation: isolation,
			byConn:    make(map[string]*entry),
			log:       loggerFrom(ctx),
		}
		s.root.log.Debug("txscope: root scope created", "scope", s.id, "option", opt, "isolation", isolation)
	}
	s.root.count++
	return context.WithValue(ctx, ctxScopeKey{}, s), s
}

// Current returns the nearest scope of ctx that is still open, or nil.
func Current(ctx context.Context) *Scope {
	s, _ := ctx.Value(ctxScopeKey{}).(*Scope)
	for s != nil && s.closed {
		s = s.parent
	}
	return s
}

// ID returns the scope identifier.
func (s *Scope) ID() string { return s.id }

// RootID returns the identifier of the scope owning the transactions.
func (s *Scope) RootID() string { return s.root.id }

// Option returns the scope option.
func (s *Scope) Option() Option { return s.option }

// IsRoot reports whether the scope owns its transactions.
func (s *Scope) IsRoot() bool { return s.root.id == s.id }

// Complete marks the scope successful. When the last scope of a root
// completes, every transaction of the root commits, in the order their
// connection strings were first enlisted, and the commit callbacks run.
func (s *Scope) Complete() error {
	switch {
	case s == nil:
		return ErrNoScope
	case s.closed:
		return ErrClosed
	case s.completed:
		return ErrCompleted
	}
	s.completed = true
	r := s.root
	if r.hasRolledBack {
		return ErrRolledBack
	}
	r.count--
	if r.count > 0 || s.option == Suppress {
		return nil
	}
	return r.commit()
}

// Close pops the scope. Closing a scope that was not completed rolls back
// every open transaction of its root, and so does closing a root whose
// joined scopes have not all completed. Rollback failures are logged and
// never returned. Close is idempotent.
func (s *Scope) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	r := s.root
	if s.completed && (!s.IsRoot() || r.count == 0) {
		return nil
	}
	if r.hasRolledBack {
		return nil
	}
	r.rollback()
	r.count = 0
	r.hasRolledBack = true
	return nil
}

func (r *root) commit() error {
	var errs []error
	for i, e := range r.entries {
		if len(errs) > 0 {
			r.rollbackEntry(e)
			continue
		}
		if err := e.tx.Commit(); err != nil {
			errs = append(errs, fmt.Errorf("txscope: commit transaction %d: %w", i+1, err))
			r.hasRolledBack = true
		}
		if err := e.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			r.log.Warn("txscope: close connection failed", "scope", r.id, "error", err)
		}
	}
	n := len(r.entries)
	r.reset()
	if err := dataspace.NewAggregateError(errs...); err != nil {
		r.callbacks = nil
		return err
	}
	r.log.Debug("txscope: committed", "scope", r.id, "transactions", n)
	callbacks := r.callbacks
	r.callbacks = nil
	for _, fn := range callbacks {
		fn()
	}
	return nil
}

func (r *root) rollback() {
	if len(r.entries) > 0 {
		r.log.Debug("txscope: rolling back", "scope", r.id, "transactions", len(r.entries))
	}
	for _, e := range r.entries {
		r.rollbackEntry(e)
	}
	r.reset()
	r.callbacks = nil
}

// rollbackEntry rolls back and releases one transaction, logging failures.
func (r *root) rollbackEntry(e *entry) {
	if err := e.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		r.log.Warn("txscope: rollback error ignored", "scope", r.id, "error", &dataspace.RollbackError{Err: err})
	}
	if err := e.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		r.log.Warn("txscope: close connection failed", "scope", r.id, "error", err)
	}
}

func (r *root) reset() {
	r.entries = nil
	clear(r.byConn)
}

// Enlist attaches a connection to cmd. Without an active scope, or under a
// Suppress scope, cmd gets a new auto-commit connection that DeEnlist
// closes. Otherwise cmd shares the root's transaction for connStr, which is
// opened and begun on first use.
func Enlist(ctx context.Context, cmd Enlistable, connStr string, open Opener) error {
	s := Current(ctx)
	if s == nil || s.option == Suppress {
		conn, err := open(ctx, connStr)
		if err != nil {
			return fmt.Errorf("txscope: open connection: %w", err)
		}
		cmd.Attach(conn, nil)
		return nil
	}
	r := s.root
	if r.hasRolledBack {
		return ErrRolledBack
	}
	if e, ok := r.byConn[connStr]; ok {
		cmd.Attach(e.conn, e.tx)
		return nil
	}
	conn, err := open(ctx, connStr)
	if err != nil {
		return fmt.Errorf("txscope: open connection: %w", err)
	}
	// The transaction belongs to the scope, not to the request that
	// happened to enlist first.
	tx, err := conn.BeginTx(context.WithoutCancel(ctx), &sql.TxOptions{Isolation: r.isolation})
	if err != nil {
		return errors.Join(fmt.Errorf("txscope: begin transaction: %w", err), conn.Close())
	}
	e := &entry{connStr: connStr, conn: conn, tx: tx}
	r.entries = append(r.entries, e)
	r.byConn[connStr] = e
	cmd.Attach(conn, tx)
	return nil
}

// DeEnlist releases cmd after use. Auto-commit connections are closed;
// scope connections stay open until the root completes or rolls back.
func DeEnlist(ctx context.Context, cmd Enlistable) error {
	if s := Current(ctx); s != nil && s.option != Suppress {
		return nil
	}
	conn := cmd.Conn()
	if conn == nil {
		return nil
	}
	cmd.Attach(nil, nil)
	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("txscope: close connection: %w", err)
	}
	return nil
}

// RegisterCommitCallback registers fn to run after the transaction of the
// nearest scope commits. It reports false when there is no transaction to
// wait for, in which case the caller should act immediately.
func RegisterCommitCallback(ctx context.Context, fn func()) bool {
	s := Current(ctx)
	if s == nil || s.option == Suppress || s.root.hasRolledBack {
		return false
	}
	s.root.callbacks = append(s.root.callbacks, fn)
	return true
}
