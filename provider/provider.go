package provider

import (
	"context"
	"database/sql"
	"log/slog"
	"maps"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/syssam/dataspace"
	"github.com/syssam/dataspace/dialect"
	dsql "github.com/syssam/dataspace/dialect/sql"
	"github.com/syssam/dataspace/txscope"
)

// Provider is a dataspace.Provider rendering SQL for one dialect and
// executing it over database/sql.
type Provider struct {
	name     string
	policy   dialect.Policy
	pool     *Pool
	cache    *dsql.ParameterCache
	tracers  dsql.Tracers
	classify dsql.Classifier
	convert  dsql.ValueConverter
	types    map[string]string
	now      func() time.Time
	stack    bool
	log      *slog.Logger
	seq      atomic.Int64
}

var _ dataspace.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger for command failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		p.log = l
	}
}

// WithTracer subscribes t to every executed command.
func WithTracer(t dsql.Tracer) Option {
	return func(p *Provider) {
		p.tracers = append(p.tracers, t)
	}
}

// WithStackTrace records the call stack in trace events.
func WithStackTrace() Option {
	return func(p *Provider) {
		p.stack = true
	}
}

// WithClassifier sets the hook recognizing driver-specific concurrency
// conflicts, in addition to the generic signatures.
func WithClassifier(c dsql.Classifier) Option {
	return func(p *Provider) {
		p.classify = c
	}
}

// WithConverter sets the converter mapping parameters to driver values.
func WithConverter(c dsql.ValueConverter) Option {
	return func(p *Provider) {
		p.convert = c
	}
}

// WithTypes sets default native parameter types by column name. Types in
// the request's ProviderMetadata take precedence.
func WithTypes(types map[string]string) Option {
	return func(p *Provider) {
		p.types = types
	}
}

// WithParameterCache shares a parameter template cache between providers.
func WithParameterCache(c *dsql.ParameterCache) Option {
	return func(p *Provider) {
		p.cache = c
	}
}

// WithClock sets the clock used for client-side audit dates.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// WithDB serves connStr from an already opened database.
func WithDB(connStr string, db *sql.DB) Option {
	return func(p *Provider) {
		p.pool.Add(connStr, db)
	}
}

// WithPoolSetup configures every database opened by the provider.
func WithPoolSetup(setup func(*sql.DB)) Option {
	return func(p *Provider) {
		p.pool.setup = setup
	}
}

// WithDSN rewrites connection strings before they reach the driver.
func WithDSN(fn func(connStr string) (string, error)) Option {
	return func(p *Provider) {
		p.pool.dsn = fn
	}
}

// New returns a provider registered as name, rendering SQL with policy and
// opening connections with the database/sql driver.
func New(name string, policy dialect.Policy, driver string, opts ...Option) *Provider {
	p := &Provider{
		name:   name,
		policy: policy,
		pool:   NewPool(driver),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		p.cache = dsql.NewParameterCache()
	}
	return p
}

// Name returns the registry name of the provider.
func (p *Provider) Name() string { return p.name }

// Policy returns the dialect policy of the provider.
func (p *Provider) Policy() dialect.Policy { return p.policy }

// Pool returns the connection pool of the provider.
func (p *Provider) Pool() *Pool { return p.pool }

// Close closes the provider's databases.
func (p *Provider) Close() error { return p.pool.Close() }

// attach enlists cmd in the ambient transaction scope.
func (p *Provider) attach(ctx context.Context, req *dataspace.DataRequest, cmd *dsql.Command) error {
	p.prepare(req, cmd)
	return txscope.Enlist(ctx, cmd, req.ConnectionString, p.pool.Conn)
}

func (p *Provider) release(ctx context.Context, cmd *dsql.Command) {
	if err := txscope.DeEnlist(ctx, cmd); err != nil {
		p.log.WarnContext(ctx, "provider: release connection", "provider", p.name, "error", err)
	}
}

// follow attaches next to the connection and transaction of cmd.
func (p *Provider) follow(req *dataspace.DataRequest, cmd, next *dsql.Command) *dsql.Command {
	p.prepare(req, next)
	next.Attach(cmd.Conn(), cmd.Tx())
	return next
}

func (p *Provider) prepare(req *dataspace.DataRequest, cmd *dsql.Command) {
	cmd.Timeout = req.CommandTimeout
	cmd.Convert = p.convert
}

// session adds the application name as a session variable on dialects
// that report it to the server.
func (p *Provider) session(ctx context.Context, req *dataspace.DataRequest) context.Context {
	if req.Application == "" {
		return ctx
	}
	switch p.policy.Name {
	case dialect.Postgres, dialect.MSSQL:
		if v, ok := dsql.VarFromContext(ctx, "application_name"); !ok || v != req.Application {
			ctx = dsql.WithVar(ctx, "application_name", req.Application)
		}
	}
	return ctx
}

func (p *Provider) exec(ctx context.Context, req *dataspace.DataRequest, action string, cmd *dsql.Command) (sql.Result, error) {
	before := p.before(cmd)
	start := time.Now()
	res, err := cmd.Exec(p.session(ctx, req))
	p.trace(ctx, req, action, cmd, before, time.Since(start), err)
	return res, err
}

func (p *Provider) query(ctx context.Context, req *dataspace.DataRequest, action string, cmd *dsql.Command) (*dsql.Rows, error) {
	before := p.before(cmd)
	start := time.Now()
	rows, err := cmd.Query(p.session(ctx, req))
	p.trace(ctx, req, action, cmd, before, time.Since(start), err)
	return rows, err
}

// queryMaps runs cmd and reads its first result set.
func (p *Provider) queryMaps(ctx context.Context, req *dataspace.DataRequest, action string, cmd *dsql.Command) (dsql.ResultSet, error) {
	rows, err := p.query(ctx, req, action, cmd)
	if err != nil {
		return dsql.ResultSet{}, err
	}
	return dsql.ScanMaps(rows)
}

func (p *Provider) before(cmd *dsql.Command) map[string]any {
	if len(p.tracers) == 0 {
		return nil
	}
	return maps.Clone(cmd.Values())
}

func (p *Provider) trace(ctx context.Context, req *dataspace.DataRequest, action string, cmd *dsql.Command, before map[string]any, d time.Duration, err error) {
	if err != nil {
		p.log.DebugContext(ctx, "provider: command failed", "provider", p.name, "action", action, "query", cmd.Text, "error", err)
	}
	if len(p.tracers) == 0 {
		return
	}
	ev := dsql.TraceEvent{
		Seq:          p.seq.Add(1),
		Dialect:      p.policy.Name,
		Action:       action,
		Application:  req.Application,
		SQL:          cmd.Text,
		ParamsBefore: before,
		ParamsAfter:  cmd.Values(),
		Duration:     d,
		Err:          err,
	}
	if s := txscope.Current(ctx); s != nil && s.Option() != txscope.Suppress {
		ev.ScopeID = s.RootID()
	}
	if p.stack {
		ev.Stack = string(debug.Stack())
	}
	p.tracers.Trace(ctx, ev)
}
