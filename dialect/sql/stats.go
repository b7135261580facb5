package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TraceEvent describes one executed command.
type TraceEvent struct {
	// Seq orders events of one provider.
	Seq     int64
	Dialect string
	// ScopeID identifies the transaction scope the command ran in, empty
	// for auto-commit commands.
	ScopeID     string
	Action      string
	Stack       string
	Application string
	SQL         string
	// ParamsBefore and ParamsAfter hold the parameter values before and
	// after execution; they differ for output parameters.
	ParamsBefore map[string]any
	ParamsAfter  map[string]any
	Duration     time.Duration
	Err          error
}

// Tracer receives an event for every executed command.
type Tracer interface {
	Trace(context.Context, TraceEvent)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(context.Context, TraceEvent)

// Trace calls f.
func (f TracerFunc) Trace(ctx context.Context, ev TraceEvent) { f(ctx, ev) }

// Tracers fans an event out to every subscriber.
type Tracers []Tracer

// Trace calls every tracer in order.
func (ts Tracers) Trace(ctx context.Context, ev TraceEvent) {
	for _, t := range ts {
		t.Trace(ctx, ev)
	}
}

// QueryStats holds command execution statistics.
type QueryStats struct {
	// TotalQueries is the total number of row-returning commands executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of other commands executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing commands.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of commands exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of failed commands.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of command statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the average command duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow command is detected.
type SlowQueryHook func(ctx context.Context, ev TraceEvent)

// StatsTracer is a Tracer collecting command statistics.
type StatsTracer struct {
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	mu            sync.RWMutex
}

// StatsOption configures the StatsTracer.
type StatsOption func(*StatsTracer)

// WithSlowThreshold sets the threshold for slow command detection.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsTracer) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow commands.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsTracer) {
		s.slowHook = hook
	}
}

// WithSlowQueryLog logs slow commands to the given logger, or to the
// default logger when l is nil.
func WithSlowQueryLog(l *slog.Logger) StatsOption {
	if l == nil {
		l = slog.Default()
	}
	return WithSlowQueryHook(func(ctx context.Context, ev TraceEvent) {
		l.WarnContext(ctx, "slow query detected",
			"duration", ev.Duration, "query", ev.SQL, "args", ev.ParamsBefore, "action", ev.Action)
	})
}

// NewStatsTracer returns a statistics subscriber.
//
// Example:
//
//	stats := sql.NewStatsTracer(
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(nil),
//	)
//	p := sqlite.New(provider.WithTracer(stats))
//
//	// Later, check statistics:
//	fmt.Println(stats.QueryStats().Stats())
func NewStatsTracer(opts ...StatsOption) *StatsTracer {
	s := &StatsTracer{
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the underlying QueryStats for reading statistics.
func (s *StatsTracer) QueryStats() *QueryStats {
	return s.stats
}

// SlowThreshold returns the current slow command threshold.
func (s *StatsTracer) SlowThreshold() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slowThreshold
}

// SetSlowThreshold updates the slow command threshold.
func (s *StatsTracer) SetSlowThreshold(threshold time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slowThreshold = threshold
}

// Trace records the event.
func (s *StatsTracer) Trace(ctx context.Context, ev TraceEvent) {
	if isQueryAction(ev.Action) {
		s.stats.TotalQueries.Add(1)
	} else {
		s.stats.TotalExecs.Add(1)
	}
	s.stats.TotalDuration.Add(int64(ev.Duration))
	if ev.Err != nil {
		s.stats.Errors.Add(1)
	}

	s.mu.RLock()
	threshold := s.slowThreshold
	hook := s.slowHook
	s.mu.RUnlock()

	if ev.Duration > threshold {
		s.stats.SlowQueries.Add(1)
		if hook != nil {
			hook(ctx, ev)
		}
	}
}

func isQueryAction(action string) bool {
	switch action {
	case "load_table", "execute_reader", "execute_scalar", "fill_dataset", "fill_table", "refresh", "identity":
		return true
	}
	return false
}

// DebugTracer logs every command.
type DebugTracer struct {
	log func(context.Context, ...any)
}

// DebugOption configures the DebugTracer.
type DebugOption func(*DebugTracer)

// DebugWithLog sets a custom log function.
func DebugWithLog(logFunc func(context.Context, ...any)) DebugOption {
	return func(d *DebugTracer) {
		d.log = logFunc
	}
}

// NewDebugTracer returns a Tracer logging each command at debug level.
func NewDebugTracer(opts ...DebugOption) *DebugTracer {
	d := &DebugTracer{
		log: func(ctx context.Context, v ...any) {
			slog.DebugContext(ctx, fmt.Sprint(v...))
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Trace logs the event.
func (d *DebugTracer) Trace(ctx context.Context, ev TraceEvent) {
	scope := ev.ScopeID
	if scope == "" {
		scope = "auto"
	}
	msg := fmt.Sprintf("#%d %s [%s] %s args: %v", ev.Seq, ev.Action, scope, ev.SQL, ev.ParamsBefore)
	if ev.Err != nil {
		msg += fmt.Sprintf(" error: %v", ev.Err)
	}
	d.log(ctx, msg)
}

// Ensure interfaces are implemented.
var (
	_ Tracer = (*StatsTracer)(nil)
	_ Tracer = (*DebugTracer)(nil)
	_ Tracer = Tracers(nil)
	_ Tracer = TracerFunc(nil)
)
