package dataspace

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Provider executes DataRequests against one database dialect. Operations
// report failures through DataResponse.Err instead of returning errors.
type Provider interface {
	// Name returns the registry name of the provider.
	Name() string
	LoadTable(context.Context, *DataRequest) *DataResponse
	SaveTable(context.Context, *DataRequest) *DataResponse
	ExecuteNonQuery(context.Context, *DataRequest) *DataResponse
	ExecuteReader(context.Context, *DataRequest) *DataResponse
	ExecuteScalar(context.Context, *DataRequest) *DataResponse
	FillDataSet(context.Context, *DataRequest) *DataResponse
	FillTable(context.Context, *DataRequest) *DataResponse
	// Close releases the provider's connection pools.
	Close() error
}

// Registry resolves provider names to providers. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	log       *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for dispatch failures.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = l
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider under the given name.
func (r *Registry) Register(name string, p Provider) error {
	if name == "" || p == nil {
		return fmt.Errorf("dataspace: invalid provider registration %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; ok {
		return fmt.Errorf("dataspace: provider %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownProvider, name, r.Names())
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every registered provider.
func (r *Registry) Close() error {
	r.mu.RLock()
	ps := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		ps = append(ps, p)
	}
	r.mu.RUnlock()
	var g errgroup.Group
	for _, p := range ps {
		g.Go(p.Close)
	}
	return g.Wait()
}

// LoadTable dispatches a LoadTable request.
func (r *Registry) LoadTable(ctx context.Context, req *DataRequest) (*DataResponse, error) {
	return r.dispatch(ctx, req, "load_table", Provider.LoadTable)
}

// SaveTable dispatches a SaveTable request.
func (r *Registry) SaveTable(ctx context.Context, req *DataRequest) (*DataResponse, error) {
	return r.dispatch(ctx, req, "save_table", Provider.SaveTable)
}

// ExecuteNonQuery dispatches an ExecuteNonQuery request.
func (r *Registry) ExecuteNonQuery(ctx context.Context, req *DataRequest) (*DataResponse, error) {
	return r.dispatch(ctx, req, "execute_non_query", Provider.ExecuteNonQuery)
}

// ExecuteReader dispatches an ExecuteReader request. The caller must close
// the returned reader.
func (r *Registry) ExecuteReader(ctx context.Context, req *DataRequest) (*DataResponse, error) {
	return r.dispatch(ctx, req, "execute_reader", Provider.ExecuteReader)
}

// ExecuteScalar dispatches an ExecuteScalar request.
func (r *Registry) ExecuteScalar(ctx context.Context, req *DataRequest) (*DataResponse, error) {
	return r.dispatch(ctx, req, "execute_scalar", Provider.ExecuteScalar)
}

// FillDataSet dispatches a FillDataSet request.
func (r *Registry) FillDataSet(ctx context.Context, req *DataRequest) (*DataResponse, error) {
	return r.dispatch(ctx, req, "fill_dataset", Provider.FillDataSet)
}

// FillTable dispatches a FillTable request.
func (r *Registry) FillTable(ctx context.Context, req *DataRequest) (*DataResponse, error) {
	return r.dispatch(ctx, req, "fill_table", Provider.FillTable)
}

// dispatch resolves the provider, runs the operation and turns the
// response's error slot into a returned error. The response is returned
// even on failure so callers can inspect LastQuery.
func (r *Registry) dispatch(ctx context.Context, req *DataRequest, op string, fn func(Provider, context.Context, *DataRequest) *DataResponse) (*DataResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("dataspace: %s: nil request", op)
	}
	p, err := r.Lookup(req.ProviderName)
	if err != nil {
		return nil, err
	}
	resp := fn(p, ctx, req)
	if resp == nil {
		return nil, fmt.Errorf("dataspace: %s: provider %q returned no response", op, req.ProviderName)
	}
	if resp.Err != nil {
		r.log.DebugContext(ctx, "provider operation failed",
			"provider", req.ProviderName, "op", op, "query", resp.LastQuery, "error", resp.Err)
		return resp, resp.Err
	}
	mergeOutputs(req, resp)
	return resp, nil
}

// mergeOutputs copies output parameter values back into the request's
// parameters and, for parameters naming a column, into its packet.
func mergeOutputs(req *DataRequest, resp *DataResponse) {
	if len(resp.OutputParams) == 0 {
		return
	}
	for _, p := range req.Parameters {
		if p.Direction == Input {
			continue
		}
		v, ok := resp.OutputParams[p.Name]
		if !ok {
			continue
		}
		p.Value = v
		if p.Column != "" && req.Packet != nil {
			req.Packet.Set(p.Column, v)
		}
	}
}

type registryKey struct{}

// NewContext returns a context carrying the registry.
func NewContext(ctx context.Context, r *Registry) context.Context {
	return context.WithValue(ctx, registryKey{}, r)
}

// FromContext returns the registry carried by ctx, if any.
func FromContext(ctx context.Context) (*Registry, bool) {
	r, ok := ctx.Value(registryKey{}).(*Registry)
	return r, ok
}
