package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/syssam/dataspace"
)

// Resolver serves connection settings from a configuration file and can
// reload it when the file changes. It is safe for concurrent use.
type Resolver struct {
	path     string
	log      *slog.Logger
	onReload func(*Config, error)

	mu  sync.RWMutex
	cfg *Config
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for reloads.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.log = l
	}
}

// WithReloadHook calls fn after every reload attempt triggered by Watch,
// with the new configuration or the error that kept the previous one.
func WithReloadHook(fn func(*Config, error)) Option {
	return func(r *Resolver) {
		r.onReload = fn
	}
}

// NewResolver loads the configuration file at path.
func NewResolver(path string, opts ...Option) (*Resolver, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	r := &Resolver{path: abs, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Config returns the current configuration.
func (r *Resolver) Config() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Reload reads the file again. On failure the current configuration is
// kept.
func (r *Resolver) Reload() error {
	cfg, err := Load(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	return nil
}

// Resolve returns the connection called name, or the default connection
// when name is empty.
func (r *Resolver) Resolve(name string) (Resolved, error) {
	return r.Config().Resolve(name)
}

// Apply fills req with the settings of the connection called name, the
// configured application name and the audit settings.
func (r *Resolver) Apply(name string, req *dataspace.DataRequest) error {
	cfg := r.Config()
	res, err := cfg.Resolve(name)
	if err != nil {
		return err
	}
	res.Apply(req)
	if req.Application == "" {
		req.Application = cfg.Application
	}
	req.Audit = cfg.Audit.Settings()
	return nil
}

// Watch reloads the configuration whenever its file is written or
// replaced, until ctx is done. The directory is watched so editors that
// rename a new file into place are seen.
func (r *Resolver) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("config: watch %q: %w", r.path, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != r.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			err := r.Reload()
			if err != nil {
				r.log.WarnContext(ctx, "config: reload failed, keeping previous configuration", "path", r.path, "error", err)
			} else {
				r.log.InfoContext(ctx, "config: reloaded", "path", r.path, "connections", len(r.Config().Connections))
			}
			if r.onReload != nil {
				r.onReload(r.Config(), err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.WarnContext(ctx, "config: watch error", "path", r.path, "error", err)
		}
	}
}
