package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pool keeps one *sql.DB per connection string. Connection pooling itself
// is left to database/sql.
type Pool struct {
	driver string
	setup  func(*sql.DB)
	dsn    func(string) (string, error)

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewPool returns a pool opening databases with the named driver.
func NewPool(driver string) *Pool {
	return &Pool{driver: driver, dbs: make(map[string]*sql.DB)}
}

// Add registers an already opened database under connStr. The pool takes
// ownership and closes it on Close.
func (p *Pool) Add(connStr string, db *sql.DB) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dbs[connStr] = db
}

// DB returns the database of connStr, opening it on first use.
func (p *Pool) DB(connStr string) (*sql.DB, error) {
	if connStr == "" {
		return nil, errors.New("provider: empty connection string")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if db, ok := p.dbs[connStr]; ok {
		return db, nil
	}
	dsn := connStr
	if p.dsn != nil {
		var err error
		if dsn, err = p.dsn(connStr); err != nil {
			return nil, fmt.Errorf("provider: parse connection string: %w", err)
		}
	}
	db, err := sql.Open(p.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("provider: open %s database: %w", p.driver, err)
	}
	if p.setup != nil {
		p.setup(db)
	}
	p.dbs[connStr] = db
	return db, nil
}

// Conn returns a dedicated connection for connStr. It has the signature
// of txscope.Opener.
func (p *Pool) Conn(ctx context.Context, connStr string) (*sql.Conn, error) {
	db, err := p.DB(connStr)
	if err != nil {
		return nil, err
	}
	return db.Conn(ctx)
}

// Len returns the number of open databases.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dbs)
}

// Close closes every database of the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	dbs := p.dbs
	p.dbs = make(map[string]*sql.DB)
	p.mu.Unlock()
	var g errgroup.Group
	for _, db := range dbs {
		g.Go(func() error {
			if err := db.Close(); err != nil {
				return fmt.Errorf("provider: close %s database: %w", p.driver, err)
			}
			return nil
		})
	}
	return g.Wait()
}
