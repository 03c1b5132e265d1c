// Package storage loads converted tables into a relational database.
//
// Backends register themselves under a kind ("sqlite", "postgres", "mssql")
// from an init function; import internal/storage/all to link every backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a repository.
//
// Kind must match a registered backend. DSN is passed through to the backend
// factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the backend-agnostic interface the loader writes through.
// Each backend implements it in its own dialect.
type Repository interface {
	// Close releases backend resources. Call it once.
	Close()

	// EnsureTables creates every table that does not yet exist, in order.
	// Callers order referenced tables before the tables referencing them.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// InsertRows inserts rows into table in one transaction. Rows are aligned
	// with columns. Statements are split to stay under the backend's
	// parameter limit.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// SelectRows returns every row of spec's table, columns in spec order,
	// sorted by the primary key when it has one. Cell values are normalized
	// with NormalizeValue.
	SelectRows(ctx context.Context, spec TableSpec) ([][]any, error)
}

// Factory opens a repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It is meant to be called
// from a backend package's init function.
//
// Register panics if kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New opens a repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
