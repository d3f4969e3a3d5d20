package importer

import (
	"context"
	"fmt"
	"sync"

	"pubrec/internal/records"
)

// Feed supplies foreign rows for one external source and one record subtype.
type Feed interface {
	// Name is the registry key, e.g. "cors".
	Name() string
	// SystemRef is the provenance id stamped on every record, e.g. "cors-csv".
	SystemRef() string
	// Schema is the master record subtype this feed produces.
	Schema() records.SchemaName
	// Sequential reports whether rows must be processed strictly in input
	// order. True for feeds whose output for row N depends on rows 1..N-1,
	// e.g. cumulative text built from repeated correlation ids.
	Sequential() bool
	// Fetch retrieves the full batch. Returns ErrAuth (possibly wrapped)
	// when the feed rejects our credentials before any row was read.
	Fetch(ctx context.Context) ([]Row, error)
}

// RecordHandler converts one feed's rows into record operations.
type RecordHandler interface {
	// Transform maps feed column names to the internal record shape. It must
	// stamp the source system ref and the feed's correlation field, and
	// resolve absent columns to defined zero values.
	Transform(row Row) (*records.MasterRecord, error)
	// FindExisting locates the master with the same schema and correlation
	// id, returning (nil, nil) when there is none, including when the row
	// produced no usable correlation id, which always means create.
	FindExisting(ctx context.Context, rec *records.MasterRecord) (*records.MasterRecord, error)
	Create(ctx context.Context, rec *records.MasterRecord) error
	Update(ctx context.Context, existing, rec *records.MasterRecord) error
}

// RunScoped is implemented by record handlers that keep per-run state, such
// as cross-row accumulators. The runner calls BeginRun before processing the
// first row of every run, so a rerun never inherits state from the previous
// one.
type RunScoped interface {
	BeginRun()
}

// Registration pairs a feed with its record handler.
type Registration struct {
	Feed    Feed
	Handler RecordHandler
}

// Registry maps feed name to registration, populated at startup. Adding a
// record subtype is a registration, not a code-wide edit.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

func (r *Registry) Register(reg Registration) error {
	if reg.Feed == nil || reg.Handler == nil {
		return fmt.Errorf("registration requires both feed and handler")
	}
	name := reg.Feed.Name()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("feed %q already registered", name)
	}
	r.entries[name] = reg
	return nil
}

func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	return reg, ok
}

// Names lists registered feeds, for CLI help output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	return out
}
