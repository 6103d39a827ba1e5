package endpoint

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/koustreak/autorest/internal/compiler"
	"github.com/koustreak/autorest/internal/logger"
)

// Registry maps endpoint references to configured endpoints. It replaces
// name-based lookup of generated code: handlers resolve their endpoint by
// key. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byRef  map[string]*Endpoint
	byPath map[string]*Endpoint // "schema.table"
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byRef:  make(map[string]*Endpoint),
		byPath: make(map[string]*Endpoint),
	}
}

// Register adds or replaces e.
func (r *Registry) Register(e *Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRef[e.Ref.String()] = e
	r.byPath[e.Ref.Route()] = e
}

// Lookup returns the endpoint registered under ref.
func (r *Registry) Lookup(ref Ref) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byRef[ref.String()]
	return e, ok
}

// Route returns the endpoint serving "schema.table".
func (r *Registry) Route(route string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byPath[route]
	return e, ok
}

// Routes returns every registered route, sorted.
func (r *Registry) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byPath))
	for route := range r.byPath {
		out = append(out, route)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRef)
}

// Failure is a table that could not be configured.
type Failure struct {
	Ref Ref
	Err error
}

// RegisterAll configures every table concurrently, at most workers at a
// time, and registers the endpoints that succeed. Tables that fail are
// logged and returned; they never stop the others. The returned error is
// only set when ctx ends first.
func (r *Registry) RegisterAll(ctx context.Context, c *Configurator, dbName, namespace string, tables []*compiler.TableSpec, workers int, log *logger.Logger) ([]Failure, error) {
	if log == nil {
		log = logger.Nop()
	}

	var (
		mu       sync.Mutex
		failures []Failure
	)

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for _, t := range tables {
		ref := Ref{Database: dbName, Namespace: namespace, Schema: t.Schema, Table: t.Table}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e, err := c.Endpoint(gctx, ref, t)
			if err != nil {
				log.ErrorWith("endpoint not registered", err, map[string]any{"endpoint": ref.String()})
				mu.Lock()
				failures = append(failures, Failure{Ref: ref, Err: err})
				mu.Unlock()
				return nil
			}
			r.Register(e)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return failures, err
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].Ref.String() < failures[j].Ref.String() })
	return failures, nil
}
