package compiler

import (
	"context"
	"sync"
)

// Collector is an Emitter that keeps every unit in memory. The serve
// command compiles the catalog into a Collector and registers endpoints
// from it instead of loading generated code.
type Collector struct {
	mu     sync.Mutex
	units  []*Unit
	routes []string
}

// Emit implements Emitter.
func (c *Collector) Emit(_ context.Context, u *Unit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units = append(c.units, u)
	return nil
}

// EmitRoutes implements Emitter.
func (c *Collector) EmitRoutes(_ context.Context, routes []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes = append([]string(nil), routes...)
	return nil
}

// Units returns the collected units in emission order.
func (c *Collector) Units() []*Unit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Unit(nil), c.units...)
}

// Routes returns the routes passed to EmitRoutes.
func (c *Collector) Routes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.routes...)
}

// Tables flattens units into a route -> TableSpec lookup.
func Tables(units []*Unit) map[string]*TableSpec {
	out := make(map[string]*TableSpec)
	for _, u := range units {
		for _, t := range u.Tables {
			out[t.Route()] = t
		}
	}
	return out
}
