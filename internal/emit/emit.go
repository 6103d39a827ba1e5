// Package emit renders compiled generation units into Go source files.
//
// Each schema becomes one file holding a read model struct per table; a
// final routes file lists every route. Rendering happens while the
// compiler flushes a unit and the result stays in memory. Nothing touches
// the output directory or the publisher until EmitRoutes, so an aborted
// compilation leaves no partial output. EmitRoutes writes and publishes on a
// bounded worker group and rolls back what it wrote when any file fails.
package emit

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/dave/jennifer/jen"
	"golang.org/x/sync/errgroup"

	"github.com/koustreak/autorest/internal/compiler"
	"github.com/koustreak/autorest/internal/errs"
	"github.com/koustreak/autorest/internal/logger"
	"github.com/koustreak/autorest/internal/naming"
)

// Header is the first line of every generated file. Clean only removes
// files that start with it.
const Header = "// Code generated by autorest. DO NOT EDIT."

// RoutesFile is the name of the generated routes file.
const RoutesFile = "routes.go"

// Config controls file generation.
type Config struct {
	// Workers bounds concurrent file writes. Default GOMAXPROCS.
	Workers int `yaml:"workers"`

	// Package is the Go package name of the generated files. Default "models".
	Package string `yaml:"package"`
}

// DefaultConfig returns GOMAXPROCS workers and package "models".
func DefaultConfig() Config {
	return Config{Workers: runtime.GOMAXPROCS(0), Package: "models"}
}

// Publisher receives a copy of every written file.
type Publisher interface {
	Publish(ctx context.Context, name string, data []byte) error
}

// Retractor is implemented by publishers that can remove a published file.
// It is used to roll back a run whose writes failed part way.
type Retractor interface {
	Retract(ctx context.Context, name string) error
}

type pendingFile struct {
	name string
	data []byte
}

// FileEmitter implements compiler.Emitter by writing Go files into one
// directory.
type FileEmitter struct {
	dir string
	pkg string
	pub Publisher
	log *logger.Logger
	g   *errgroup.Group

	beforeWrite []func(context.Context) error

	mu        sync.Mutex
	claimed   map[string]string // model identifier or file name -> route or schema
	pending   []pendingFile
	files     []string
	published []string
}

// New creates a FileEmitter writing into dir.
func New(dir string, cfg Config, log *logger.Logger) *FileEmitter {
	if cfg.Package == "" {
		cfg.Package = "models"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = logger.Nop()
	}
	g := new(errgroup.Group)
	g.SetLimit(cfg.Workers)
	return &FileEmitter{
		dir:     dir,
		pkg:     cfg.Package,
		log:     log,
		g:       g,
		claimed: make(map[string]string),
	}
}

// WithPublisher also uploads every file through p.
func (e *FileEmitter) WithPublisher(p Publisher) *FileEmitter {
	e.pub = p
	return e
}

// BeforeWrite registers fn to run once compilation succeeded and before the
// first file is written. A failing fn aborts the run with nothing written.
func (e *FileEmitter) BeforeWrite(fn func(ctx context.Context) error) *FileEmitter {
	e.beforeWrite = append(e.beforeWrite, fn)
	return e
}

// Emit implements compiler.Emitter.
func (e *FileEmitter) Emit(ctx context.Context, u *compiler.Unit) error {
	name := strings.ToLower(naming.SchemaIdent(u.Schema)) + "_models.go"
	if err := e.claim(name, u.Schema); err != nil {
		return err
	}
	data, err := e.renderUnit(u)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.pending = append(e.pending, pendingFile{name: name, data: data})
	e.mu.Unlock()
	return nil
}

// EmitRoutes implements compiler.Emitter. It writes every rendered file and
// the routes file, then waits for them. On failure the files written by
// this call are removed again.
func (e *FileEmitter) EmitRoutes(ctx context.Context, routes []string) error {
	data, err := e.renderRoutes(routes)
	if err != nil {
		return err
	}

	for _, fn := range e.beforeWrite {
		if err := fn(ctx); err != nil {
			return err
		}
	}

	e.mu.Lock()
	pending := append(e.pending, pendingFile{name: RoutesFile, data: data})
	e.pending = nil
	e.mu.Unlock()

	for _, f := range pending {
		e.write(ctx, f.name, f.data)
	}
	if err := e.Wait(); err != nil {
		e.rollback()
		return err
	}
	return nil
}

// Wait blocks until all scheduled writes finished and returns the first error.
func (e *FileEmitter) Wait() error {
	return e.g.Wait()
}

// Pending returns the names of rendered files not written yet.
func (e *FileEmitter) Pending() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.pending))
	for i, f := range e.pending {
		out[i] = f.name
	}
	return out
}

func (e *FileEmitter) rollback() {
	e.mu.Lock()
	files, published := e.files, e.published
	e.files, e.published = nil, nil
	e.mu.Unlock()

	for _, name := range files {
		if err := os.Remove(filepath.Join(e.dir, name)); err != nil && !os.IsNotExist(err) {
			e.log.ErrorWith("rollback: remove file", err, map[string]any{"file": name})
		}
	}

	r, ok := e.pub.(Retractor)
	if !ok {
		return
	}
	for _, name := range published {
		if err := r.Retract(context.Background(), name); err != nil {
			e.log.ErrorWith("rollback: retract published file", err, map[string]any{"file": name})
		}
	}
}

// Files returns the names of the files written so far, sorted.
func (e *FileEmitter) Files() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := append([]string(nil), e.files...)
	sort.Strings(out)
	return out
}

func (e *FileEmitter) claim(key, owner string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.claimed[key]; ok {
		return errs.Newf(errs.ErrKindIdentifierCollision, "%s and %s both generate %s", prev, owner, key)
	}
	e.claimed[key] = owner
	return nil
}

func (e *FileEmitter) write(ctx context.Context, name string, data []byte) {
	e.g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.MkdirAll(e.dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		if err := os.WriteFile(filepath.Join(e.dir, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		e.mu.Lock()
		e.files = append(e.files, name)
		e.mu.Unlock()

		if e.pub != nil {
			if err := e.pub.Publish(ctx, name, data); err != nil {
				return fmt.Errorf("publish %s: %w", name, err)
			}
			e.mu.Lock()
			e.published = append(e.published, name)
			e.mu.Unlock()
		}

		e.log.With().Str("file", name).Int("bytes", len(data)).Logger().Debug("file written")
		return nil
	})
}

func (e *FileEmitter) newFile() *jen.File {
	f := jen.NewFile(e.pkg)
	f.HeaderComment(strings.TrimPrefix(Header, "// "))
	return f
}

func (e *FileEmitter) renderUnit(u *compiler.Unit) ([]byte, error) {
	f := e.newFile()

	for _, t := range u.Ordered() {
		model := naming.GoIdent(t.Schema + "_" + t.Table)
		if err := e.claim(model, t.Route()); err != nil {
			return nil, err
		}

		seen := make(map[string]string, len(t.Columns))
		var fieldErr error
		f.Commentf("%s is the read model of %s.", model, t.Route())
		f.Type().Id(model).StructFunc(func(g *jen.Group) {
			for _, c := range t.Columns {
				id := naming.GoIdent(c.Field)
				if prev, ok := seen[id]; ok {
					fieldErr = errs.Newf(errs.ErrKindIdentifierCollision,
						"fields %q and %q of %s both generate %s.%s", prev, c.Field, t.Route(), model, id)
					return
				}
				seen[id] = c.Field
				g.Id(id).Add(goType(c)).Tag(map[string]string{
					"db":    c.PhysicalName(),
					"json":  c.Field,
					"field": c.Type.String(),
				})
			}
		})
		if fieldErr != nil {
			return nil, fieldErr
		}

		f.Commentf("TableName returns the qualified table behind %s.", model)
		f.Func().Params(jen.Id(model)).Id("TableName").Params().String().Block(
			jen.Return(jen.Lit(t.Route())),
		)
	}

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("render schema %s: %w", u.Schema, err)
	}
	return buf.Bytes(), nil
}

func (e *FileEmitter) renderRoutes(routes []string) ([]byte, error) {
	f := e.newFile()
	f.Comment("Routes lists every generated endpoint route in catalog order.")
	f.Var().Id("Routes").Op("=").Index().String().ValuesFunc(func(g *jen.Group) {
		for _, r := range routes {
			g.Line().Lit(r)
		}
		if len(routes) > 0 {
			g.Line()
		}
	})

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("render routes: %w", err)
	}
	return buf.Bytes(), nil
}

func goType(c compiler.ColumnSpec) jen.Code {
	var base *jen.Statement
	if c.Type.GoPkg != "" {
		base = jen.Qual(c.Type.GoPkg, c.Type.GoType)
	} else {
		base = jen.Id(c.Type.GoType)
	}
	if c.Type.Nullable {
		return jen.Op("*").Add(base)
	}
	return base
}

// Clean removes the generated Go files of an earlier run from dir and
// returns their names. Files without the generated header are kept. A
// missing dir is not an error.
func Clean(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	var removed []string
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".go" {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		generated, err := isGenerated(path)
		if err != nil {
			return removed, err
		}
		if !generated {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", ent.Name(), err)
		}
		removed = append(removed, ent.Name())
	}
	return removed, nil
}

func isGenerated(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	return strings.TrimSpace(line) == Header, nil
}
