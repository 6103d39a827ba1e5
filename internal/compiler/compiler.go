// Package compiler turns the sorted catalog column stream into per-schema
// generation units.
//
// The stream must be ordered by (schema, table, ordinal position) and end
// with exactly one catalog sentinel row. Compilation is a single pass: a
// schema change flushes the in-progress unit to the Emitter, and the
// sentinel forces the final flush without opening a new unit.
package compiler

import (
	"context"

	"github.com/koustreak/autorest/internal/catalog"
	"github.com/koustreak/autorest/internal/errs"
	"github.com/koustreak/autorest/internal/logger"
	"github.com/koustreak/autorest/internal/naming"
	"github.com/koustreak/autorest/internal/typemap"
)

// Compiler is stateless between runs and may be reused.
type Compiler struct {
	names *naming.Sanitizer
	types *typemap.Mapper
	log   *logger.Logger
}

// New creates a Compiler. A nil log discards output.
func New(names *naming.Sanitizer, types *typemap.Mapper, log *logger.Logger) *Compiler {
	if log == nil {
		log = logger.Nop()
	}
	return &Compiler{names: names, types: types, log: log}
}

type state int

const (
	noGroup state = iota
	inGroup
	done
)

// run holds the mutable state of one Compile call.
type run struct {
	c    *Compiler
	emit Emitter

	state   state
	unit    *Unit
	table   *TableSpec          // open table, registered on close if it has columns
	seen    map[string]struct{} // tables of the current unit, skipped ones included
	fields  map[string]string   // generated name -> catalog name, current table
	pkTaken bool

	flushed map[string]struct{} // schemas already emitted
	result  Result
}

// Compile consumes rows and hands every completed unit to emit. Unknown
// column types are skipped and reported in Result.Warnings, as are tables
// left without any column and schemata left without any table; identifier
// collisions, unsorted input and emitter failures abort the run.
func (c *Compiler) Compile(ctx context.Context, rows []catalog.ColumnRow, emit Emitter) (*Result, error) {
	r := &run{
		c:       c,
		emit:    emit,
		flushed: make(map[string]struct{}),
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.ErrKindTimeout, "compilation cancelled", err)
		}
		if err := r.step(ctx, row); err != nil {
			return nil, err
		}
	}

	if r.state != done {
		return nil, errs.New(errs.ErrKindInvalidInput, "catalog stream is not terminated by the sentinel row")
	}

	if err := emit.EmitRoutes(ctx, r.result.Routes); err != nil {
		return nil, emitError("emit routes", err)
	}
	return &r.result, nil
}

func (r *run) step(ctx context.Context, row catalog.ColumnRow) error {
	if r.state == done {
		return errs.New(errs.ErrKindInvalidInput, "catalog row after the sentinel row")
	}

	if r.state == noGroup || row.Schema != r.unit.Schema {
		if r.state == inGroup {
			if err := r.flush(ctx); err != nil {
				return err
			}
		}
		if row.IsSentinel() {
			r.state = done
			return nil
		}
		if _, seen := r.flushed[row.Schema]; seen {
			return errs.Newf(errs.ErrKindInvalidInput, "catalog rows are not sorted: schema %q seen again", row.Schema)
		}
		r.unit = newUnit(row.Schema)
		r.table = nil
		r.seen = make(map[string]struct{})
		r.state = inGroup
	}

	if r.table == nil || row.Table != r.table.Table {
		r.closeTable()
		if _, seen := r.seen[row.Table]; seen {
			return errs.Newf(errs.ErrKindInvalidInput, "catalog rows are not sorted: table %s seen again", catalog.Qualified(row.Schema, row.Table))
		}
		r.openTable(row)
	}

	return r.addColumn(row)
}

func (r *run) openTable(row catalog.ColumnRow) {
	r.table = &TableSpec{Schema: row.Schema, Table: row.Table}
	r.seen[row.Table] = struct{}{}
	r.fields = make(map[string]string)
	r.pkTaken = false

	r.c.log.With().Str("schema", row.Schema).Str("table", row.Table).Logger().Debug("compiling table")
}

// closeTable registers the open table. A table whose columns were all
// skipped has no primary key and gets no route.
func (r *run) closeTable() {
	t := r.table
	if t == nil {
		return
	}
	r.table = nil

	if len(t.Columns) == 0 {
		r.result.Warnings = append(r.result.Warnings, Warning{
			Schema: t.Schema,
			Table:  t.Table,
			Err: errs.Newf(errs.ErrKindUnknownColumnType,
				"table %s has no column with a known data type", t.Route()),
		})
		r.c.log.WarnWith("skipping table without mapped columns", map[string]any{
			"schema": t.Schema,
			"table":  t.Table,
		})
		return
	}

	r.unit.Tables[t.Table] = t
	r.unit.TableOrder = append(r.unit.TableOrder, t.Table)
	r.unit.Routes = append(r.unit.Routes, t.Route())
	r.result.Routes = append(r.result.Routes, t.Route())
	r.result.Tables++
}

func (r *run) addColumn(row catalog.ColumnRow) error {
	name := r.c.names.Sanitize(row.Column)

	var extra []typemap.Arg
	if name.Renamed {
		extra = append(extra, typemap.DBColumn(name.Column))
	}

	desc, err := r.c.types.Map(row.DataType, typemap.Precision{
		Precision: row.NumericPrecision,
		Scale:     row.NumericScale,
	}, !r.pkTaken, extra...)
	if err != nil {
		if !errs.IsUnknownColumnType(err) {
			return err
		}
		r.result.Warnings = append(r.result.Warnings, Warning{
			Schema:   row.Schema,
			Table:    row.Table,
			Column:   row.Column,
			DataType: row.DataType,
			Err:      err,
		})
		r.c.log.WarnWith("skipping column with unknown data type", map[string]any{
			"schema":    row.Schema,
			"table":     row.Table,
			"column":    row.Column,
			"data_type": row.DataType,
		})
		return nil
	}

	if prev, taken := r.fields[name.Name]; taken {
		return errs.Newf(errs.ErrKindIdentifierCollision,
			"columns %q and %q of %s both generate field %q",
			prev, row.Column, catalog.Qualified(row.Schema, row.Table), name.Name)
	}
	r.fields[name.Name] = row.Column

	r.table.Columns = append(r.table.Columns, ColumnSpec{
		Name:     row.Column,
		Field:    name.Name,
		Renamed:  name.Renamed,
		Column:   name.Column,
		Type:     desc,
		Position: row.OrdinalPosition,
	})
	r.pkTaken = true
	return nil
}

func (r *run) flush(ctx context.Context) error {
	r.closeTable()
	u := r.unit
	r.flushed[u.Schema] = struct{}{}
	r.unit, r.seen = nil, nil

	if len(u.TableOrder) == 0 {
		r.c.log.Debugf("schema %s has no table to generate", u.Schema)
		return nil
	}
	r.result.Units++

	r.c.log.With().Str("schema", u.Schema).Int("tables", len(u.TableOrder)).Logger().Info("schema compiled")

	if err := r.emit.Emit(ctx, u); err != nil {
		return emitError("emit schema "+u.Schema, err)
	}
	return nil
}

// emitError keeps the kind of emitter errors that already carry one.
func emitError(msg string, err error) error {
	if errs.KindOf(err) != errs.ErrKindUnknown {
		return err
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
