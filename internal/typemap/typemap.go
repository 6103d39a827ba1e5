// Package typemap maps information_schema data types to field descriptors.
//
// Every supported catalog type has a FieldTemplate. A template renders to a
// FieldDescriptor once the primary-key flag and the per-column extra
// arguments (precision, underlying column) are known. Catalog types without
// a template are reported as errs.ErrKindUnknownColumnType so the compiler
// can skip the column with a warning.
package typemap

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/koustreak/autorest/internal/errs"
)

// Kind is the generalized family of a field, used to pick filter operators.
type Kind string

const (
	KindText     Kind = "text"
	KindNumeric  Kind = "numeric"
	KindTemporal Kind = "temporal"
	KindBoolean  Kind = "boolean"
	KindUUID     Kind = "uuid"
)

const (
	pkgTime   = "time"
	pkgUUID   = "github.com/google/uuid"
	pkgPGType = "github.com/jackc/pgx/v5/pgtype"
)

// FieldTemplate describes how one catalog type is generated.
type FieldTemplate struct {
	Field  string // descriptor name, e.g. "IntegerField"
	Kind   Kind
	GoPkg  string // import path of GoType, empty for builtins
	GoType string // Go type of a non-null value, e.g. "int32", "Time"
}

// templates is the fixed vocabulary of supported catalog types.
var templates = map[string]FieldTemplate{
	"smallint":                    {"IntegerField", KindNumeric, "", "int16"},
	"integer":                     {"IntegerField", KindNumeric, "", "int32"},
	"bigint":                      {"BigIntegerField", KindNumeric, "", "int64"},
	"boolean":                     {"BooleanField", KindBoolean, "", "bool"},
	"numeric":                     {"DecimalField", KindNumeric, pkgPGType, "Numeric"},
	"double precision":            {"FloatField", KindNumeric, "", "float64"},
	"real":                        {"FloatField", KindNumeric, "", "float32"},
	"date":                        {"DateField", KindTemporal, pkgTime, "Time"},
	"timestamp with time zone":    {"DateTimeField", KindTemporal, pkgTime, "Time"},
	"timestamp without time zone": {"DateTimeField", KindTemporal, pkgTime, "Time"},
	"time with time zone":         {"TimeField", KindTemporal, "", "string"},
	"time without time zone":      {"TimeField", KindTemporal, pkgPGType, "Time"},
	"character":                   {"TextField", KindText, "", "string"},
	"character varying":           {"TextField", KindText, "", "string"},
	"text":                        {"TextField", KindText, "", "string"},
	"uuid":                        {"UUIDField", KindUUID, pkgUUID, "UUID"},
}

// Types returns the supported catalog types in sorted order.
func Types() []string {
	out := make([]string, 0, len(templates))
	for t := range templates {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Arg is one extra descriptor argument, rendered as key=value.
type Arg struct {
	Key   string
	Value string
}

// FieldDescriptor is the resolved field definition of one column.
type FieldDescriptor struct {
	Field      string
	Kind       Kind
	GoPkg      string
	GoType     string
	PrimaryKey bool
	Nullable   bool
	Args       []Arg
}

// String renders the descriptor deterministically, for example
// IntegerField(primary_key=true) or TextField(blank=true, null=true, db_column="class").
func (d FieldDescriptor) String() string {
	parts := make([]string, 0, len(d.Args)+2)
	if d.PrimaryKey {
		parts = append(parts, "primary_key=true")
	}
	if d.Nullable {
		parts = append(parts, "blank=true", "null=true")
	}
	for _, a := range d.Args {
		parts = append(parts, a.Key+"="+a.Value)
	}
	return d.Field + "(" + strings.Join(parts, ", ") + ")"
}

// Arg returns the value of the named extra argument.
func (d FieldDescriptor) Arg(key string) (string, bool) {
	for _, a := range d.Args {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Precision carries the catalog's numeric precision and scale; either may be nil.
type Precision struct {
	Precision *int64
	Scale     *int64
}

// Config holds generation parameters of the mapper.
type Config struct {
	// NumericPrecision and NumericScale apply to numeric columns whose
	// catalog row has no precision or scale.
	NumericPrecision int64 `yaml:"numeric_precision"`
	NumericScale     int64 `yaml:"numeric_scale"`

	// Aliases maps extra catalog types onto supported ones,
	// e.g. {"citext": "text"}.
	Aliases map[string]string `yaml:"aliases"`
}

// DefaultConfig returns precision 50 and scale 0 for unconstrained numerics.
func DefaultConfig() Config {
	return Config{NumericPrecision: 50, NumericScale: 0}
}

// Mapper resolves field descriptors. It is immutable after New.
type Mapper struct {
	cfg Config
}

// New validates cfg and returns a Mapper.
func New(cfg Config) (*Mapper, error) {
	for from, to := range cfg.Aliases {
		if _, ok := templates[to]; !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "type alias %q targets unsupported type %q", from, to)
		}
	}
	return &Mapper{cfg: cfg}, nil
}

// Template returns the template for a catalog type, following aliases.
func (m *Mapper) Template(dataType string) (FieldTemplate, bool) {
	if to, ok := m.cfg.Aliases[dataType]; ok {
		dataType = to
	}
	t, ok := templates[dataType]
	return t, ok
}

// Map resolves the descriptor of a column. Extra arguments passed in are
// appended after the type's own arguments, in order.
func (m *Mapper) Map(dataType string, p Precision, isPrimaryKey bool, extra ...Arg) (FieldDescriptor, error) {
	t, ok := m.Template(dataType)
	if !ok {
		return FieldDescriptor{}, errs.Newf(errs.ErrKindUnknownColumnType, "no field template for data type %q", dataType)
	}

	d := FieldDescriptor{
		Field:      t.Field,
		Kind:       t.Kind,
		GoPkg:      t.GoPkg,
		GoType:     t.GoType,
		PrimaryKey: isPrimaryKey,
		Nullable:   !isPrimaryKey,
	}

	if t.Field == "DecimalField" {
		precision, scale := m.cfg.NumericPrecision, m.cfg.NumericScale
		if p.Precision != nil {
			precision = *p.Precision
		}
		if p.Scale != nil {
			scale = *p.Scale
		}
		d.Args = append(d.Args,
			Arg{"max_digits", strconv.FormatInt(precision, 10)},
			Arg{"decimal_places", strconv.FormatInt(scale, 10)},
		)
	}

	d.Args = append(d.Args, extra...)
	return d, nil
}

// DBColumn is the extra argument naming the underlying column of a
// renamed field.
func DBColumn(name string) Arg {
	return Arg{Key: "db_column", Value: fmt.Sprintf("%q", name)}
}
