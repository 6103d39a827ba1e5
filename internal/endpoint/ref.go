package endpoint

import (
	"strings"

	"github.com/koustreak/autorest/internal/compiler"
	"github.com/koustreak/autorest/internal/errs"
)

// Ref identifies one endpoint: database, generation namespace, schema and
// table. Its string form is "db.namespace.schema.table".
type Ref struct {
	Database  string
	Namespace string
	Schema    string
	Table     string
}

// ParseRef parses "db.namespace.schema.table". The table part keeps any
// further dots.
func ParseRef(s string) (Ref, error) {
	parts := strings.SplitN(s, ".", 4)
	if len(parts) != 4 {
		return Ref{}, errs.Newf(errs.ErrKindInvalidInput, "endpoint reference %q is not db.namespace.schema.table", s)
	}
	for _, p := range parts {
		if p == "" {
			return Ref{}, errs.Newf(errs.ErrKindInvalidInput, "endpoint reference %q has an empty part", s)
		}
	}
	return Ref{Database: parts[0], Namespace: parts[1], Schema: parts[2], Table: parts[3]}, nil
}

func (r Ref) String() string {
	return r.Database + "." + r.Namespace + "." + r.Schema + "." + r.Table
}

// Route returns the "schema.table" route of the endpoint.
func (r Ref) Route() string {
	return compiler.Route(r.Schema, r.Table)
}
