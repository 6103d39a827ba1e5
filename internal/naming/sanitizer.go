// Package naming turns catalog identifiers into generated field names.
//
// A column whose name is reserved (a Go keyword, a keyword of the Python
// model layer earlier generations targeted, or a query parameter the read
// API claims for itself) is renamed by appending a suffix; the
// original name is kept as the underlying column so generated code and
// runtime queries can still address it.
package naming

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
)

// goKeywords are the reserved words of the generation target.
var goKeywords = []string{
	"break", "case", "chan", "const", "continue", "default", "defer",
	"else", "fallthrough", "for", "func", "go", "goto", "if", "import",
	"interface", "map", "package", "range", "return", "select", "struct",
	"switch", "type", "var",
}

// pyKeywords are the keywords of the model layer earlier generations wrote.
// Keeping them reserved keeps field names stable across both outputs.
var pyKeywords = []string{
	"False", "None", "True", "and", "as", "assert", "async", "await",
	"break", "class", "continue", "def", "del", "elif", "else", "except",
	"finally", "for", "from", "global", "if", "import", "in", "is",
	"lambda", "nonlocal", "not", "or", "pass", "raise", "return", "try",
	"while", "with", "yield",
}

// apiReserved are query parameter names owned by the read API.
var apiReserved = []string{"format", "limit", "offset", "ordering", "search", "filters"}

// Config controls renaming.
type Config struct {
	// Suffix is appended to reserved identifiers. Default "var".
	Suffix string `yaml:"suffix"`

	// ExtraReserved extends the base reserved vocabulary.
	ExtraReserved []string `yaml:"extra_reserved"`

	// RenameTrailingUnderscore also renames identifiers ending in "_",
	// as earlier generations of the tool did.
	RenameTrailingUnderscore bool `yaml:"rename_trailing_underscore"`
}

// DefaultConfig returns the suffix "var" and no extra words.
func DefaultConfig() Config {
	return Config{Suffix: "var"}
}

// Result is the outcome of sanitizing one identifier.
type Result struct {
	Name    string // generated field name
	Renamed bool
	Column  string // underlying column, set iff Renamed
}

// Sanitizer maps raw identifiers to generated names. It holds no mutable
// state after construction and is safe for concurrent use.
type Sanitizer struct {
	reserved         map[string]struct{}
	suffix           string
	renameUnderscore bool
}

// New builds a Sanitizer from cfg.
func New(cfg Config) *Sanitizer {
	suffix := cfg.Suffix
	if suffix == "" {
		suffix = "var"
	}

	reserved := make(map[string]struct{}, len(goKeywords)+len(pyKeywords)+len(apiReserved)+len(cfg.ExtraReserved))
	for _, words := range [][]string{goKeywords, pyKeywords, apiReserved, cfg.ExtraReserved} {
		for _, w := range words {
			reserved[w] = struct{}{}
		}
	}

	return &Sanitizer{
		reserved:         reserved,
		suffix:           suffix,
		renameUnderscore: cfg.RenameTrailingUnderscore,
	}
}

// IsReserved reports whether name is in the reserved vocabulary.
func (s *Sanitizer) IsReserved(name string) bool {
	_, ok := s.reserved[name]
	return ok
}

// Sanitize returns the generated name for a catalog identifier.
// "class" becomes "class_var"; "from_" (with the trailing-underscore
// toggle on) becomes "from_var".
func (s *Sanitizer) Sanitize(name string) Result {
	trailing := strings.HasSuffix(name, "_")
	if !s.IsReserved(name) && !(s.renameUnderscore && trailing) {
		return Result{Name: name}
	}

	sep := "_"
	if trailing {
		sep = ""
	}
	return Result{Name: name + sep + s.suffix, Renamed: true, Column: name}
}

// Name is Sanitize(name).Name.
func (s *Sanitizer) Name(name string) string {
	return s.Sanitize(name).Name
}

var nonAlnum = regexp.MustCompile(`[^0-9a-zA-Z]+`)

// SchemaIdent replaces every run of non-alphanumeric characters with "_",
// the form schema names take when given on the command line.
func SchemaIdent(s string) string {
	return nonAlnum.ReplaceAllString(s, "_")
}

// GoIdent returns an exported Go identifier for a generated name:
// "class_var" → "ClassVar", "2fa" → "F2fa".
func GoIdent(name string) string {
	id := inflect.Camelize(SchemaIdent(name))
	id = strings.ReplaceAll(id, "_", "")
	if id == "" {
		return "Field"
	}
	r := rune(id[0])
	if unicode.IsDigit(r) {
		return "F" + id
	}
	if unicode.IsLower(r) {
		return strings.ToUpper(id[:1]) + id[1:]
	}
	return id
}
