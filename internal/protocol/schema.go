package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Schema is the ordered list of fields a deployment puts on the wire. Both ends must
// agree on it; there is no version tag in the frames.
type Schema struct {
	Name   string
	Fields []Field
}

var (
	// SchemaV8 carries neither palette index nor the socket streaming toggle.
	SchemaV8 = Schema{Name: "v8", Fields: fieldPrefix(8)}
	// SchemaV9 adds the palette index.
	SchemaV9 = Schema{Name: "v9", Fields: fieldPrefix(9)}
	// SchemaV10 adds the socket streaming toggle.
	SchemaV10 = Schema{Name: "v10", Fields: fieldPrefix(10)}
)

// fieldPrefix copies the first n canonical fields so no schema aliases the record layout.
func fieldPrefix(n int) []Field {
	out := make([]Field, n)
	copy(out, canonicalFields[:n])
	return out
}

// ErrEmptySchema is returned for a schema without fields.
var ErrEmptySchema = errors.New("schema has no fields")

// LookupSchema returns a built-in schema by name.
func LookupSchema(name string) (Schema, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "v8":
		return SchemaV8, nil
	case "v9":
		return SchemaV9, nil
	case "v10", "":
		return SchemaV10, nil
	}
	return Schema{}, fmt.Errorf("unknown schema %q", name)
}

// NewSchema builds a custom schema from field names.
func NewSchema(name string, fieldNames []string) (Schema, error) {
	s := Schema{Name: name, Fields: make([]Field, 0, len(fieldNames))}
	for _, n := range fieldNames {
		f, err := ParseField(n)
		if err != nil {
			return Schema{}, err
		}
		s.Fields = append(s.Fields, f)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// Validate checks that the schema is non-empty, names only known fields, and has no
// duplicates.
func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return ErrEmptySchema
	}
	seen := make(map[Field]bool, len(s.Fields))
	for _, f := range s.Fields {
		if fieldIndex(f) < 0 {
			return fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
		if seen[f] {
			return fmt.Errorf("schema %s: duplicate field %s", s.Name, f)
		}
		seen[f] = true
	}
	return nil
}

// Len is the number of positions per frame.
func (s Schema) Len() int {
	return len(s.Fields)
}

// Has reports whether f is carried by this schema.
func (s Schema) Has(f Field) bool {
	for _, c := range s.Fields {
		if c == f {
			return true
		}
	}
	return false
}

func (s Schema) String() string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("%s[%s]", s.Name, strings.Join(names, ","))
}
