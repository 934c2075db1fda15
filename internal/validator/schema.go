// Package validator type-checks generic request payloads against small
// structural schemas.
package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultOptionalKey is the reserved field that marks an object schema optional
const DefaultOptionalKey = "__optional"

// ErrInvalidSchema is returned when a schema literal cannot be parsed
var ErrInvalidSchema = errors.New("invalid schema")

// Kind is the runtime kind a primitive schema accepts
type Kind string

const (
	KindNumber   Kind = "number"
	KindString   Kind = "string"
	KindBoolean  Kind = "boolean"
	KindNull     Kind = "null"
	KindFunction Kind = "function"
	KindArray    Kind = "array"
)

func (k Kind) valid() bool {
	switch k {
	case KindNumber, KindString, KindBoolean, KindNull, KindFunction, KindArray:
		return true
	}
	return false
}

// Schema is either a Primitive or an Object
type Schema interface {
	isSchema()
	fmt.Stringer
}

// Primitive accepts values of a single kind
type Primitive struct {
	Kind     Kind
	Optional bool // absent and null values also pass
}

func (Primitive) isSchema() {}

func (p Primitive) String() string {
	if p.Optional {
		return string(p.Kind) + "?"
	}
	return string(p.Kind)
}

// Object accepts documents whose declared fields each match their schema.
// Undeclared fields are ignored.
type Object struct {
	Fields   map[string]Schema
	Optional bool // the whole object may be absent
}

func (Object) isSchema() {}

func (o Object) String() string {
	keys := make([]string, 0, len(o.Fields))
	for k := range o.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, o.Fields[k]))
	}
	if o.Optional {
		parts = append(parts, "optional")
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Required returns a non-optional primitive schema
func Required(kind Kind) Primitive {
	return Primitive{Kind: kind}
}

// Optional returns an optional primitive schema
func Optional(kind Kind) Primitive {
	return Primitive{Kind: kind, Optional: true}
}

// Parse builds a Schema from its literal form: a kind name optionally
// suffixed with "?", or a map of field names to nested literals. In a map,
// the marker field set to true makes that object optional. An empty marker
// means DefaultOptionalKey.
func Parse(literal any, marker string) (Schema, error) {
	if marker == "" {
		marker = DefaultOptionalKey
	}

	switch lit := literal.(type) {
	case string:
		name := strings.TrimSpace(lit)
		optional := strings.Contains(name, "?")
		kind := Kind(strings.ReplaceAll(name, "?", ""))
		if !kind.valid() {
			return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSchema, lit)
		}
		return Primitive{Kind: kind, Optional: optional}, nil

	case map[string]any:
		obj := Object{Fields: make(map[string]Schema, len(lit))}
		for k, v := range lit {
			if k == marker {
				flag, _ := v.(bool)
				obj.Optional = flag
				continue
			}
			field, err := Parse(v, marker)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			obj.Fields[k] = field
		}
		return obj, nil

	case Schema:
		return lit, nil

	default:
		return nil, fmt.Errorf("%w: unsupported literal %T", ErrInvalidSchema, literal)
	}
}

// MustParse is like Parse with the default marker but panics on error.
// It is intended for package-level schema variables.
func MustParse(literal any) Schema {
	s, err := Parse(literal, DefaultOptionalKey)
	if err != nil {
		panic(err)
	}
	return s
}
