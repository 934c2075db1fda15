package validator

import (
	"reflect"
	"strconv"
)

type undefined struct{}

// Undefined stands for an absent value, as opposed to an explicit null (nil)
var Undefined any = undefined{}

// Validate reports whether value conforms to schema. It never panics; a nil
// schema never validates.
func Validate(value any, schema Schema) bool {
	switch s := schema.(type) {
	case Object:
		return validateObject(value, s)
	case *Object:
		if s == nil {
			return false
		}
		return validateObject(value, *s)
	case Primitive:
		return validatePrimitive(value, s)
	case *Primitive:
		if s == nil {
			return false
		}
		return validatePrimitive(value, *s)
	default:
		return false
	}
}

// ValidateLiteral parses literal with the given marker and validates value
// against it. An unparseable literal never validates.
func ValidateLiteral(value any, literal any, marker string) bool {
	schema, err := Parse(literal, marker)
	if err != nil {
		return false
	}
	return Validate(value, schema)
}

func validateObject(value any, s Object) bool {
	if value == Undefined {
		return s.Optional
	}
	if isNull(value) {
		return false
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}

	var get func(name string) any
	switch {
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		get = func(name string) any { return lookup(rv, name) }
	case rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array:
		// Sequences are objects too: their fields are length and the indices
		get = func(name string) any { return index(rv, name) }
	default:
		return false
	}

	for name, field := range s.Fields {
		if !Validate(get(name), field) {
			return false
		}
	}
	return true
}

func validatePrimitive(value any, s Primitive) bool {
	if s.Optional && (value == Undefined || isNull(value)) {
		return true
	}
	if s.Kind == KindNull {
		return isNull(value)
	}
	if value == Undefined || isNull(value) {
		return false
	}
	return kindOf(value) == s.Kind
}

// lookup returns the entry for key or Undefined when it is missing
func lookup(m reflect.Value, key string) any {
	v := m.MapIndex(reflect.ValueOf(key).Convert(m.Type().Key()))
	if !v.IsValid() {
		return Undefined
	}
	if v.Kind() == reflect.Interface && v.IsNil() {
		return nil
	}
	return v.Interface()
}

// index returns the sequence field named key: its length or the element at a
// decimal index. Anything else is Undefined.
func index(seq reflect.Value, key string) any {
	if key == "length" {
		return seq.Len()
	}
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= seq.Len() || strconv.Itoa(i) != key {
		return Undefined
	}
	v := seq.Index(i)
	if v.Kind() == reflect.Interface && v.IsNil() {
		return nil
	}
	return v.Interface()
}

func isNull(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func kindOf(value any) Kind {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Bool:
		return KindBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	case reflect.String:
		return KindString
	case reflect.Slice, reflect.Array:
		return KindArray
	case reflect.Func:
		return KindFunction
	}
	return ""
}

// Field returns doc[key] when doc is a document holding key, and Undefined
// otherwise
func Field(doc any, key string) any {
	m, ok := doc.(map[string]any)
	if !ok {
		return Undefined
	}
	v, ok := m[key]
	if !ok {
		return Undefined
	}
	return v
}

// Defined maps Undefined to nil so a value can be serialized
func Defined(v any) any {
	if v == Undefined {
		return nil
	}
	return v
}
