package model

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// TypeKind is the storage representation of a statically typed value.
// Layout records and boxing decisions are derived from it alone.
type TypeKind string

const (
	KindNothing       TypeKind = "nothing"
	KindPlain         TypeKind = "plain"
	KindReference     TypeKind = "reference"
	KindOptional      TypeKind = "optional"
	KindBoxed         TypeKind = "boxed"
	KindValue         TypeKind = "value"
	KindOptionalValue TypeKind = "optional-value"
)

// BoxSlots is the number of slots a boxed value occupies: a tag followed by
// the payload. Value types that do not fit the payload, or that hold
// references, cannot be boxed.
const BoxSlots = 4

// TypeRef is the static representation of a field, variable or return value.
// Name is the class for references, the value type for value kinds, and the
// primitive ("integer", "double", "boolean", "symbol") for plain values.
type TypeRef struct {
	Kind TypeKind `yaml:"kind" cbor:"kind"`
	Name string   `yaml:"name,omitempty" cbor:"name,omitempty"`
}

// Convenience constructors used by fixtures and synthesized callables.
func Nothing() TypeRef { return TypeRef{Kind: KindNothing} }
func Plain(name string) TypeRef { return TypeRef{Kind: KindPlain, Name: name} }
func Ref(class string) TypeRef { return TypeRef{Kind: KindReference, Name: class} }
func Optional(class string) TypeRef { return TypeRef{Kind: KindOptional, Name: class} }
func Boxed() TypeRef { return TypeRef{Kind: KindBoxed} }
func Value(vt string) TypeRef { return TypeRef{Kind: KindValue, Name: vt} }
func OptionalValue(vt string) TypeRef { return TypeRef{Kind: KindOptionalValue, Name: vt} }

// IsZero reports whether the reference was left empty. An empty TypeRef
// means nothing.
func (t TypeRef) IsZero() bool {
	return t.Kind == "" && t.Name == ""
}

// Normalized maps the zero TypeRef to nothing.
func (t TypeRef) Normalized() TypeRef {
	if t.Kind == "" {
		t.Kind = KindNothing
	}
	return t
}

// Valid reports whether the kind is one of the known representations.
func (t TypeRef) Valid() bool {
	switch t.Normalized().Kind {
	case KindNothing, KindPlain, KindReference, KindOptional, KindBoxed:
		return true
	case KindValue, KindOptionalValue:
		return t.Name != ""
	}
	return false
}

// IsValueKind reports whether storage is an inline copy of a value type.
func (t TypeRef) IsValueKind() bool {
	return t.Kind == KindValue || t.Kind == KindOptionalValue
}

// SameRepresentation reports whether two types share a calling convention.
// Reference types are interchangeable regardless of class.
func (t TypeRef) SameRepresentation(o TypeRef) bool {
	t, o = t.Normalized(), o.Normalized()
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindValue, KindOptionalValue, KindPlain:
		return t.Name == o.Name
	}
	return true
}

func (t TypeRef) String() string {
	t = t.Normalized()
	if t.Name == "" {
		return string(t.Kind)
	}
	return string(t.Kind) + " " + t.Name
}

// ParseTypeRef parses the compact "kind [name]" notation.
func ParseTypeRef(s string) (TypeRef, error) {
	fields := strings.Fields(s)
	var t TypeRef
	switch len(fields) {
	case 0:
		return Nothing(), nil
	case 1:
		t = TypeRef{Kind: TypeKind(fields[0])}
	case 2:
		t = TypeRef{Kind: TypeKind(fields[0]), Name: fields[1]}
	default:
		return TypeRef{}, fmt.Errorf("malformed type %q", s)
	}
	if !t.Valid() {
		return TypeRef{}, fmt.Errorf("unknown type %q", s)
	}
	return t, nil
}

// UnmarshalYAML accepts either the compact scalar notation or a mapping.
func (t *TypeRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseTypeRef(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*t = parsed
		return nil
	}
	type plain TypeRef
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = TypeRef(p)
	return nil
}

// ---------------------------------------------------------------------------
// Box tags
// ---------------------------------------------------------------------------

// Box tags identify the payload of a boxed value. Value types receive box
// identifiers starting at FirstBoxID during finalization.
const (
	TagNothing uint16 = iota
	TagObject
	TagInteger
	TagDouble
	TagBoolean
	TagSymbol
	TagOptionalObject

	FirstBoxID uint16 = 16
)

var plainTags = map[string]uint16{
	"integer": TagInteger,
	"double":  TagDouble,
	"boolean": TagBoolean,
	"symbol":  TagSymbol,
}

// PlainTag returns the box tag of a primitive, or false if it is unknown.
func PlainTag(name string) (uint16, bool) {
	tag, ok := plainTags[name]
	return tag, ok
}
