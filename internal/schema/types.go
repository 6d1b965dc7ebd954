package schema

import (
	"fmt"
	"strings"
)

// Kind identifies a column type family
type Kind string

const (
	KindInteger  Kind = "integer"
	KindString   Kind = "string"
	KindText     Kind = "text"
	KindBoolean  Kind = "boolean"
	KindDateTime Kind = "datetime"
	KindEnum     Kind = "enum"
	KindArray    Kind = "array"
)

// Type is a dialect-independent column type
type Type struct {
	Kind     Kind     `yaml:"kind" json:"kind"`
	Length   int      `yaml:"length,omitempty" json:"length,omitempty"`
	Timezone bool     `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	EnumName string   `yaml:"enum_name,omitempty" json:"enum_name,omitempty"`
	Values   []string `yaml:"values,omitempty" json:"values,omitempty"`
	Elem     *Type    `yaml:"elem,omitempty" json:"elem,omitempty"`
}

// Integer returns an integer type
func Integer() Type { return Type{Kind: KindInteger} }

// String returns a VARCHAR type; a length of 0 means unbounded
func String(length int) Type { return Type{Kind: KindString, Length: length} }

// Text returns an unbounded text type
func Text() Type { return Type{Kind: KindText} }

// Boolean returns a boolean type
func Boolean() Type { return Type{Kind: KindBoolean} }

// DateTime returns a timestamp type, optionally timezone-aware
func DateTime(timezone bool) Type { return Type{Kind: KindDateTime, Timezone: timezone} }

// Enum returns an enumerated string type. Values are stored by name.
func Enum(name string, values ...string) Type {
	return Type{Kind: KindEnum, EnumName: name, Values: append([]string(nil), values...)}
}

// Array returns an array of elem
func Array(elem Type) Type {
	return Type{Kind: KindArray, Elem: &elem}
}

// EnumLength returns the VARCHAR length needed to hold any enum value
func (t Type) EnumLength() int {
	n := 0
	for _, v := range t.Values {
		if len(v) > n {
			n = len(v)
		}
	}
	return n
}

// Validate checks the type is well formed
func (t Type) Validate() error {
	switch t.Kind {
	case KindInteger, KindText, KindBoolean, KindDateTime:
		return nil
	case KindString:
		if t.Length < 0 {
			return fmt.Errorf("string length must not be negative: %d", t.Length)
		}
		return nil
	case KindEnum:
		if t.EnumName == "" {
			return fmt.Errorf("enum type requires a name")
		}
		if len(t.Values) == 0 {
			return fmt.Errorf("enum %s has no values", t.EnumName)
		}
		return nil
	case KindArray:
		if t.Elem == nil {
			return fmt.Errorf("array type requires an element type")
		}
		if t.Elem.Kind == KindArray {
			return fmt.Errorf("nested arrays are not supported")
		}
		return t.Elem.Validate()
	default:
		return fmt.Errorf("unknown column type kind: %q", t.Kind)
	}
}

// String renders the type for logs and diffs
func (t Type) String() string {
	switch t.Kind {
	case KindString:
		if t.Length > 0 {
			return fmt.Sprintf("String(%d)", t.Length)
		}
		return "String"
	case KindDateTime:
		if t.Timezone {
			return "DateTime(timezone=true)"
		}
		return "DateTime"
	case KindEnum:
		return fmt.Sprintf("Enum(%s: %s)", t.EnumName, strings.Join(t.Values, ", "))
	case KindArray:
		if t.Elem == nil {
			return "Array"
		}
		return fmt.Sprintf("Array(%s)", t.Elem.String())
	default:
		if t.Kind == "" {
			return "Unknown"
		}
		return strings.ToUpper(string(t.Kind[:1])) + string(t.Kind[1:])
	}
}
