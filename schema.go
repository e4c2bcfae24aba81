package dynamodel

import (
	"fmt"
	"maps"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Schema is the ordered set of attributes an item type declares. It is built once
// and shared by every item and table of that type.
type Schema struct {
	name   string
	attrs  []*Attribute
	byName map[string]*Attribute
}

// NewSchema builds a schema from attribute descriptors. Attribute names must be
// unique.
func NewSchema(name string, attrs ...*Attribute) (*Schema, error) {
	s := &Schema{
		name:   name,
		attrs:  make([]*Attribute, 0, len(attrs)),
		byName: make(map[string]*Attribute, len(attrs)),
	}
	for _, a := range attrs {
		if a == nil {
			return nil, fmt.Errorf("%w: schema %q has a nil attribute", ErrAttribute, name)
		}
		if _, exists := s.byName[a.name]; exists {
			return nil, fmt.Errorf("%w: schema %q declares attribute %q twice", ErrAttribute, name, a.name)
		}
		s.attrs = append(s.attrs, a)
		s.byName[a.name] = a
	}
	return s, nil
}

// SchemaFor derives a schema from the exported fields of struct type T. Attribute
// names come from the dynamodbav tag, falling back to the field name; fields tagged
// "-" are skipped. Options apply to every attribute.
func SchemaFor[T any](opts ...func(*AttributeOptions)) (*Schema, error) {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrUnsupportedType, t)
	}

	var attrs []*Attribute
	for _, f := range reflect.VisibleFields(t) {
		name, ok := fieldName(f)
		if !ok {
			continue
		}
		a, err := AttributeOf(name, f.Type, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to derive schema for %s: %w", t, err)
		}
		attrs = append(attrs, a)
	}
	return NewSchema(t.Name(), attrs...)
}

// MustSchema panics if err is non-nil. It is meant for package-level schema
// variables.
func MustSchema(s *Schema, err error) *Schema {
	if err != nil {
		panic(err)
	}
	return s
}

// fieldName resolves the attribute name of a struct field.
func fieldName(f reflect.StructField) (string, bool) {
	if !f.IsExported() || f.Anonymous {
		return "", false
	}
	tag := f.Tag.Get("dynamodbav")
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return f.Name, true
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Attributes returns the attributes in declaration order.
func (s *Schema) Attributes() []*Attribute {
	return append([]*Attribute(nil), s.attrs...)
}

// Names returns the attribute names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.attrs))
	for i, a := range s.attrs {
		names[i] = a.name
	}
	return names
}

// Has reports whether the schema declares name.
func (s *Schema) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Attr returns the descriptor for name. It never returns nil: conditions built on an
// undeclared name fail when they are rendered.
func (s *Schema) Attr(name string) *Attribute {
	if a, ok := s.byName[name]; ok {
		return a
	}
	return unknownAttribute(name, newError(ErrAttribute, "", "schema %q has no attribute %q", s.name, name))
}

func (s *Schema) lookup(name string) (*Attribute, error) {
	if a, ok := s.byName[name]; ok {
		return a, nil
	}
	return nil, newError(ErrAttribute, "", "schema %q has no attribute %q", s.name, name)
}

// NewItem builds a NEW item from a struct or a map[string]any. Attributes the value
// does not provide take their default, if any. Nil fields and nil map entries are
// left unset.
func (s *Schema) NewItem(v any) (*Item, error) {
	item := newItem(s, StateNew)

	values, err := s.valuesOf(v)
	if err != nil {
		return nil, err
	}
	for name, value := range values {
		a, err := s.lookup(name)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}
		rv, err := a.convert(value)
		if err != nil {
			return nil, err
		}
		item.values[name] = rv.Interface()
	}

	for _, a := range s.attrs {
		if _, ok := item.values[a.name]; ok {
			continue
		}
		if def, ok := a.Default(); ok {
			item.values[a.name] = def
		}
	}
	return item, nil
}

// valuesOf flattens a struct or map into attribute values.
func (s *Schema) valuesOf(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: cannot build %s item from %T", ErrUnsupportedType, s.name, v)
	}

	values := make(map[string]any)
	for _, f := range reflect.VisibleFields(rv.Type()) {
		name, ok := fieldName(f)
		if !ok {
			continue
		}
		fv := rv.FieldByIndex(f.Index)
		switch fv.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice:
			if fv.IsNil() {
				continue
			}
		}
		values[name] = fv.Interface()
	}
	return values, nil
}

// Hydrate builds a CLEAN item from a stored row. Wire attributes the schema does not
// declare are ignored.
func (s *Schema) Hydrate(row map[string]types.AttributeValue) (*Item, error) {
	item := newItem(s, StateClean)
	for _, a := range s.attrs {
		av, ok := row[a.name]
		if !ok {
			continue
		}
		v, err := a.Hydrate(av)
		if err != nil {
			return nil, err
		}
		item.values[a.name] = v
	}
	item.persisted = maps.Clone(item.values)
	return item, nil
}
