package dynamodel

import (
	"fmt"
	"maps"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ItemState is the persistence state of an item.
type ItemState int

const (
	// StateNew marks an item built by the caller and never persisted.
	StateNew ItemState = iota
	// StateClean marks an item that matched the store when it was last read or written.
	// A clean item with pending changes is dirty.
	StateClean
)

func (s ItemState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateClean:
		return "CLEAN"
	}
	return fmt.Sprintf("ItemState(%d)", int(s))
}

// ChangeKind classifies a pending write.
type ChangeKind int

const (
	// ChangeSet assigns an attribute that had no value.
	ChangeSet ChangeKind = iota
	// ChangeValue overwrites a stored value.
	ChangeValue
	// ChangeUnset removes the attribute.
	ChangeUnset
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSet:
		return "SET"
	case ChangeValue:
		return "CHANGE"
	case ChangeUnset:
		return "UNSET"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// Change is a pending write to one attribute.
type Change struct {
	Attribute string
	Value     any // nil for ChangeUnset
	Kind      ChangeKind
}

// Item holds the attribute values of one row together with the writes made since it
// was last persisted. An Item is not safe for concurrent mutation.
type Item struct {
	schema    *Schema
	values    map[string]any
	persisted map[string]any // values as of the last read or write
	state     ItemState
	changes   []Change
}

func newItem(s *Schema, state ItemState) *Item {
	return &Item{schema: s, values: make(map[string]any), state: state}
}

// Schema returns the schema the item was built from.
func (i *Item) Schema() *Schema { return i.schema }

// State returns the persistence state.
func (i *Item) State() ItemState { return i.state }

// IsNew reports whether the item has never been persisted.
func (i *Item) IsNew() bool { return i.state == StateNew }

// IsDirty reports whether the item has pending changes.
func (i *Item) IsDirty() bool { return len(i.changes) > 0 }

// Changes returns the pending changes in the order their attributes were first
// written.
func (i *Item) Changes() []Change {
	return append([]Change(nil), i.changes...)
}

// Get returns the value of name and whether it is set.
func (i *Item) Get(name string) (any, bool) {
	v, ok := i.values[name]
	return v, ok
}

// Values returns a copy of the set attribute values.
func (i *Item) Values() map[string]any {
	return maps.Clone(i.values)
}

// Set assigns v to name, converting it to the attribute's declared type. A nil v,
// including a nil pointer, map or slice, unsets the attribute. The write replaces
// any pending change to the same attribute.
func (i *Item) Set(name string, v any) error {
	if isNil(reflect.ValueOf(v)) {
		return i.Unset(name)
	}
	a, err := i.schema.lookup(name)
	if err != nil {
		return err
	}
	rv, err := a.convert(v)
	if err != nil {
		return err
	}
	if isNil(rv) {
		return i.Unset(name)
	}

	kind := ChangeValue
	if _, exists := i.values[name]; i.state == StateNew || !exists {
		kind = ChangeSet
	}
	i.values[name] = rv.Interface()
	i.record(Change{Attribute: name, Value: i.values[name], Kind: kind})
	return nil
}

// Unset removes name from the item. The removal replaces any pending change to the
// same attribute.
func (i *Item) Unset(name string) error {
	if _, err := i.schema.lookup(name); err != nil {
		return err
	}
	delete(i.values, name)
	i.record(Change{Attribute: name, Kind: ChangeUnset})
	return nil
}

// record keeps a single live change per attribute.
func (i *Item) record(c Change) {
	for n := range i.changes {
		if i.changes[n].Attribute == c.Attribute {
			i.changes[n] = c
			return
		}
	}
	i.changes = append(i.changes, c)
}

// commit marks the item as persisted.
func (i *Item) commit() {
	i.state = StateClean
	i.changes = nil
	i.persisted = maps.Clone(i.values)
}

// storedValue returns the value name had when the item was last persisted. NEW
// items report their current value.
func (i *Item) storedValue(name string) (any, bool) {
	if i.state == StateNew || i.persisted == nil {
		v, ok := i.values[name]
		return v, ok
	}
	v, ok := i.persisted[name]
	return v, ok
}

// isNil reports whether rv is invalid or a nil pointer, map, slice or interface.
func isNil(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Extract converts every set attribute to its wire value.
func (i *Item) Extract() (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(i.values))
	for _, a := range i.schema.attrs {
		v, ok := i.values[a.name]
		if !ok {
			continue
		}
		av, err := a.Extract(v)
		if err != nil {
			return nil, err
		}
		out[a.name] = av
	}
	return out, nil
}

// Key extracts the key attributes of idx.
func (i *Item) Key(idx Index) (map[string]types.AttributeValue, error) {
	key := make(map[string]types.AttributeValue, 2)
	for _, name := range idx.Keys() {
		v, ok := i.values[name]
		if !ok || isNil(reflect.ValueOf(v)) {
			return nil, fmt.Errorf("%w: item has no value for key attribute %q", ErrAttribute, name)
		}
		a, err := i.schema.lookup(name)
		if err != nil {
			return nil, err
		}
		av, err := a.Extract(v)
		if err != nil {
			return nil, err
		}
		key[name] = av
	}
	return key, nil
}

// Decode copies the item's values into out, a pointer to a struct or to a
// map[string]any. Struct fields are matched by attribute name as SchemaFor names
// them; fields without a matching value are left untouched.
func (i *Item) Decode(out any) error {
	if m, ok := out.(*map[string]any); ok {
		if m == nil {
			return fmt.Errorf("%w: cannot decode into nil %T", ErrUnsupportedType, out)
		}
		if *m == nil {
			*m = make(map[string]any, len(i.values))
		}
		maps.Copy(*m, i.values)
		return nil
	}

	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: cannot decode into %T", ErrUnsupportedType, out)
	}
	rv = rv.Elem()

	for _, f := range reflect.VisibleFields(rv.Type()) {
		name, ok := fieldName(f)
		if !ok {
			continue
		}
		v, ok := i.values[name]
		if !ok {
			continue
		}
		fv := rv.FieldByIndex(f.Index)
		src := reflect.ValueOf(v)
		switch {
		case !src.IsValid():
			fv.SetZero()
		case src.Type().AssignableTo(fv.Type()):
			fv.Set(src)
		case src.Type().ConvertibleTo(fv.Type()):
			fv.Set(src.Convert(fv.Type()))
		default:
			return fmt.Errorf("%w: cannot decode attribute %q of type %s into field %s of type %s",
				ErrAttribute, name, src.Type(), f.Name, fv.Type())
		}
	}
	return nil
}
