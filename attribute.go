package dynamodel

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute describes one field of an item: its name, wire category, Go type and
// default. Attributes are immutable once registered and safe for concurrent use.
type Attribute struct {
	name    string
	typ     AttributeType
	goType  reflect.Type // declared type, possibly a pointer
	base    reflect.Type // goType with pointers removed
	def     reflect.Value
	numbers NumberCodec
	err     error // set on descriptors for names a schema does not declare
}

// AttributeOptions configures an Attribute at registration.
type AttributeOptions struct {
	Default any         // Value assigned to new items that do not set the attribute
	Numbers NumberCodec // Codec for N and NS values. Default is DecimalCodec.
}

// WithDefault sets the value new items receive when they do not set the attribute.
func WithDefault(v any) func(*AttributeOptions) {
	return func(o *AttributeOptions) { o.Default = v }
}

// WithNumberCodec overrides the codec used for numeric values.
func WithNumberCodec(c NumberCodec) func(*AttributeOptions) {
	return func(o *AttributeOptions) { o.Numbers = c }
}

// NewAttribute registers an attribute holding values of type T. Unsupported types are
// rejected here, never at use time.
func NewAttribute[T any](name string, opts ...func(*AttributeOptions)) (*Attribute, error) {
	return AttributeOf(name, reflect.TypeFor[T](), opts...)
}

// AttributeOf registers an attribute holding values of type t.
func AttributeOf(name string, t reflect.Type, opts ...func(*AttributeOptions)) (*Attribute, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: attribute name is empty", ErrAttribute)
	}
	typ, err := TypeOf(t)
	if err != nil {
		return nil, fmt.Errorf("failed to register attribute %q: %w", name, err)
	}

	options := AttributeOptions{Numbers: DecimalCodec{}}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Numbers == nil {
		options.Numbers = DecimalCodec{}
	}

	a := &Attribute{
		name:    name,
		typ:     typ,
		goType:  t,
		base:    t,
		numbers: options.Numbers,
	}
	for a.base.Kind() == reflect.Pointer {
		a.base = a.base.Elem()
	}

	if options.Default != nil {
		def, err := a.convert(options.Default)
		if err != nil {
			return nil, fmt.Errorf("invalid default for attribute %q: %w", name, err)
		}
		a.def = def
	}
	return a, nil
}

// unknownAttribute returns a descriptor whose every use fails with err.
func unknownAttribute(name string, err error) *Attribute {
	return &Attribute{name: name, err: err}
}

// Name returns the attribute name.
func (a *Attribute) Name() string { return a.name }

// Type returns the wire category.
func (a *Attribute) Type() AttributeType { return a.typ }

// GoType returns the declared Go type.
func (a *Attribute) GoType() reflect.Type { return a.goType }

// Default returns the default value, if one was registered.
func (a *Attribute) Default() (any, bool) {
	if !a.def.IsValid() {
		return nil, false
	}
	return a.def.Interface(), true
}

// Err reports why the descriptor is unusable, if it is.
func (a *Attribute) Err() error { return a.err }

// convert coerces v to the declared Go type. Values of a different type are accepted
// when they share the wire category and convert without loss.
func (a *Attribute) convert(v any) (reflect.Value, error) {
	if a.err != nil {
		return reflect.Value{}, a.err
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return reflect.Zero(a.goType), nil
	}
	if rv.Type() == a.goType {
		return rv, nil
	}

	// strip pointers from the input; a nil pointer is the zero value
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Zero(a.goType), nil
		}
		rv = rv.Elem()
	}

	base, err := a.convertBase(rv)
	if err != nil {
		return reflect.Value{}, err
	}
	return a.wrap(base), nil
}

func (a *Attribute) convertBase(rv reflect.Value) (reflect.Value, error) {
	if rv.Type() == a.base {
		return rv, nil
	}
	typ, err := TypeOf(rv.Type())
	if err != nil || typ != a.typ {
		return reflect.Value{}, fmt.Errorf("%w: attribute %q holds %s, got %s", ErrAttribute, a.name, a.goType, rv.Type())
	}
	if a.typ == TypeNumber && rv.Type() != numberType && a.base != numberType {
		return a.convertNumber(rv)
	}
	if a.typ == TypeNumber {
		// one side is attributevalue.Number; round trip through the codec
		s, err := a.numbers.FormatNumber(rv)
		if err != nil {
			return reflect.Value{}, err
		}
		return a.numbers.ParseNumber(s, a.base)
	}
	if rv.Type().ConvertibleTo(a.base) {
		return rv.Convert(a.base), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: attribute %q holds %s, got %s", ErrAttribute, a.name, a.goType, rv.Type())
}

func (a *Attribute) convertNumber(rv reflect.Value) (reflect.Value, error) {
	out := rv.Convert(a.base)
	back := out.Convert(rv.Type())
	negative := (rv.CanInt() && rv.Int() < 0) || (rv.CanFloat() && rv.Float() < 0)
	if !back.Equal(rv) || (negative && out.CanUint()) {
		return reflect.Value{}, fmt.Errorf("%w: %v does not fit attribute %q of type %s", ErrAttribute, rv, a.name, a.goType)
	}
	return out, nil
}

// wrap re-applies the pointer levels of the declared type.
func (a *Attribute) wrap(v reflect.Value) reflect.Value {
	if a.goType == a.base {
		return v
	}
	var levels []reflect.Type
	for t := a.goType; t != a.base; t = t.Elem() {
		levels = append(levels, t)
	}
	for i := len(levels) - 1; i >= 0; i-- {
		p := reflect.New(levels[i].Elem())
		p.Elem().Set(v)
		v = p
	}
	return v
}

// Extract converts v to the single wire member matching the attribute's type.
// Nil values extract to NULL, as do empty sets. Times are stored as RFC 3339 with
// nanoseconds; the monotonic reading and zone name are dropped, so a hydrated time
// matches the original under time.Time.Equal rather than ==.
func (a *Attribute) Extract(v any) (types.AttributeValue, error) {
	rv, err := a.convert(v)
	if err != nil {
		return nil, err
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return &types.AttributeValueMemberNULL{Value: true}, nil
		}
		rv = rv.Elem()
	}
	av, err := a.extract(rv)
	if err != nil {
		return nil, fmt.Errorf("failed to extract attribute %q: %w", a.name, err)
	}
	return av, nil
}

func (a *Attribute) extract(rv reflect.Value) (types.AttributeValue, error) {
	switch a.typ {
	case TypeString:
		if rv.Type() == timeType {
			t := rv.Interface().(time.Time)
			return &types.AttributeValueMemberS{Value: t.Round(0).Format(time.RFC3339Nano)}, nil
		}
		return &types.AttributeValueMemberS{Value: rv.String()}, nil

	case TypeNumber:
		s, err := a.numbers.FormatNumber(rv)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberN{Value: s}, nil

	case TypeBool:
		return &types.AttributeValueMemberBOOL{Value: rv.Bool()}, nil

	case TypeBinary:
		if rv.IsNil() {
			return &types.AttributeValueMemberNULL{Value: true}, nil
		}
		return &types.AttributeValueMemberB{Value: bytes.Clone(rv.Bytes())}, nil

	case TypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil

	case TypeStringSet:
		if rv.Len() == 0 {
			return &types.AttributeValueMemberNULL{Value: true}, nil
		}
		members := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			members = append(members, k.String())
		}
		slices.Sort(members)
		return &types.AttributeValueMemberSS{Value: members}, nil

	case TypeNumberSet:
		if rv.Len() == 0 {
			return &types.AttributeValueMemberNULL{Value: true}, nil
		}
		keys := rv.MapKeys()
		slices.SortFunc(keys, compareNumbers)
		members := make([]string, 0, len(keys))
		for _, k := range keys {
			s, err := a.numbers.FormatNumber(k)
			if err != nil {
				return nil, err
			}
			members = append(members, s)
		}
		return &types.AttributeValueMemberNS{Value: members}, nil

	case TypeBinarySet:
		set := rv.Convert(binarySetType).Interface().(BinarySet)
		if len(set) == 0 {
			return &types.AttributeValueMemberNULL{Value: true}, nil
		}
		members := make([][]byte, 0, len(set))
		for _, b := range set {
			members = append(members, bytes.Clone(b))
		}
		slices.SortFunc(members, bytes.Compare)
		members = slices.CompactFunc(members, bytes.Equal)
		return &types.AttributeValueMemberBS{Value: members}, nil

	case TypeMap, TypeList:
		av, err := attributevalue.Marshal(rv.Interface())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", rv.Type(), err)
		}
		return av, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, a.typ)
}

// ExtractSimple converts v to its bare wire value: string, attributevalue.Number,
// bool, []byte, nil, []string, []attributevalue.Number, [][]byte, map[string]any
// or []any.
func (a *Attribute) ExtractSimple(v any) (any, error) {
	av, err := a.Extract(v)
	if err != nil {
		return nil, err
	}
	return bareValue(av), nil
}

// Hydrate converts a wire value back to the declared Go type. NULL hydrates to the
// zero value, or to an empty set for set attributes.
func (a *Attribute) Hydrate(av types.AttributeValue) (any, error) {
	if a.err != nil {
		return nil, a.err
	}
	rv, err := a.hydrate(av)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate attribute %q: %w", a.name, err)
	}
	return rv.Interface(), nil
}

func (a *Attribute) hydrate(av types.AttributeValue) (reflect.Value, error) {
	if _, ok := av.(*types.AttributeValueMemberNULL); ok || av == nil {
		if !a.typ.IsSet() || a.goType != a.base {
			return reflect.Zero(a.goType), nil
		}
		if a.typ == TypeBinarySet {
			return reflect.MakeSlice(a.base, 0, 0), nil
		}
		return reflect.MakeMap(a.base), nil
	}

	if got := TypeOfValue(av); got != a.typ {
		return reflect.Value{}, fmt.Errorf("%w: expected %s value, got %s", ErrAttribute, a.typ, got)
	}

	out := reflect.New(a.base).Elem()
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		if a.base == timeType {
			t, err := time.Parse(time.RFC3339Nano, v.Value)
			if err != nil {
				return reflect.Value{}, err
			}
			out.Set(reflect.ValueOf(t))
			break
		}
		out.SetString(v.Value)

	case *types.AttributeValueMemberN:
		n, err := a.numbers.ParseNumber(v.Value, a.base)
		if err != nil {
			return reflect.Value{}, err
		}
		out.Set(n)

	case *types.AttributeValueMemberBOOL:
		out.SetBool(v.Value)

	case *types.AttributeValueMemberB:
		out.SetBytes(bytes.Clone(v.Value))

	case *types.AttributeValueMemberSS:
		out.Set(reflect.MakeMapWithSize(a.base, len(v.Value)))
		for _, s := range v.Value {
			out.SetMapIndex(reflect.ValueOf(s).Convert(a.base.Key()), reflect.Zero(emptyType))
		}

	case *types.AttributeValueMemberNS:
		out.Set(reflect.MakeMapWithSize(a.base, len(v.Value)))
		for _, s := range v.Value {
			k, err := a.numbers.ParseNumber(s, a.base.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(k, reflect.Zero(emptyType))
		}

	case *types.AttributeValueMemberBS:
		set := reflect.MakeSlice(a.base, 0, len(v.Value))
		for _, b := range v.Value {
			set = reflect.Append(set, reflect.ValueOf(bytes.Clone(b)))
		}
		out.Set(set)

	case *types.AttributeValueMemberM, *types.AttributeValueMemberL:
		if err := attributevalue.Unmarshal(av, out.Addr().Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("failed to unmarshal %s: %w", a.base, err)
		}
	}
	return a.wrap(out), nil
}

// HydrateSimple converts a bare wire value, as returned by ExtractSimple, to the
// declared Go type.
func (a *Attribute) HydrateSimple(v any) (any, error) {
	av, err := a.wireValue(v)
	if err != nil {
		return nil, err
	}
	return a.Hydrate(av)
}

// wireValue tags a bare value with the attribute's type.
func (a *Attribute) wireValue(v any) (types.AttributeValue, error) {
	if a.err != nil {
		return nil, a.err
	}
	if v == nil {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	switch a.typ {
	case TypeString:
		if s, ok := v.(string); ok {
			return &types.AttributeValueMemberS{Value: s}, nil
		}
	case TypeBinary:
		if b, ok := v.([]byte); ok {
			return &types.AttributeValueMemberB{Value: b}, nil
		}
	case TypeNumber:
		switch n := v.(type) {
		case attributevalue.Number:
			return &types.AttributeValueMemberN{Value: string(n)}, nil
		case string:
			return &types.AttributeValueMemberN{Value: n}, nil
		}
	case TypeStringSet:
		if ss, ok := v.([]string); ok {
			return &types.AttributeValueMemberSS{Value: ss}, nil
		}
	case TypeNumberSet:
		switch ns := v.(type) {
		case []string:
			return &types.AttributeValueMemberNS{Value: ns}, nil
		case []attributevalue.Number:
			out := make([]string, len(ns))
			for i, n := range ns {
				out[i] = string(n)
			}
			return &types.AttributeValueMemberNS{Value: out}, nil
		}
	case TypeBinarySet:
		if bs, ok := v.([][]byte); ok {
			return &types.AttributeValueMemberBS{Value: bs}, nil
		}
	case TypeMap, TypeList:
		return attributevalue.Marshal(v)
	}
	return a.Extract(v)
}

// element returns a descriptor for the members of a set or list attribute, used by
// contains conditions. String attributes are their own element.
func (a *Attribute) element() *Attribute {
	if a.err != nil {
		return a
	}
	var t reflect.Type
	switch a.typ {
	case TypeStringSet, TypeNumberSet:
		t = a.base.Key()
	case TypeBinarySet:
		t = reflect.TypeFor[[]byte]()
	case TypeList:
		t = a.base.Elem()
	default:
		return a
	}
	elem, err := AttributeOf(a.name, t, WithNumberCodec(a.numbers))
	if err != nil {
		return unknownAttribute(a.name, err)
	}
	return elem
}

// bareValue strips the tag from a wire value.
func bareValue(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return attributevalue.Number(v.Value)
	case *types.AttributeValueMemberBOOL:
		return v.Value
	case *types.AttributeValueMemberB:
		return v.Value
	case *types.AttributeValueMemberSS:
		return slices.Clone(v.Value)
	case *types.AttributeValueMemberNS:
		out := make([]attributevalue.Number, len(v.Value))
		for i, n := range v.Value {
			out[i] = attributevalue.Number(n)
		}
		return out
	case *types.AttributeValueMemberBS:
		return slices.Clone(v.Value)
	case *types.AttributeValueMemberM:
		out := make(map[string]any, len(v.Value))
		for k, e := range v.Value {
			out[k] = bareValue(e)
		}
		return out
	case *types.AttributeValueMemberL:
		out := make([]any, len(v.Value))
		for i, e := range v.Value {
			out[i] = bareValue(e)
		}
		return out
	}
	return nil
}
