package dynamodel

import (
	"cmp"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
)

// NumberCodec converts between Go numeric values and the decimal strings carried by
// N attributes. An Attribute holds the codec it was registered with.
type NumberCodec interface {
	// FormatNumber renders v, a value of any integer, float or
	// attributevalue.Number type, as a decimal string.
	FormatNumber(v reflect.Value) (string, error)
	// ParseNumber parses s into a value of type t.
	ParseNumber(s string, t reflect.Type) (reflect.Value, error)
}

// DecimalCodec is the default NumberCodec. Integers are rendered exactly and floats
// with the shortest decimal representation that parses back to the same value, so
// 0.1 is stored as "0.1" and not as its binary expansion. Parsing goes through
// big.Rat, which lets "1E+2" hydrate into an integer field.
type DecimalCodec struct{}

var _ NumberCodec = DecimalCodec{}

// FormatNumber implements NumberCodec.
func (DecimalCodec) FormatNumber(v reflect.Value) (string, error) {
	switch {
	case v.Type() == numberType:
		s := v.String()
		if _, ok := new(big.Rat).SetString(s); !ok {
			return "", fmt.Errorf("%w: invalid number %q", ErrUnsupportedType, s)
		}
		return s, nil
	case v.CanInt():
		return strconv.FormatInt(v.Int(), 10), nil
	case v.CanUint():
		return strconv.FormatUint(v.Uint(), 10), nil
	case v.CanFloat():
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("%w: %v cannot be stored as a number", ErrUnsupportedType, f)
		}
		return strconv.FormatFloat(f, 'g', -1, v.Type().Bits()), nil
	}
	return "", fmt.Errorf("%w: %s is not a number", ErrUnsupportedType, v.Type())
}

// ParseNumber implements NumberCodec.
func (DecimalCodec) ParseNumber(s string, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()

	if t == numberType {
		if _, ok := new(big.Rat).SetString(s); !ok {
			return out, fmt.Errorf("invalid number %q", s)
		}
		out.SetString(s)
		return out, nil
	}

	switch t.Kind() {
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return out, fmt.Errorf("failed to parse %q as %s: %w", s, t, err)
		}
		out.SetFloat(f)
		return out, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := parseInteger(s)
		if err != nil {
			return out, err
		}
		if !n.IsInt64() || out.OverflowInt(n.Int64()) {
			return out, fmt.Errorf("number %q overflows %s", s, t)
		}
		out.SetInt(n.Int64())
		return out, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := parseInteger(s)
		if err != nil {
			return out, err
		}
		if !n.IsUint64() || out.OverflowUint(n.Uint64()) {
			return out, fmt.Errorf("number %q overflows %s", s, t)
		}
		out.SetUint(n.Uint64())
		return out, nil
	}
	return out, fmt.Errorf("%w: %s is not a number", ErrUnsupportedType, t)
}

// parseInteger accepts any decimal form of an integral value.
func parseInteger(s string) (*big.Int, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return big.NewInt(n), nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	if !r.IsInt() {
		return nil, fmt.Errorf("number %q is not an integer", s)
	}
	return r.Num(), nil
}

// compareNumbers orders two values of the same numeric type.
func compareNumbers(a, b reflect.Value) int {
	switch {
	case a.CanInt():
		return cmp.Compare(a.Int(), b.Int())
	case a.CanUint():
		return cmp.Compare(a.Uint(), b.Uint())
	case a.CanFloat():
		return cmp.Compare(a.Float(), b.Float())
	case a.Type() == numberType:
		x, _ := new(big.Rat).SetString(a.String())
		y, _ := new(big.Rat).SetString(b.String())
		if x == nil || y == nil {
			return cmp.Compare(a.String(), b.String())
		}
		return x.Cmp(y)
	}
	return 0
}
