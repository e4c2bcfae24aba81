package dynamodel

import (
	"fmt"
	"reflect"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AttributeType is the wire category of an attribute value. Its string form is the
// DynamoDB type tag.
type AttributeType string

const (
	TypeString    AttributeType = "S"
	TypeNumber    AttributeType = "N"
	TypeBool      AttributeType = "BOOL"
	TypeBinary    AttributeType = "B"
	TypeNull      AttributeType = "NULL"
	TypeList      AttributeType = "L"
	TypeMap       AttributeType = "M"
	TypeStringSet AttributeType = "SS"
	TypeNumberSet AttributeType = "NS"
	TypeBinarySet AttributeType = "BS"
)

// Null is the Go type of attributes that only ever hold the NULL value.
type Null struct{}

// BinarySet is the Go type of BS attributes. Byte slices cannot be map keys, so binary
// sets are modeled as a slice; members are deduplicated and sorted on extraction.
type BinarySet [][]byte

var (
	timeType      = reflect.TypeFor[time.Time]()
	numberType    = reflect.TypeFor[attributevalue.Number]()
	nullType      = reflect.TypeFor[Null]()
	binarySetType = reflect.TypeFor[BinarySet]()
	emptyType     = reflect.TypeFor[struct{}]()
)

// scalarTypes maps concrete Go types whose kind alone would be misleading.
var scalarTypes = map[reflect.Type]AttributeType{
	timeType:      TypeString,
	numberType:    TypeNumber,
	nullType:      TypeNull,
	binarySetType: TypeBinarySet,
}

var kindTypes = map[reflect.Kind]AttributeType{
	reflect.String:  TypeString,
	reflect.Bool:    TypeBool,
	reflect.Int:     TypeNumber,
	reflect.Int8:    TypeNumber,
	reflect.Int16:   TypeNumber,
	reflect.Int32:   TypeNumber,
	reflect.Int64:   TypeNumber,
	reflect.Uint:    TypeNumber,
	reflect.Uint8:   TypeNumber,
	reflect.Uint16:  TypeNumber,
	reflect.Uint32:  TypeNumber,
	reflect.Uint64:  TypeNumber,
	reflect.Float32: TypeNumber,
	reflect.Float64: TypeNumber,
}

// setTypes maps the resolved set element type to the set variant.
var setTypes = map[AttributeType]AttributeType{
	TypeString: TypeStringSet,
	TypeNumber: TypeNumberSet,
}

// TypeOf resolves the wire category of t. Pointers resolve to their element type;
// maps with struct{} values are sets of their key type. Interfaces, channels, funcs,
// complex numbers and maps keyed by anything other than strings are unsupported.
func TypeOf(t reflect.Type) (AttributeType, error) {
	if t == nil {
		return "", fmt.Errorf("%w: nil type", ErrUnsupportedType)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if at, ok := scalarTypes[t]; ok {
		return at, nil
	}
	if at, ok := kindTypes[t.Kind()]; ok {
		return at, nil
	}

	switch t.Kind() {
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return TypeBinary, nil
		}
		return TypeList, nil
	case reflect.Array:
		return TypeList, nil
	case reflect.Struct:
		return TypeMap, nil
	case reflect.Map:
		if t.Elem() == emptyType {
			elem, err := TypeOf(t.Key())
			if err != nil {
				return "", err
			}
			if at, ok := setTypes[elem]; ok {
				return at, nil
			}
			return "", fmt.Errorf("%w: set of %s", ErrUnsupportedType, t.Key())
		}
		if t.Key().Kind() == reflect.String {
			return TypeMap, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, t)
}

// TypeFor resolves the wire category of T.
func TypeFor[T any]() (AttributeType, error) {
	return TypeOf(reflect.TypeFor[T]())
}

// TypeOfValue returns the tag of a wire value, or the empty type for nil or unknown
// members.
func TypeOfValue(av types.AttributeValue) AttributeType {
	switch av.(type) {
	case *types.AttributeValueMemberS:
		return TypeString
	case *types.AttributeValueMemberN:
		return TypeNumber
	case *types.AttributeValueMemberBOOL:
		return TypeBool
	case *types.AttributeValueMemberB:
		return TypeBinary
	case *types.AttributeValueMemberNULL:
		return TypeNull
	case *types.AttributeValueMemberL:
		return TypeList
	case *types.AttributeValueMemberM:
		return TypeMap
	case *types.AttributeValueMemberSS:
		return TypeStringSet
	case *types.AttributeValueMemberNS:
		return TypeNumberSet
	case *types.AttributeValueMemberBS:
		return TypeBinarySet
	default:
		return ""
	}
}

// Is reports whether t has the given wire tag.
func (t AttributeType) Is(tag string) bool { return string(t) == tag }

// Equal reports whether t and other are the same category.
func (t AttributeType) Equal(other AttributeType) bool { return t == other }

// IsSet reports whether t is one of the set variants.
func (t AttributeType) IsSet() bool {
	return t == TypeStringSet || t == TypeNumberSet || t == TypeBinarySet
}

// IsKey reports whether t can be used for a key attribute.
func (t AttributeType) IsKey() bool {
	return t == TypeString || t == TypeNumber || t == TypeBinary
}

func (t AttributeType) String() string { return string(t) }
