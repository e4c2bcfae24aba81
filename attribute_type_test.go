package dynamodel

import (
	"reflect"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineItem struct {
	SKU string `dynamodbav:"sku"`
	Qty int    `dynamodbav:"qty"`
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want AttributeType
	}{
		{"string", reflect.TypeFor[string](), TypeString},
		{"named string", reflect.TypeFor[AttributeType](), TypeString},
		{"time", reflect.TypeFor[time.Time](), TypeString},
		{"int", reflect.TypeFor[int](), TypeNumber},
		{"uint8", reflect.TypeFor[uint8](), TypeNumber},
		{"float32", reflect.TypeFor[float32](), TypeNumber},
		{"number", reflect.TypeFor[attributevalue.Number](), TypeNumber},
		{"pointer to int", reflect.TypeFor[**int](), TypeNumber},
		{"bool", reflect.TypeFor[bool](), TypeBool},
		{"bytes", reflect.TypeFor[[]byte](), TypeBinary},
		{"null", reflect.TypeFor[Null](), TypeNull},
		{"string slice", reflect.TypeFor[[]string](), TypeList},
		{"byte slices", reflect.TypeFor[[][]byte](), TypeList},
		{"array", reflect.TypeFor[[3]int](), TypeList},
		{"struct", reflect.TypeFor[lineItem](), TypeMap},
		{"string map", reflect.TypeFor[map[string]int](), TypeMap},
		{"string set", reflect.TypeFor[map[string]struct{}](), TypeStringSet},
		{"number set", reflect.TypeFor[map[float64]struct{}](), TypeNumberSet},
		{"binary set", reflect.TypeFor[BinarySet](), TypeBinarySet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TypeOf(tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypeOf_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
	}{
		{"nil", nil},
		{"interface", reflect.TypeFor[any]()},
		{"channel", reflect.TypeFor[chan int]()},
		{"func", reflect.TypeFor[func()]()},
		{"complex", reflect.TypeFor[complex128]()},
		{"int keyed map", reflect.TypeFor[map[int]string]()},
		{"bool set", reflect.TypeFor[map[bool]struct{}]()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TypeOf(tt.typ)
			assert.ErrorIs(t, err, ErrUnsupportedType)
		})
	}
}

func TestTypeFor(t *testing.T) {
	typ, err := TypeFor[map[int]struct{}]()
	require.NoError(t, err)
	assert.Equal(t, TypeNumberSet, typ)
	assert.True(t, typ.IsSet())
	assert.False(t, typ.IsKey())
	assert.True(t, typ.Is("NS"))
	assert.Equal(t, "NS", typ.String())
}

func TestTypeOfValue(t *testing.T) {
	assert.Equal(t, TypeString, TypeOfValue(&types.AttributeValueMemberS{Value: "x"}))
	assert.Equal(t, TypeNumberSet, TypeOfValue(&types.AttributeValueMemberNS{Value: []string{"1"}}))
	assert.Equal(t, TypeNull, TypeOfValue(&types.AttributeValueMemberNULL{Value: true}))
	assert.Equal(t, TypeMap, TypeOfValue(&types.AttributeValueMemberM{}))
	assert.Equal(t, AttributeType(""), TypeOfValue(nil))
}

func TestAttributeType_IsKey(t *testing.T) {
	for _, typ := range []AttributeType{TypeString, TypeNumber, TypeBinary} {
		assert.True(t, typ.IsKey(), typ)
	}
	for _, typ := range []AttributeType{TypeBool, TypeNull, TypeList, TypeMap, TypeStringSet} {
		assert.False(t, typ.IsKey(), typ)
	}
	assert.True(t, TypeString.Equal(TypeString))
	assert.False(t, TypeString.Equal(TypeStringSet))
}
