package dynamodel

import (
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalCodec_FormatNumber(t *testing.T) {
	var codec DecimalCodec
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"int", -42, "-42"},
		{"uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"float64", 0.1, "0.1"},
		{"float32", float32(0.1), "0.1"},
		{"large float", 1e21, "1e+21"},
		{"number", attributevalue.Number("12.50"), "12.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.FormatNumber(reflect.ValueOf(tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("invalid number", func(t *testing.T) {
		_, err := codec.FormatNumber(reflect.ValueOf(attributevalue.Number("twelve")))
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("not a number", func(t *testing.T) {
		_, err := codec.FormatNumber(reflect.ValueOf("12"))
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestDecimalCodec_ParseNumber(t *testing.T) {
	var codec DecimalCodec

	t.Run("exponent into int", func(t *testing.T) {
		v, err := codec.ParseNumber("1E+2", reflect.TypeFor[int]())
		require.NoError(t, err)
		assert.Equal(t, 100, v.Interface())
	})

	t.Run("float", func(t *testing.T) {
		v, err := codec.ParseNumber("2.5", reflect.TypeFor[float64]())
		require.NoError(t, err)
		assert.Equal(t, 2.5, v.Interface())
	})

	t.Run("number keeps its text", func(t *testing.T) {
		v, err := codec.ParseNumber("1.50", reflect.TypeFor[attributevalue.Number]())
		require.NoError(t, err)
		assert.Equal(t, attributevalue.Number("1.50"), v.Interface())
	})

	errs := []struct {
		name string
		s    string
		typ  reflect.Type
	}{
		{"overflow", "300", reflect.TypeFor[int8]()},
		{"negative unsigned", "-1", reflect.TypeFor[uint]()},
		{"fraction into int", "1.5", reflect.TypeFor[int]()},
		{"garbage", "abc", reflect.TypeFor[int]()},
		{"garbage number", "abc", reflect.TypeFor[attributevalue.Number]()},
		{"garbage float", "abc", reflect.TypeFor[float64]()},
		{"string target", "12", reflect.TypeFor[string]()},
	}
	for _, tt := range errs {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.ParseNumber(tt.s, tt.typ)
			assert.Error(t, err)
		})
	}
}

func TestCompareNumbers(t *testing.T) {
	assert.Equal(t, -1, compareNumbers(reflect.ValueOf(2), reflect.ValueOf(10)))
	assert.Equal(t, 1, compareNumbers(reflect.ValueOf(uint(3)), reflect.ValueOf(uint(1))))
	assert.Equal(t, 0, compareNumbers(reflect.ValueOf(1.5), reflect.ValueOf(1.5)))
	assert.Equal(t, -1, compareNumbers(
		reflect.ValueOf(attributevalue.Number("9")),
		reflect.ValueOf(attributevalue.Number("10")),
	))
}
