package dynamodel

import (
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondition_Render(t *testing.T) {
	schema := trackSchema(t)
	artist := schema.Attr("artist_name")
	track := schema.Attr("track_name")
	album := schema.Attr("album_name")
	number := schema.Attr("track_number")
	tags := schema.Attr("tags")

	s := func(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
	n := func(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

	tests := []struct {
		name   string
		cond   Condition
		expr   string
		values map[string]types.AttributeValue
	}{
		{
			name:   "equal",
			cond:   artist.Equal("AC/DC"),
			expr:   "artist_name = :artist_name",
			values: map[string]types.AttributeValue{":artist_name": s("AC/DC")},
		},
		{
			name:   "less than",
			cond:   number.LessThan(3),
			expr:   "track_number < :track_number",
			values: map[string]types.AttributeValue{":track_number": n("3")},
		},
		{
			name:   "greater than equal",
			cond:   number.GreaterThanEqual(3),
			expr:   "track_number >= :track_number",
			values: map[string]types.AttributeValue{":track_number": n("3")},
		},
		{
			name: "between",
			cond: number.Between(2, 5),
			expr: "track_number BETWEEN :track_number_lower AND :track_number_upper",
			values: map[string]types.AttributeValue{
				":track_number_lower": n("2"),
				":track_number_upper": n("5"),
			},
		},
		{
			name:   "begins with",
			cond:   track.BeginsWith("S"),
			expr:   "begins_with(track_name, :track_name)",
			values: map[string]types.AttributeValue{":track_name": s("S")},
		},
		{
			name:   "contains set member",
			cond:   tags.Contains("live"),
			expr:   "contains(tags, :tags)",
			values: map[string]types.AttributeValue{":tags": s("live")},
		},
		{
			name:   "contains substring",
			cond:   track.Contains("Rock"),
			expr:   "contains(track_name, :track_name)",
			values: map[string]types.AttributeValue{":track_name": s("Rock")},
		},
		{
			name:   "exists",
			cond:   album.Exists(),
			expr:   "attribute_exists(album_name)",
			values: map[string]types.AttributeValue{},
		},
		{
			name:   "not exists",
			cond:   album.NotExists(),
			expr:   "attribute_not_exists(album_name)",
			values: map[string]types.AttributeValue{},
		},
		{
			name: "and",
			cond: artist.Equal("AC/DC").And(track.BeginsWith("S")),
			expr: "artist_name = :artist_name AND begins_with(track_name, :track_name)",
			values: map[string]types.AttributeValue{
				":artist_name": s("AC/DC"),
				":track_name":  s("S"),
			},
		},
		{
			name: "nested and is flattened",
			cond: And(artist.Equal("AC/DC"), And(album.Exists(), number.LessThan(3))),
			expr: "artist_name = :artist_name AND attribute_exists(album_name) AND track_number < :track_number",
			values: map[string]types.AttributeValue{
				":artist_name":  s("AC/DC"),
				":track_number": n("3"),
			},
		},
		{
			name: "or inside and is grouped",
			cond: artist.Equal("AC/DC").And(Or(album.NotExists(), number.GreaterThan(8))),
			expr: "artist_name = :artist_name AND (attribute_not_exists(album_name) OR track_number > :track_number)",
			values: map[string]types.AttributeValue{
				":artist_name":  s("AC/DC"),
				":track_number": n("8"),
			},
		},
		{
			name:   "not",
			cond:   Not(album.Exists().Or(track.BeginsWith("S"))),
			expr:   "NOT (attribute_exists(album_name) OR begins_with(track_name, :track_name))",
			values: map[string]types.AttributeValue{":track_name": s("S")},
		},
		{
			name:   "repeated value",
			cond:   Or(artist.Equal("AC/DC"), artist.Equal("AC/DC")),
			expr:   "artist_name = :artist_name OR artist_name = :artist_name",
			values: map[string]types.AttributeValue{":artist_name": s("AC/DC")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, values, err := tt.cond.Render()
			require.NoError(t, err)
			assert.Equal(t, tt.expr, expr)
			assert.Equal(t, tt.values, values)
			assert.Equal(t, tt.expr, tt.cond.String())
		})
	}
}

func TestCondition_Render_Errors(t *testing.T) {
	schema := trackSchema(t)
	artist := schema.Attr("artist_name")
	number := schema.Attr("track_number")

	tests := []struct {
		name string
		cond Condition
	}{
		{"conflicting placeholder", artist.Equal("AC/DC").And(artist.Equal("Airbourne"))},
		{"range on one placeholder", number.GreaterThan(1).And(number.LessThan(5))},
		{"value of the wrong type", number.Equal("three")},
		{"undeclared attribute", schema.Attr("label").Equal("Atlantic")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.cond.Render()
			assert.ErrorIs(t, err, ErrCondition)
			assert.True(t, strings.HasPrefix(tt.cond.String(), "!invalid("))
		})
	}

	t.Run("undeclared attribute is an attribute error", func(t *testing.T) {
		_, _, err := schema.Attr("label").Exists().Render()
		assert.ErrorIs(t, err, ErrAttribute)
	})
}

func TestCondition_Unset(t *testing.T) {
	artist := trackSchema(t).Attr("artist_name")

	var unset Condition
	assert.False(t, unset.IsSet())
	assert.Equal(t, Operator(""), unset.Operator())

	expr, values, err := unset.Render()
	require.NoError(t, err)
	assert.Empty(t, expr)
	assert.Nil(t, values)

	assert.False(t, And().IsSet())
	assert.False(t, Not(unset).IsSet())

	single := And(unset, artist.Equal("AC/DC"), unset)
	assert.Equal(t, OpEqual, single.Operator())
	assert.Equal(t, "artist_name = :artist_name", single.String())
}

func TestCondition_Attributes(t *testing.T) {
	schema := trackSchema(t)
	album := schema.Attr("album_name")
	artist := schema.Attr("artist_name")

	cond := album.Equal("Let There Be Rock").And(artist.Equal("AC/DC"), album.Exists())
	assert.Equal(t, []string{"album_name", "artist_name"}, cond.Attributes())
	assert.Equal(t, OpAnd, cond.Operator())
	assert.True(t, cond.Uses(OpExists))
	assert.False(t, cond.Uses(OpOr))
	assert.True(t, Not(cond).Uses(OpNot))
	assert.Nil(t, Condition{}.Attributes())
}

func TestCondition_Key(t *testing.T) {
	schema := trackSchema(t)
	cond := schema.Attr("artist_name").Equal("AC/DC").And(schema.Attr("track_number").Between(1, 3))

	assert.Equal(t, map[string]any{
		"artist_name":        "AC/DC",
		"track_number_lower": attributevalue.Number("1"),
		"track_number_upper": attributevalue.Number("3"),
	}, cond.Key())
	assert.Nil(t, schema.Attr("album_name").Exists().Key())
}

func TestMergeValues(t *testing.T) {
	dst := map[string]types.AttributeValue{":a": &types.AttributeValueMemberS{Value: "x"}}

	require.NoError(t, mergeValues(dst, map[string]types.AttributeValue{
		":a": &types.AttributeValueMemberS{Value: "x"},
		":b": &types.AttributeValueMemberN{Value: "1"},
	}))
	assert.Len(t, dst, 2)

	err := mergeValues(dst, map[string]types.AttributeValue{":a": &types.AttributeValueMemberS{Value: "y"}})
	assert.ErrorIs(t, err, ErrCondition)
}
