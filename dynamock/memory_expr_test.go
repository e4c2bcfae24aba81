package dynamock

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondition_Eval(t *testing.T) {
	item := map[string]types.AttributeValue{
		"name":  s("Overdose"),
		"track": n("6"),
		"tags":  &types.AttributeValueMemberSS{Value: []string{"live", "studio"}},
		"nums":  &types.AttributeValueMemberNS{Value: []string{"1.50", "2"}},
		"list":  &types.AttributeValueMemberL{Value: []types.AttributeValue{s("a"), n("1")}},
	}
	values := map[string]types.AttributeValue{
		":name":   s("Overdose"),
		":prefix": s("Over"),
		":six":    n("6.0"),
		":lo":     n("1"),
		":hi":     n("10"),
		":tag":    s("live"),
		":num":    n("1.5"),
		":a":      s("a"),
		":other":  s("Snowballed"),
	}
	names := map[string]string{"#n": "name"}

	tests := []struct {
		expr string
		want bool
	}{
		{"name = :name", true},
		{"#n = :name", true},
		{"name <> :name", false},
		{"track = :six", true},
		{"track < :hi", true},
		{"track >= :six AND track <= :six", true},
		{"track BETWEEN :lo AND :hi", true},
		{"begins_with(name, :prefix)", true},
		{"contains(name, :prefix)", true},
		{"contains(tags, :tag)", true},
		{"contains(nums, :num)", true},
		{"contains(list, :a)", true},
		{"attribute_exists(tags)", true},
		{"attribute_not_exists(tags)", false},
		{"attribute_not_exists(missing)", true},
		{"missing = :name", false},
		{"missing <> :name", true},
		{"name IN (:other, :name)", true},
		{"name = :other OR track = :six", true},
		{"NOT name = :other", true},
		{"NOT (name = :name AND track = :six)", false},
		{"(name = :other OR track < :lo) AND attribute_exists(name)", false},
		{"size(tags) = :lo OR size(name) > :six", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := newParser(tt.expr, names, values)
			require.NoError(t, err)
			cond, err := p.parseCondition()
			require.NoError(t, err)
			got, err := cond.eval(item)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCondition_ParseErrors(t *testing.T) {
	values := map[string]types.AttributeValue{":v": s("x")}
	for _, expr := range []string{
		"",
		"name = ",
		"name = :missing",
		"#missing = :v",
		"name = :v AND",
		"(name = :v",
		"name ! :v",
		"AND = :v",
		"name = :v extra",
	} {
		t.Run(expr, func(t *testing.T) {
			p, err := newParser(expr, nil, values)
			if err == nil {
				_, err = p.parseCondition()
			}
			assert.Error(t, err)
			assert.True(t, isValidation(err), "got %v", err)
		})
	}
}

func TestUpdate_Parse(t *testing.T) {
	values := map[string]types.AttributeValue{
		":a": s("x"),
		":b": n("1"),
		":l": &types.AttributeValueMemberL{Value: []types.AttributeValue{s("z")}},
	}
	p, err := newParser("SET a = :a, b = b - :b, c = list_append(c, :l) REMOVE d, e", nil, values)
	require.NoError(t, err)
	plan, err := p.parseUpdate()
	require.NoError(t, err)

	require.Len(t, plan.set, 3)
	assert.Equal(t, "a", plan.set[0].path)
	assert.Equal(t, "-", plan.set[1].value.fn)
	assert.Equal(t, "list_append", plan.set[2].value.fn)
	assert.Equal(t, []string{"d", "e"}, plan.remove)

	item := map[string]types.AttributeValue{
		"b": n("3"),
		"c": &types.AttributeValueMemberL{Value: []types.AttributeValue{s("y")}},
	}
	b, err := plan.set[1].value.eval(item)
	require.NoError(t, err)
	assert.Equal(t, n("2"), b)

	c, err := plan.set[2].value.eval(item)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberL{Value: []types.AttributeValue{s("y"), s("z")}}, c)
}

func TestUpdate_ParseErrors(t *testing.T) {
	for _, expr := range []string{"", "SET", "SET a", "ADD a :v", "REMOVE"} {
		t.Run(expr, func(t *testing.T) {
			p, err := newParser(expr, nil, map[string]types.AttributeValue{":v": n("1")})
			if err == nil {
				_, err = p.parseUpdate()
			}
			assert.True(t, isValidation(err), "got %v", err)
		})
	}
}

func TestProjection_Parse(t *testing.T) {
	p, err := newParser("#0, #1, plain", map[string]string{"#0": "artist_name", "#1": "track_name"}, nil)
	require.NoError(t, err)
	paths, err := p.parseProjection()
	require.NoError(t, err)
	assert.Equal(t, []string{"artist_name", "track_name", "plain"}, paths)
}

func TestAVEqual(t *testing.T) {
	assert.True(t, avEqual(n("1.0"), n("1")))
	assert.False(t, avEqual(n("1"), s("1")))
	assert.True(t, avEqual(
		&types.AttributeValueMemberSS{Value: []string{"a", "b"}},
		&types.AttributeValueMemberSS{Value: []string{"b", "a"}},
	))
	assert.True(t, avEqual(
		&types.AttributeValueMemberM{Value: map[string]types.AttributeValue{"x": n("2.50")}},
		&types.AttributeValueMemberM{Value: map[string]types.AttributeValue{"x": n("2.5")}},
	))
	assert.True(t, avEqual(&types.AttributeValueMemberBOOL{Value: true}, &types.AttributeValueMemberBOOL{Value: true}))
}
