package dynamodel

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// updateExpression renders the item's pending changes as one update expression.
// SET and CHANGE writes share a SET clause bound to ":name" placeholders; UNSET
// writes form a REMOVE clause. Clauses list attributes in change order.
func updateExpression(item *Item) (string, map[string]types.AttributeValue, error) {
	var set, remove []string
	values := make(map[string]types.AttributeValue)

	for _, c := range item.changes {
		if c.Kind == ChangeUnset {
			remove = append(remove, c.Attribute)
			continue
		}
		a, err := item.schema.lookup(c.Attribute)
		if err != nil {
			return "", nil, err
		}
		av, err := a.Extract(c.Value)
		if err != nil {
			return "", nil, err
		}
		placeholder := ":" + c.Attribute
		values[placeholder] = av
		set = append(set, c.Attribute+" = "+placeholder)
	}

	var clauses []string
	if len(set) > 0 {
		clauses = append(clauses, "SET "+strings.Join(set, ", "))
	}
	if len(remove) > 0 {
		clauses = append(clauses, "REMOVE "+strings.Join(remove, ", "))
	}
	return strings.Join(clauses, " "), values, nil
}
