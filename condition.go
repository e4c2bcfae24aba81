package dynamodel

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Operator is a comparison, function or logical operator of a condition.
type Operator string

const (
	OpEqual            Operator = "="
	OpLessThan         Operator = "<"
	OpLessThanEqual    Operator = "<="
	OpGreaterThan      Operator = ">"
	OpGreaterThanEqual Operator = ">="
	OpBetween          Operator = "BETWEEN"
	OpBeginsWith       Operator = "begins_with"
	OpContains         Operator = "contains"
	OpExists           Operator = "attribute_exists"
	OpNotExists        Operator = "attribute_not_exists"
	OpAnd              Operator = "AND"
	OpOr               Operator = "OR"
	OpNot              Operator = "NOT"
)

// Condition is an expression tree used as a key condition, a filter or a write
// precondition. The zero Condition is unset. Conditions are immutable values; the
// builders below return new trees.
type Condition struct {
	node *conditionNode
}

type conditionNode struct {
	op       Operator
	attr     *Attribute
	values   []any
	children []Condition
}

// IsSet reports whether c holds an expression.
func (c Condition) IsSet() bool { return c.node != nil }

// Operator returns the root operator, or the empty operator for an unset condition.
func (c Condition) Operator() Operator {
	if c.node == nil {
		return ""
	}
	return c.node.op
}

func compare(op Operator, a *Attribute, values ...any) Condition {
	return Condition{node: &conditionNode{op: op, attr: a, values: values}}
}

// Equal matches items whose attribute equals v.
func (a *Attribute) Equal(v any) Condition { return compare(OpEqual, a, v) }

// LessThan matches items whose attribute is less than v.
func (a *Attribute) LessThan(v any) Condition { return compare(OpLessThan, a, v) }

// LessThanEqual matches items whose attribute is at most v.
func (a *Attribute) LessThanEqual(v any) Condition { return compare(OpLessThanEqual, a, v) }

// GreaterThan matches items whose attribute is greater than v.
func (a *Attribute) GreaterThan(v any) Condition { return compare(OpGreaterThan, a, v) }

// GreaterThanEqual matches items whose attribute is at least v.
func (a *Attribute) GreaterThanEqual(v any) Condition { return compare(OpGreaterThanEqual, a, v) }

// Between matches items whose attribute lies in the inclusive range [lower, upper].
func (a *Attribute) Between(lower, upper any) Condition {
	return compare(OpBetween, a, lower, upper)
}

// BeginsWith matches items whose attribute starts with prefix.
func (a *Attribute) BeginsWith(prefix any) Condition { return compare(OpBeginsWith, a, prefix) }

// Contains matches items whose set or list attribute holds v, or whose string
// attribute contains the substring v.
func (a *Attribute) Contains(v any) Condition { return compare(OpContains, a, v) }

// Exists matches items that have the attribute.
func (a *Attribute) Exists() Condition { return compare(OpExists, a) }

// NotExists matches items that do not have the attribute.
func (a *Attribute) NotExists() Condition { return compare(OpNotExists, a) }

// And joins conditions that must all hold. Unset conditions are skipped.
func And(conds ...Condition) Condition { return join(OpAnd, conds) }

// Or joins conditions of which at least one must hold. Unset conditions are skipped.
func Or(conds ...Condition) Condition { return join(OpOr, conds) }

// Not negates c.
func Not(c Condition) Condition {
	if !c.IsSet() {
		return c
	}
	return Condition{node: &conditionNode{op: OpNot, children: []Condition{c}}}
}

// And returns c AND others.
func (c Condition) And(others ...Condition) Condition {
	return And(append([]Condition{c}, others...)...)
}

// Or returns c OR others.
func (c Condition) Or(others ...Condition) Condition {
	return Or(append([]Condition{c}, others...)...)
}

func join(op Operator, conds []Condition) Condition {
	var children []Condition
	for _, c := range conds {
		if !c.IsSet() {
			continue
		}
		// a AND (b AND c) renders the same as a AND b AND c
		if c.node.op == op {
			children = append(children, c.node.children...)
			continue
		}
		children = append(children, c)
	}
	switch len(children) {
	case 0:
		return Condition{}
	case 1:
		return children[0]
	}
	return Condition{node: &conditionNode{op: op, children: children}}
}

// Attributes returns the names the condition references, in order of first
// appearance.
func (c Condition) Attributes() []string {
	var names []string
	c.walk(func(n *conditionNode) {
		if n.attr != nil && !slices.Contains(names, n.attr.name) {
			names = append(names, n.attr.name)
		}
	})
	return names
}

// Uses reports whether op appears anywhere in the condition.
func (c Condition) Uses(op Operator) bool {
	used := false
	c.walk(func(n *conditionNode) {
		if n.op == op {
			used = true
		}
	})
	return used
}

func (c Condition) walk(fn func(*conditionNode)) {
	if c.node == nil {
		return
	}
	fn(c.node)
	for _, child := range c.node.children {
		child.walk(fn)
	}
}

// String renders the expression, or an error marker if it cannot be rendered.
func (c Condition) String() string {
	expr, _, err := c.Render()
	if err != nil {
		return fmt.Sprintf("!invalid(%v)", err)
	}
	return expr
}

// Render returns the expression string and its value placeholders. Attribute names
// are inlined and each value is bound to ":" followed by the attribute name;
// BETWEEN binds ":name_lower" and ":name_upper". Binding two different values to
// the same placeholder is an error.
func (c Condition) Render() (string, map[string]types.AttributeValue, error) {
	if !c.IsSet() {
		return "", nil, nil
	}
	r := &renderer{values: make(map[string]types.AttributeValue)}
	if err := r.render(c.node); err != nil {
		return "", nil, err
	}
	return r.b.String(), r.values, nil
}

// Key returns the bare values the condition compares against, keyed by placeholder
// name without the leading colon. It is used to give errors context.
func (c Condition) Key() map[string]any {
	_, values, err := c.Render()
	if err != nil || len(values) == 0 {
		return nil
	}
	key := make(map[string]any, len(values))
	for k, av := range values {
		key[strings.TrimPrefix(k, ":")] = bareValue(av)
	}
	return key
}

type renderer struct {
	b      strings.Builder
	values map[string]types.AttributeValue
}

func (r *renderer) render(n *conditionNode) error {
	switch n.op {
	case OpAnd, OpOr:
		for i, child := range n.children {
			if i > 0 {
				r.b.WriteString(" " + string(n.op) + " ")
			}
			if err := r.renderChild(n.op, child.node); err != nil {
				return err
			}
		}
		return nil

	case OpNot:
		r.b.WriteString("NOT ")
		return r.renderChild(n.op, n.children[0].node)
	}

	a := n.attr
	if a.err != nil {
		return fmt.Errorf("%w: %w", ErrCondition, a.err)
	}

	switch n.op {
	case OpEqual, OpLessThan, OpLessThanEqual, OpGreaterThan, OpGreaterThanEqual:
		placeholder, err := r.bind(a, a.name, n.values[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(&r.b, "%s %s %s", a.name, n.op, placeholder)

	case OpBetween:
		lower, err := r.bind(a, a.name+"_lower", n.values[0])
		if err != nil {
			return err
		}
		upper, err := r.bind(a, a.name+"_upper", n.values[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(&r.b, "%s BETWEEN %s AND %s", a.name, lower, upper)

	case OpBeginsWith:
		placeholder, err := r.bind(a, a.name, n.values[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(&r.b, "begins_with(%s, %s)", a.name, placeholder)

	case OpContains:
		placeholder, err := r.bind(a.element(), a.name, n.values[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(&r.b, "contains(%s, %s)", a.name, placeholder)

	case OpExists, OpNotExists:
		fmt.Fprintf(&r.b, "%s(%s)", n.op, a.name)

	default:
		return fmt.Errorf("%w: unknown operator %q", ErrCondition, n.op)
	}
	return nil
}

// renderChild wraps logical children whose operator differs from the parent.
func (r *renderer) renderChild(parent Operator, n *conditionNode) error {
	wrap := (n.op == OpAnd || n.op == OpOr) && n.op != parent
	if wrap {
		r.b.WriteByte('(')
	}
	if err := r.render(n); err != nil {
		return err
	}
	if wrap {
		r.b.WriteByte(')')
	}
	return nil
}

// bind extracts v through a and stores it under ":"+name.
func (r *renderer) bind(a *Attribute, name string, v any) (string, error) {
	av, err := a.Extract(v)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCondition, err)
	}
	placeholder := ":" + name
	if existing, ok := r.values[placeholder]; ok && !reflect.DeepEqual(existing, av) {
		return "", fmt.Errorf("%w: placeholder %s is bound to two different values", ErrCondition, placeholder)
	}
	r.values[placeholder] = av
	return placeholder, nil
}

// mergeValues adds src to dst, failing when a placeholder holds different values.
func mergeValues(dst, src map[string]types.AttributeValue) error {
	for k, v := range src {
		if existing, ok := dst[k]; ok && !reflect.DeepEqual(existing, v) {
			return fmt.Errorf("%w: placeholder %s is bound to two different values", ErrCondition, k)
		}
		dst[k] = v
	}
	return nil
}
