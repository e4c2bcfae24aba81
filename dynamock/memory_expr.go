package dynamock

import (
	"bytes"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// The evaluator covers the subset of the DynamoDB expression language a
// MemoryClient understands: comparisons (= <> < <= > >=), BETWEEN, IN, AND, OR,
// NOT, parentheses, the functions attribute_exists, attribute_not_exists,
// begins_with, contains and size, update expressions with SET (including +, -,
// if_not_exists and list_append) and REMOVE clauses, and projections. Attribute
// paths are top-level names or #name placeholders.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokName  // #placeholder
	tokValue // :placeholder
	tokLParen
	tokRParen
	tokComma
	tokCompare
	tokPlus
	tokMinus
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func tokenize(s string) ([]token, error) {
	var tokens []token
	runes := []rune(s)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case r == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++
		case r == '+':
			tokens = append(tokens, token{tokPlus, "+", i})
			i++
		case r == '-':
			tokens = append(tokens, token{tokMinus, "-", i})
			i++
		case r == '=':
			tokens = append(tokens, token{tokCompare, "=", i})
			i++
		case r == '<' || r == '>':
			op := string(r)
			if i+1 < len(runes) && (runes[i+1] == '=' || (r == '<' && runes[i+1] == '>')) {
				op += string(runes[i+1])
			}
			tokens = append(tokens, token{tokCompare, op, i})
			i += len(op)
		case r == '#' || r == ':':
			start := i
			i++
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			if i == start+1 {
				return nil, validationError("Invalid expression: empty placeholder at position %d in %q", start, s)
			}
			kind := tokName
			if r == ':' {
				kind = tokValue
			}
			tokens = append(tokens, token{kind, string(runes[start:i]), start})
		case isIdentRune(r):
			start := i
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			tokens = append(tokens, token{tokIdent, string(runes[start:i]), start})
		default:
			return nil, validationError("Invalid expression: unexpected %q at position %d in %q", r, i, s)
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(runes)}), nil
}

// exprParser is a recursive descent parser over one expression.
type exprParser struct {
	src       string
	tokens    []token
	pos       int
	names     map[string]string
	values    map[string]types.AttributeValue
	usedNames map[string]bool
	usedVals  map[string]bool
}

func newParser(src string, names map[string]string, values map[string]types.AttributeValue) (*exprParser, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	return &exprParser{
		src:       src,
		tokens:    tokens,
		names:     names,
		values:    values,
		usedNames: make(map[string]bool),
		usedVals:  make(map[string]bool),
	}, nil
}

func (p *exprParser) peek() token { return p.tokens[p.pos] }

func (p *exprParser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) keyword(word string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.errorf(t, "expected %s", what)
	}
	return t, nil
}

func (p *exprParser) errorf(t token, format string, args ...any) error {
	return validationError("Invalid expression: %s at position %d in %q", fmt.Sprintf(format, args...), t.pos, p.src)
}

// reserved words the evaluator treats as keywords rather than attribute names.
var reservedWords = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "BETWEEN": true, "IN": true,
	"SET": true, "REMOVE": true, "ADD": true, "DELETE": true,
}

// path parses an attribute name or #placeholder.
func (p *exprParser) path() (string, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		if reservedWords[strings.ToUpper(t.text)] {
			return "", p.errorf(t, "attribute name is a reserved keyword: %s", t.text)
		}
		return t.text, nil
	case tokName:
		name, ok := p.names[t.text]
		if !ok {
			return "", p.errorf(t, "an expression attribute name used in the document path is not defined: %s", t.text)
		}
		p.usedNames[t.text] = true
		return name, nil
	}
	return "", p.errorf(t, "expected attribute name")
}

// operand is a path, a literal value or size(path).
type operand struct {
	path  string
	value types.AttributeValue
	size  bool
}

func (o operand) resolve(item map[string]types.AttributeValue) (types.AttributeValue, bool) {
	if o.value != nil {
		return o.value, true
	}
	av, ok := item[o.path]
	if !ok {
		return nil, false
	}
	if o.size {
		n, ok := sizeOf(av)
		if !ok {
			return nil, false
		}
		return &types.AttributeValueMemberN{Value: fmt.Sprint(n)}, true
	}
	return av, true
}

func (p *exprParser) operand() (operand, error) {
	t := p.peek()
	if t.kind == tokValue {
		p.next()
		av, ok := p.values[t.text]
		if !ok {
			return operand{}, p.errorf(t, "an expression attribute value used in expression is not defined: %s", t.text)
		}
		p.usedVals[t.text] = true
		return operand{value: av}, nil
	}
	if t.kind == tokIdent && strings.EqualFold(t.text, "size") && p.tokens[p.pos+1].kind == tokLParen {
		p.pos += 2
		path, err := p.path()
		if err != nil {
			return operand{}, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return operand{}, err
		}
		return operand{path: path, size: true}, nil
	}
	path, err := p.path()
	if err != nil {
		return operand{}, err
	}
	return operand{path: path}, nil
}

// condition AST

type condNode interface {
	eval(item map[string]types.AttributeValue) (bool, error)
}

type andNode struct{ left, right condNode }
type orNode struct{ left, right condNode }
type notNode struct{ inner condNode }

type compareNode struct {
	op          string
	left, right operand
}

type betweenNode struct{ subject, lower, upper operand }

type inNode struct {
	subject operand
	list    []operand
}

type funcNode struct {
	name string
	args []operand
}

func (n andNode) eval(item map[string]types.AttributeValue) (bool, error) {
	l, err := n.left.eval(item)
	if err != nil || !l {
		return false, err
	}
	return n.right.eval(item)
}

func (n orNode) eval(item map[string]types.AttributeValue) (bool, error) {
	l, err := n.left.eval(item)
	if err != nil || l {
		return l, err
	}
	return n.right.eval(item)
}

func (n notNode) eval(item map[string]types.AttributeValue) (bool, error) {
	v, err := n.inner.eval(item)
	return !v, err
}

func (n compareNode) eval(item map[string]types.AttributeValue) (bool, error) {
	l, lok := n.left.resolve(item)
	r, rok := n.right.resolve(item)
	if !lok || !rok {
		return n.op == "<>" && lok != rok, nil
	}
	switch n.op {
	case "=":
		return avEqual(l, r), nil
	case "<>":
		return !avEqual(l, r), nil
	}
	c, ok := avCompare(l, r)
	if !ok {
		return false, nil
	}
	switch n.op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, validationError("Invalid expression: unknown comparator %s", n.op)
}

func (n betweenNode) eval(item map[string]types.AttributeValue) (bool, error) {
	v, ok := n.subject.resolve(item)
	lo, lok := n.lower.resolve(item)
	hi, hok := n.upper.resolve(item)
	if !ok || !lok || !hok {
		return false, nil
	}
	if c, ok := avCompare(lo, hi); ok && c > 0 {
		return false, validationError("Invalid KeyConditionExpression: the BETWEEN operator requires upper bound to be greater than or equal to lower bound")
	}
	c1, ok1 := avCompare(v, lo)
	c2, ok2 := avCompare(v, hi)
	return ok1 && ok2 && c1 >= 0 && c2 <= 0, nil
}

func (n inNode) eval(item map[string]types.AttributeValue) (bool, error) {
	v, ok := n.subject.resolve(item)
	if !ok {
		return false, nil
	}
	for _, o := range n.list {
		if c, ok := o.resolve(item); ok && avEqual(v, c) {
			return true, nil
		}
	}
	return false, nil
}

func (n funcNode) eval(item map[string]types.AttributeValue) (bool, error) {
	switch n.name {
	case "attribute_exists":
		_, ok := item[n.args[0].path]
		return ok, nil
	case "attribute_not_exists":
		_, ok := item[n.args[0].path]
		return !ok, nil
	case "begins_with":
		v, ok := n.args[0].resolve(item)
		prefix, pok := n.args[1].resolve(item)
		if !ok || !pok {
			return false, nil
		}
		switch v := v.(type) {
		case *types.AttributeValueMemberS:
			if pre, ok := prefix.(*types.AttributeValueMemberS); ok {
				return strings.HasPrefix(v.Value, pre.Value), nil
			}
		case *types.AttributeValueMemberB:
			if pre, ok := prefix.(*types.AttributeValueMemberB); ok {
				return bytes.HasPrefix(v.Value, pre.Value), nil
			}
		}
		return false, nil
	case "contains":
		v, ok := n.args[0].resolve(item)
		needle, nok := n.args[1].resolve(item)
		if !ok || !nok {
			return false, nil
		}
		return avContains(v, needle), nil
	}
	return false, validationError("Invalid expression: unknown function %s", n.name)
}

// parseCondition parses a complete condition expression.
func (p *exprParser) parseCondition() (condNode, error) {
	n, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected token %q", t.text)
	}
	return n, nil
}

func (p *exprParser) orExpr() (condNode, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *exprParser) andExpr() (condNode, error) {
	left, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *exprParser) notExpr() (condNode, error) {
	if p.keyword("NOT") {
		inner, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.primary()
}

var conditionFuncs = map[string]int{
	"attribute_exists":     1,
	"attribute_not_exists": 1,
	"begins_with":          2,
	"contains":             2,
}

func (p *exprParser) primary() (condNode, error) {
	t := p.peek()
	if t.kind == tokLParen {
		p.next()
		n, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return n, nil
	}

	if t.kind == tokIdent && p.tokens[p.pos+1].kind == tokLParen {
		if arity, ok := conditionFuncs[strings.ToLower(t.text)]; ok {
			return p.function(strings.ToLower(t.text), arity)
		}
	}

	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	switch {
	case p.keyword("BETWEEN"):
		lower, err := p.operand()
		if err != nil {
			return nil, err
		}
		if !p.keyword("AND") {
			return nil, p.errorf(p.peek(), "expected AND in BETWEEN")
		}
		upper, err := p.operand()
		if err != nil {
			return nil, err
		}
		return betweenNode{left, lower, upper}, nil

	case p.keyword("IN"):
		if _, err := p.expect(tokLParen, "("); err != nil {
			return nil, err
		}
		var list []operand
		for {
			o, err := p.operand()
			if err != nil {
				return nil, err
			}
			list = append(list, o)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inNode{left, list}, nil
	}

	op, err := p.expect(tokCompare, "comparator")
	if err != nil {
		return nil, err
	}
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	return compareNode{op.text, left, right}, nil
}

func (p *exprParser) function(name string, arity int) (condNode, error) {
	p.pos += 2 // name and (
	var args []operand
	for i := 0; i < arity; i++ {
		if i > 0 {
			if _, err := p.expect(tokComma, ","); err != nil {
				return nil, err
			}
		}
		var o operand
		var err error
		if i == 0 {
			var path string
			path, err = p.path()
			o = operand{path: path}
		} else {
			o, err = p.operand()
		}
		if err != nil {
			return nil, err
		}
		args = append(args, o)
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	return funcNode{name, args}, nil
}

// update expressions

type setAction struct {
	path  string
	value valueExpr
}

type valueExpr struct {
	fn          string // "", "+", "-", "if_not_exists" or "list_append"
	left, right operand
}

type updatePlan struct {
	set    []setAction
	remove []string
}

func (p *exprParser) parseUpdate() (updatePlan, error) {
	var plan updatePlan
	for p.peek().kind != tokEOF {
		switch {
		case p.keyword("SET"):
			for {
				path, err := p.path()
				if err != nil {
					return plan, err
				}
				if t, err := p.expect(tokCompare, "="); err != nil || t.text != "=" {
					return plan, p.errorf(t, "expected =")
				}
				v, err := p.valueExpr()
				if err != nil {
					return plan, err
				}
				plan.set = append(plan.set, setAction{path, v})
				if p.peek().kind != tokComma {
					break
				}
				p.next()
			}
		case p.keyword("REMOVE"):
			for {
				path, err := p.path()
				if err != nil {
					return plan, err
				}
				plan.remove = append(plan.remove, path)
				if p.peek().kind != tokComma {
					break
				}
				p.next()
			}
		default:
			t := p.peek()
			return plan, p.errorf(t, "unsupported update clause %q", t.text)
		}
	}
	if len(plan.set) == 0 && len(plan.remove) == 0 {
		return plan, validationError("Invalid UpdateExpression: the expression can not be empty")
	}
	return plan, nil
}

func (p *exprParser) valueExpr() (valueExpr, error) {
	t := p.peek()
	if t.kind == tokIdent && p.tokens[p.pos+1].kind == tokLParen {
		fn := strings.ToLower(t.text)
		if fn == "if_not_exists" || fn == "list_append" {
			p.pos += 2
			left, err := p.operand()
			if err != nil {
				return valueExpr{}, err
			}
			if _, err := p.expect(tokComma, ","); err != nil {
				return valueExpr{}, err
			}
			right, err := p.operand()
			if err != nil {
				return valueExpr{}, err
			}
			if _, err := p.expect(tokRParen, ")"); err != nil {
				return valueExpr{}, err
			}
			return valueExpr{fn: fn, left: left, right: right}, nil
		}
	}

	left, err := p.operand()
	if err != nil {
		return valueExpr{}, err
	}
	switch p.peek().kind {
	case tokPlus, tokMinus:
		op := p.next().text
		right, err := p.operand()
		if err != nil {
			return valueExpr{}, err
		}
		return valueExpr{fn: op, left: left, right: right}, nil
	}
	return valueExpr{left: left}, nil
}

func (v valueExpr) eval(item map[string]types.AttributeValue) (types.AttributeValue, error) {
	left, lok := v.left.resolve(item)
	right, rok := v.right.resolve(item)
	switch v.fn {
	case "":
		if !lok {
			return nil, validationError("The provided expression refers to an attribute that does not exist in the item")
		}
		return left, nil
	case "if_not_exists":
		if lok {
			return left, nil
		}
		return right, nil
	case "list_append":
		l, ok1 := left.(*types.AttributeValueMemberL)
		r, ok2 := right.(*types.AttributeValueMemberL)
		if !lok || !rok || !ok1 || !ok2 {
			return nil, validationError("An operand in the update expression has an incorrect data type")
		}
		return &types.AttributeValueMemberL{Value: append(append([]types.AttributeValue{}, l.Value...), r.Value...)}, nil
	case "+", "-":
		l, ok1 := left.(*types.AttributeValueMemberN)
		r, ok2 := right.(*types.AttributeValueMemberN)
		if !lok || !rok || !ok1 || !ok2 {
			return nil, validationError("An operand in the update expression has an incorrect data type")
		}
		x, _ := new(big.Rat).SetString(l.Value)
		y, _ := new(big.Rat).SetString(r.Value)
		if x == nil || y == nil {
			return nil, validationError("An operand in the update expression has an incorrect data type")
		}
		if v.fn == "+" {
			x.Add(x, y)
		} else {
			x.Sub(x, y)
		}
		return &types.AttributeValueMemberN{Value: ratString(x)}, nil
	}
	return nil, validationError("Invalid UpdateExpression: unsupported operation %s", v.fn)
}

// parseProjection parses a comma separated list of paths.
func (p *exprParser) parseProjection() ([]string, error) {
	var paths []string
	for {
		path, err := p.path()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected token %q", t.text)
	}
	return paths, nil
}

// value helpers

func ratString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	return strings.TrimRight(r.FloatString(38), "0")
}

func numbersEqual(a, b string) bool {
	x, ok1 := new(big.Rat).SetString(a)
	y, ok2 := new(big.Rat).SetString(b)
	if !ok1 || !ok2 {
		return a == b
	}
	return x.Cmp(y) == 0
}

// avEqual compares two wire values, treating numbers by value and sets as
// unordered.
func avEqual(a, b types.AttributeValue) bool {
	switch x := a.(type) {
	case *types.AttributeValueMemberN:
		y, ok := b.(*types.AttributeValueMemberN)
		return ok && numbersEqual(x.Value, y.Value)
	case *types.AttributeValueMemberSS:
		y, ok := b.(*types.AttributeValueMemberSS)
		return ok && len(x.Value) == len(y.Value) && subset(x.Value, y.Value, func(a, b string) bool { return a == b })
	case *types.AttributeValueMemberNS:
		y, ok := b.(*types.AttributeValueMemberNS)
		return ok && len(x.Value) == len(y.Value) && subset(x.Value, y.Value, numbersEqual)
	case *types.AttributeValueMemberBS:
		y, ok := b.(*types.AttributeValueMemberBS)
		return ok && len(x.Value) == len(y.Value) && subset(x.Value, y.Value, bytes.Equal)
	case *types.AttributeValueMemberL:
		y, ok := b.(*types.AttributeValueMemberL)
		if !ok || len(x.Value) != len(y.Value) {
			return false
		}
		for i := range x.Value {
			if !avEqual(x.Value[i], y.Value[i]) {
				return false
			}
		}
		return true
	case *types.AttributeValueMemberM:
		y, ok := b.(*types.AttributeValueMemberM)
		if !ok || len(x.Value) != len(y.Value) {
			return false
		}
		for k, v := range x.Value {
			if w, ok := y.Value[k]; !ok || !avEqual(v, w) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func subset[T any](xs, ys []T, eq func(a, b T) bool) bool {
	for _, x := range xs {
		found := false
		for _, y := range ys {
			if eq(x, y) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// avCompare orders two scalar values of the same type.
func avCompare(a, b types.AttributeValue) (int, bool) {
	switch x := a.(type) {
	case *types.AttributeValueMemberS:
		if y, ok := b.(*types.AttributeValueMemberS); ok {
			return strings.Compare(x.Value, y.Value), true
		}
	case *types.AttributeValueMemberN:
		if y, ok := b.(*types.AttributeValueMemberN); ok {
			p, ok1 := new(big.Rat).SetString(x.Value)
			q, ok2 := new(big.Rat).SetString(y.Value)
			if ok1 && ok2 {
				return p.Cmp(q), true
			}
		}
	case *types.AttributeValueMemberB:
		if y, ok := b.(*types.AttributeValueMemberB); ok {
			return bytes.Compare(x.Value, y.Value), true
		}
	}
	return 0, false
}

func avContains(v, needle types.AttributeValue) bool {
	switch v := v.(type) {
	case *types.AttributeValueMemberS:
		if n, ok := needle.(*types.AttributeValueMemberS); ok {
			return strings.Contains(v.Value, n.Value)
		}
	case *types.AttributeValueMemberB:
		if n, ok := needle.(*types.AttributeValueMemberB); ok {
			return bytes.Contains(v.Value, n.Value)
		}
	case *types.AttributeValueMemberSS:
		if n, ok := needle.(*types.AttributeValueMemberS); ok {
			for _, s := range v.Value {
				if s == n.Value {
					return true
				}
			}
		}
	case *types.AttributeValueMemberNS:
		if n, ok := needle.(*types.AttributeValueMemberN); ok {
			for _, s := range v.Value {
				if numbersEqual(s, n.Value) {
					return true
				}
			}
		}
	case *types.AttributeValueMemberBS:
		if n, ok := needle.(*types.AttributeValueMemberB); ok {
			for _, b := range v.Value {
				if bytes.Equal(b, n.Value) {
					return true
				}
			}
		}
	case *types.AttributeValueMemberL:
		for _, e := range v.Value {
			if avEqual(e, needle) {
				return true
			}
		}
	}
	return false
}

func sizeOf(av types.AttributeValue) (int, bool) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return len(v.Value), true
	case *types.AttributeValueMemberB:
		return len(v.Value), true
	case *types.AttributeValueMemberSS:
		return len(v.Value), true
	case *types.AttributeValueMemberNS:
		return len(v.Value), true
	case *types.AttributeValueMemberBS:
		return len(v.Value), true
	case *types.AttributeValueMemberL:
		return len(v.Value), true
	case *types.AttributeValueMemberM:
		return len(v.Value), true
	}
	return 0, false
}
