package dynamodel

import (
	"context"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// QueryOptions configures Query and Scan.
type QueryOptions struct {
	Filter         Condition // Optional filter applied to matching items
	Limit          int       // Items evaluated per page (DynamoDB Limit). Zero leaves it to the store.
	IndexName      string    // Index to read; resolved from the key condition when empty
	Index          *Index    // Index to read, takes precedence over IndexName
	ConsistentRead bool      // Strongly consistent read
	StartToken     string    // Continuation token from Cursor.Token
	Descending     bool      // Reverse sort key order (Query only)
}

// WithFilter filters the items a read returns.
func WithFilter(c Condition) func(*QueryOptions) {
	return func(o *QueryOptions) { o.Filter = c }
}

// WithLimit sets the page size. Zero leaves it to the store; values outside
// [0, math.MaxInt32] make Query and Scan fail with ErrQuery.
func WithLimit(n int) func(*QueryOptions) {
	return func(o *QueryOptions) { o.Limit = n }
}

// UseIndex reads the index registered under name.
func UseIndex(name string) func(*QueryOptions) {
	return func(o *QueryOptions) { o.IndexName = name }
}

// UseIndexDef reads idx.
func UseIndexDef(idx Index) func(*QueryOptions) {
	return func(o *QueryOptions) { o.Index = &idx }
}

// WithConsistentRead requests a strongly consistent read.
func WithConsistentRead() func(*QueryOptions) {
	return func(o *QueryOptions) { o.ConsistentRead = true }
}

// WithStartToken resumes a read from a token returned by Cursor.Token.
func WithStartToken(token string) func(*QueryOptions) {
	return func(o *QueryOptions) { o.StartToken = token }
}

// WithDescending returns items in descending sort key order.
func WithDescending() func(*QueryOptions) {
	return func(o *QueryOptions) { o.Descending = true }
}

// operators a key condition may not use.
var keyConditionExcluded = []Operator{OpOr, OpNot, OpContains, OpExists, OpNotExists}

// Query reads the items matching key. The key condition may reference at most two
// attributes and may not use OR, NOT, contains or the existence functions. The
// index is taken from the options or resolved from the key condition. Rows are
// fetched lazily by the returned Cursor.
func (t *Table) Query(ctx context.Context, key Condition, opts ...func(*QueryOptions)) (*Cursor, error) {
	options := QueryOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if !key.IsSet() {
		return nil, t.queryError("query", key, "key condition is empty")
	}
	if err := t.checkLimit("query", key, options.Limit); err != nil {
		return nil, err
	}
	attrs := key.Attributes()
	if len(attrs) > 2 {
		return nil, t.queryError("query", key, "too many attributes in key condition: %q", attrs)
	}
	for _, op := range keyConditionExcluded {
		if key.Uses(op) {
			return nil, t.queryError("query", key, "operator %s is not supported in a key condition", op)
		}
	}

	idx, err := t.resolveIndex(key, attrs, options)
	if err != nil {
		return nil, err
	}

	keyExpr, values, err := key.Render()
	if err != nil {
		return nil, t.queryError("query", key, "invalid key condition").withCause(err)
	}
	input := &dynamodb.QueryInput{
		TableName:              aws.String(t.name),
		KeyConditionExpression: aws.String(keyExpr),
		ConsistentRead:         aws.Bool(options.ConsistentRead),
		ScanIndexForward:       aws.Bool(!options.Descending),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityIndexes,
	}
	if !idx.isPrimary() {
		input.IndexName = aws.String(idx.Name)
	}

	if options.Filter.IsSet() {
		filterExpr, filterValues, err := options.Filter.Render()
		if err != nil {
			return nil, t.queryError("query", key, "invalid filter").withCause(err)
		}
		if err := mergeValues(values, filterValues); err != nil {
			return nil, t.queryError("query", key, "filter %q conflicts with key condition", filterExpr).withCause(err)
		}
		input.FilterExpression = aws.String(filterExpr)
	}
	if len(values) > 0 {
		input.ExpressionAttributeValues = values
	}

	err = t.project(func(proj string, names map[string]string) {
		input.Select = types.SelectSpecificAttributes
		input.ProjectionExpression = aws.String(proj)
		input.ExpressionAttributeNames = names
	})
	if err != nil {
		return nil, t.queryError("query", key, "failed to build projection").withCause(err)
	}

	if options.Limit > 0 {
		input.Limit = aws.Int32(int32(options.Limit))
	}
	if input.ExclusiveStartKey, err = t.tokens.StartKey(ctx, options.StartToken); err != nil {
		e := t.queryError("query", key, "invalid start token").withCause(err)
		e.Validation = true
		return nil, e
	}

	t.logger.DebugContext(ctx, "query", "index", idx.Name, "key", keyExpr, "filter", aws.ToString(input.FilterExpression))
	return t.cursor(ctx, queryPager{dynamodb.NewQueryPaginator(t.client, input)}, "query", keyExpr, idx, input.ExclusiveStartKey), nil
}

// Scan reads every item of the table or of an index. IndexName or Index select the
// index; Descending is ignored.
func (t *Table) Scan(ctx context.Context, opts ...func(*QueryOptions)) (*Cursor, error) {
	options := QueryOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if err := t.checkLimit("scan", options.Filter, options.Limit); err != nil {
		return nil, err
	}

	idx := t.PrimaryIndex()
	switch {
	case options.Index != nil:
		idx = *options.Index
	case options.IndexName != "":
		var ok bool
		if idx, ok = t.Index(options.IndexName); !ok {
			return nil, t.queryError("scan", Condition{}, "unknown index %q", options.IndexName)
		}
	}

	input := &dynamodb.ScanInput{
		TableName:              aws.String(t.name),
		ConsistentRead:         aws.Bool(options.ConsistentRead),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityIndexes,
	}
	if !idx.isPrimary() {
		input.IndexName = aws.String(idx.Name)
	}

	var filterExpr string
	if options.Filter.IsSet() {
		expr, values, err := options.Filter.Render()
		if err != nil {
			return nil, t.queryError("scan", options.Filter, "invalid filter").withCause(err)
		}
		filterExpr = expr
		input.FilterExpression = aws.String(expr)
		if len(values) > 0 {
			input.ExpressionAttributeValues = values
		}
	}

	err := t.project(func(proj string, names map[string]string) {
		input.Select = types.SelectSpecificAttributes
		input.ProjectionExpression = aws.String(proj)
		input.ExpressionAttributeNames = names
	})
	if err != nil {
		return nil, t.queryError("scan", options.Filter, "failed to build projection").withCause(err)
	}

	if options.Limit > 0 {
		input.Limit = aws.Int32(int32(options.Limit))
	}
	if input.ExclusiveStartKey, err = t.tokens.StartKey(ctx, options.StartToken); err != nil {
		e := t.queryError("scan", options.Filter, "invalid start token").withCause(err)
		e.Validation = true
		return nil, e
	}

	t.logger.DebugContext(ctx, "scan", "index", idx.Name, "filter", filterExpr)
	return t.cursor(ctx, scanPager{dynamodb.NewScanPaginator(t.client, input)}, "scan", filterExpr, idx, input.ExclusiveStartKey), nil
}

func (t *Table) resolveIndex(key Condition, attrs []string, options QueryOptions) (Index, error) {
	switch {
	case options.Index != nil:
		return *options.Index, nil
	case options.IndexName != "":
		idx, ok := t.Index(options.IndexName)
		if !ok {
			return Index{}, t.queryError("query", key, "unknown index %q", options.IndexName)
		}
		return idx, nil
	}
	idx, err := ResolveIndex(attrs, t.indexes)
	if err != nil {
		return Index{}, t.queryError("query", key, "cannot resolve index").withCause(err)
	}
	return idx, nil
}

func (t *Table) cursor(ctx context.Context, pages pager, op, expr string, idx Index, start map[string]types.AttributeValue) *Cursor {
	keys := t.PrimaryIndex().Keys()
	for _, k := range idx.Keys() {
		if k != keys[0] && (len(keys) < 2 || k != keys[1]) {
			keys = append(keys, k)
		}
	}
	return &Cursor{
		ctx:    ctx,
		pages:  pages,
		schema: t.schema,
		keys:   keys,
		op:     op,
		expr:   expr,
		logger: t.logger,
		tokens: t.tokens,
		start:  start,
	}
}

// checkLimit rejects page sizes DynamoDB cannot represent.
func (t *Table) checkLimit(op string, c Condition, limit int) error {
	if limit < 0 || limit > math.MaxInt32 {
		e := t.queryError(op, c, "limit %d out of range", limit)
		e.Validation = true
		return e
	}
	return nil
}

// queryError builds an ErrQuery carrying the condition's values as context.
func (t *Table) queryError(op string, c Condition, format string, args ...any) *Error {
	e := newError(ErrQuery, op, format, args...)
	if c.IsSet() {
		e.Message = fmt.Sprintf("%s in %q", e.Message, c.String())
		e.Key = c.Key()
	}
	return e
}

func (i Index) isPrimary() bool { return i.Kind == KindPrimary || i.Name == PrimaryIndexName }
