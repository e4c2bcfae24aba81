package dynamodel

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Table binds a schema to one DynamoDB table. Its key schema and indexes are read
// once by New and never change; a Table is safe for concurrent use.
type Table struct {
	name    string
	client  Client
	schema  *Schema
	indexes []Index
	logger  *slog.Logger
	tokens  Paginator
}

// New describes tableName and binds it to schema. It fails with ErrConfiguration
// when the table does not exist or its description has no key schema, and with
// ErrAttribute when the schema does not declare the table's key attributes with
// matching types.
func New(ctx context.Context, client Client, tableName string, schema *Schema, opts ...func(*Options)) (*Table, error) {
	options := newOptions(opts)

	out, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		if isTableNotFound(err) {
			return nil, newError(ErrConfiguration, "describe table", "table %q not found", tableName).withCause(err)
		}
		return nil, newError(ErrConfiguration, "describe table", "failed to describe table %q", tableName).withCause(err)
	}

	indexes, err := indexesFromDescription(out.Table)
	if err != nil {
		return nil, err
	}

	t := &Table{
		name:    tableName,
		client:  client,
		schema:  schema,
		indexes: indexes,
		logger:  options.Logger.With("table", tableName),
		tokens:  options.Paginator,
	}
	if err := t.validateKeys(out.Table.AttributeDefinitions); err != nil {
		return nil, err
	}
	return t, nil
}

// validateKeys checks the schema declares the primary key attributes with the types
// the table defines for them.
func (t *Table) validateKeys(defs []types.AttributeDefinition) error {
	declared := make(map[string]types.ScalarAttributeType, len(defs))
	for _, def := range defs {
		declared[aws.ToString(def.AttributeName)] = def.AttributeType
	}

	for _, key := range t.PrimaryIndex().Keys() {
		if !t.schema.Has(key) {
			return newError(ErrAttribute, "new table", "schema %q does not declare key attribute %q of table %q", t.schema.name, key, t.name)
		}
		want, ok := declared[key]
		if got := t.schema.Attr(key).Type(); ok && !got.Is(string(want)) {
			return newError(ErrAttribute, "new table", "key attribute %q is %s in schema %q but %s in table %q", key, got, t.schema.name, want, t.name)
		}
	}
	return nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Schema returns the bound schema.
func (t *Table) Schema() *Schema { return t.schema }

// Indexes returns every index in declaration order, primary first.
func (t *Table) Indexes() []Index { return append([]Index(nil), t.indexes...) }

// Index returns the index registered under name.
func (t *Table) Index(name string) (Index, bool) {
	for _, idx := range t.indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// PrimaryIndex returns the table's primary key.
func (t *Table) PrimaryIndex() Index { return t.indexes[0] }

// PartitionKey returns the primary partition key attribute.
func (t *Table) PartitionKey() string { return t.indexes[0].PartitionKey }

// SortKey returns the primary sort key attribute, or the empty string.
func (t *Table) SortKey() string { return t.indexes[0].SortKey }

// AvailableIndexes returns the indexes whose key attributes the schema declares.
func (t *Table) AvailableIndexes() []Index {
	var out []Index
	for _, idx := range t.indexes {
		if idx.CoveredBy(t.schema) {
			out = append(out, idx)
		}
	}
	return out
}

// Get looks an item up by its primary key values, partition key first.
func (t *Table) Get(ctx context.Context, keys ...any) (*Item, error) {
	return t.get(ctx, false, keys)
}

// GetConsistent is Get with a strongly consistent read.
func (t *Table) GetConsistent(ctx context.Context, keys ...any) (*Item, error) {
	return t.get(ctx, true, keys)
}

func (t *Table) get(ctx context.Context, consistent bool, keys []any) (*Item, error) {
	primary := t.PrimaryIndex()
	names := primary.Keys()

	attempted := make(map[string]any, len(keys))
	for n, v := range keys {
		if n < len(names) {
			attempted[names[n]] = v
		}
	}

	if len(keys) != len(names) {
		e := newError(ErrQuery, "get item", "table %q needs %d key values %q, got %d", t.name, len(names), names, len(keys))
		e.Validation = true
		return nil, e.withKey(attempted)
	}

	key := make(map[string]types.AttributeValue, len(names))
	for n, name := range names {
		av, err := t.schema.Attr(name).Extract(keys[n])
		if err != nil {
			e := newError(ErrQuery, "get item", "invalid value for key attribute %q", name).withKey(attempted).withCause(err)
			e.Validation = true
			return nil, e
		}
		key[name] = av
	}

	input := &dynamodb.GetItemInput{
		TableName:      aws.String(t.name),
		Key:            key,
		ConsistentRead: aws.Bool(consistent),
	}
	if err := t.project(func(proj string, names map[string]string) {
		input.ProjectionExpression = aws.String(proj)
		input.ExpressionAttributeNames = names
	}); err != nil {
		return nil, newError(ErrQuery, "get item", "failed to build projection").withCause(err)
	}

	t.logger.DebugContext(ctx, "get item", "key", attempted, "consistent", consistent)
	out, err := t.client.GetItem(ctx, input)
	if err != nil {
		t.logger.WarnContext(ctx, "get item failed", "key", attempted, "error", err)
		e := newError(ErrQuery, "get item", "retrieving item with key %v failed: %s", attempted, storeMessage(err))
		e.Validation = isValidationError(err)
		return nil, e.withKey(attempted).withCause(err)
	}
	if len(out.Item) == 0 {
		return nil, newError(ErrNotFound, "get item", "no %s item in table %q matches key %v", t.schema.name, t.name, attempted).withKey(attempted)
	}

	item, err := t.schema.Hydrate(out.Item)
	if err != nil {
		return nil, newError(ErrQuery, "get item", "failed to hydrate item").withKey(attempted).withCause(err)
	}
	return item, nil
}

// project builds a projection over every schema attribute.
func (t *Table) project(apply func(expr string, names map[string]string)) error {
	names := t.schema.Names()
	if len(names) == 0 {
		return nil
	}
	proj := expression.NamesList(expression.Name(names[0]))
	for _, name := range names[1:] {
		proj = proj.AddNames(expression.Name(name))
	}
	expr, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return err
	}
	apply(aws.ToString(expr.Projection()), expr.Names())
	return nil
}

// Put writes the whole item, replacing any stored item with the same key. When cond
// is set the write only happens if it holds; a failed condition returns false and
// no error. On success the item becomes CLEAN.
func (t *Table) Put(ctx context.Context, item *Item, cond Condition) (bool, error) {
	if item == nil || item.schema != t.schema {
		e := newError(ErrPut, "put item", "item does not belong to schema %q", t.schema.name)
		e.Validation = true
		return false, e
	}

	wire, err := item.Extract()
	if err != nil {
		e := newError(ErrPut, "put item", "invalid %s item", t.schema.name).withCause(err)
		e.Validation = true
		return false, e
	}
	if _, err := item.Key(t.PrimaryIndex()); err != nil {
		e := newError(ErrPut, "put item", "invalid key").withCause(err)
		e.Validation = true
		return false, e
	}

	input := &dynamodb.PutItemInput{
		TableName:              aws.String(t.name),
		Item:                   wire,
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}
	if cond.IsSet() {
		expr, values, err := cond.Render()
		if err != nil {
			e := newError(ErrPut, "put item", "invalid condition").withCause(err)
			e.Validation = true
			return false, e
		}
		input.ConditionExpression = aws.String(expr)
		if len(values) > 0 {
			input.ExpressionAttributeValues = values
		}
	}

	t.logger.DebugContext(ctx, "put item", "condition", aws.ToString(input.ConditionExpression))
	out, err := t.client.PutItem(ctx, input)
	if err != nil {
		if isConditionFailed(err) {
			t.logger.DebugContext(ctx, "put item condition failed", "condition", aws.ToString(input.ConditionExpression))
			return false, nil
		}
		t.logger.WarnContext(ctx, "put item failed", "error", err)
		e := newError(ErrPut, "put item", "%s", storeMessage(err)).withCause(err)
		e.Validation = isValidationError(err)
		return false, e.withKey(t.keyOf(item))
	}
	t.logCapacity(ctx, "put item", out.ConsumedCapacity)

	item.commit()
	return true, nil
}

// Update writes the item's pending changes with a single UpdateItem request and
// marks it CLEAN. An item without pending changes is not written and Update returns
// false. Updating a NEW item or changing a key attribute fails with ErrUpdate.
func (t *Table) Update(ctx context.Context, item *Item) (bool, error) {
	if item == nil || item.schema != t.schema {
		return false, newError(ErrUpdate, "update item", "item does not belong to schema %q", t.schema.name)
	}
	if item.IsNew() {
		return false, newError(ErrUpdate, "update item", "%s item was never persisted, use Put", t.schema.name)
	}
	if !item.IsDirty() {
		return false, nil
	}

	primary := t.PrimaryIndex()
	for _, c := range item.changes {
		if c.Attribute == primary.PartitionKey || c.Attribute == primary.SortKey {
			e := newError(ErrUpdate, "update item", "key attribute %q cannot be updated", c.Attribute)
			e.Validation = true
			return false, e.withKey(t.keyOf(item))
		}
	}

	key, err := item.Key(primary)
	if err != nil {
		e := newError(ErrUpdate, "update item", "invalid key").withCause(err)
		e.Validation = true
		return false, e
	}
	expr, values, err := updateExpression(item)
	if err != nil {
		e := newError(ErrUpdate, "update item", "invalid change").withKey(t.keyOf(item)).withCause(err)
		e.Validation = true
		return false, e
	}

	input := &dynamodb.UpdateItemInput{
		TableName:              aws.String(t.name),
		Key:                    key,
		UpdateExpression:       aws.String(expr),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityIndexes,
	}
	if len(values) > 0 {
		input.ExpressionAttributeValues = values
	}

	t.logger.DebugContext(ctx, "update item", "expression", expr)
	out, err := t.client.UpdateItem(ctx, input)
	if err != nil {
		t.logger.WarnContext(ctx, "update item failed", "expression", expr, "error", err)
		e := newError(ErrUpdate, "update item", "%s", storeMessage(err)).withCause(err)
		e.Validation = isValidationError(err)
		return false, e.withKey(t.keyOf(item))
	}
	t.logCapacity(ctx, "update item", out.ConsumedCapacity)

	item.commit()
	return true, nil
}

// Save puts NEW items and updates persisted ones.
func (t *Table) Save(ctx context.Context, item *Item) (bool, error) {
	if item != nil && item.IsNew() {
		return t.Put(ctx, item, Condition{})
	}
	return t.Update(ctx, item)
}

// keyOf returns the item's primary key values for error context. Persisted items
// report the key they were stored under.
func (t *Table) keyOf(item *Item) map[string]any {
	key := make(map[string]any, 2)
	for _, name := range t.PrimaryIndex().Keys() {
		if v, ok := item.storedValue(name); ok {
			key[name] = v
		}
	}
	return key
}

func (t *Table) logCapacity(ctx context.Context, op string, cc *types.ConsumedCapacity) {
	if cc == nil {
		return
	}
	t.logger.DebugContext(ctx, "consumed capacity", "op", op, "units", aws.ToFloat64(cc.CapacityUnits))
}
