package dynamock

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/dgraph-io/badger/v4"
)

// MemoryClient is an in-process DynamoDB backed by an in-memory BadgerDB. It answers
// DescribeTable, CreateTable, GetItem, PutItem, UpdateItem, Query and Scan for the
// tables it was given, evaluating expressions with the rules DynamoDB applies.
//
// Differences from DynamoDB: pages are not capped at 1 MB, and LastEvaluatedKey is
// only returned when more items remain.
type MemoryClient struct {
	db     *badger.DB
	mu     sync.RWMutex
	tables map[string]*memoryTable
	calls  map[string]int
}

var _ DynamoDBAPI = (*MemoryClient)(nil)

type memoryTable struct {
	spec TableSpec
}

// NewMemoryClient opens an empty in-memory store holding the given tables.
func NewMemoryClient(specs ...TableSpec) (*MemoryClient, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	m := &MemoryClient{
		db:     db,
		tables: make(map[string]*memoryTable),
		calls:  make(map[string]int),
	}
	for _, spec := range specs {
		if err := m.AddTable(spec); err != nil {
			db.Close()
			return nil, err
		}
	}
	return m, nil
}

// NewTestMemoryClient is NewMemoryClient for tests. The store is closed when the
// test ends.
func NewTestMemoryClient(t testing.TB, specs ...TableSpec) *MemoryClient {
	t.Helper()
	m, err := NewMemoryClient(specs...)
	if err != nil {
		t.Fatalf("failed to create memory client: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// Close releases the store.
func (m *MemoryClient) Close() error {
	return m.db.Close()
}

// AddTable registers an empty table.
func (m *MemoryClient) AddTable(spec TableSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[spec.Name]; ok {
		return &types.ResourceInUseException{Message: aws.String("Table already exists: " + spec.Name)}
	}
	m.tables[spec.Name] = &memoryTable{spec: spec}
	return nil
}

// Calls returns how many requests of the named operation, such as "PutItem", the
// client has served.
func (m *MemoryClient) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

func (m *MemoryClient) count(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}

func (m *MemoryClient) table(name *string) (*memoryTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[aws.ToString(name)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}
	return t, nil
}

func validationError(format string, args ...any) error {
	return &smithy.GenericAPIError{
		Code:    "ValidationException",
		Message: fmt.Sprintf(format, args...),
		Fault:   smithy.FaultClient,
	}
}

// storage keys

const keySep = "\x00"

func (t *memoryTable) keyDefs() []KeyDef {
	defs := []KeyDef{t.spec.PartitionKey}
	if t.spec.SortKey != nil {
		defs = append(defs, *t.spec.SortKey)
	}
	return defs
}

func keyPart(item map[string]types.AttributeValue, def KeyDef) (string, error) {
	av, ok := item[def.Name]
	if !ok {
		return "", validationError("One or more parameter values were invalid: Missing the key %s in the item", def.Name)
	}
	kind := def.Kind
	if kind == "" {
		kind = "S"
	}
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		if kind == "S" {
			if v.Value == "" {
				return "", validationError("One or more parameter values are not valid. The AttributeValue for a key attribute cannot contain an empty string value. Key: %s", def.Name)
			}
			return "S" + v.Value, nil
		}
	case *types.AttributeValueMemberN:
		if kind == "N" {
			r, ok := new(big.Rat).SetString(v.Value)
			if !ok {
				return "", validationError("The parameter cannot be converted to a numeric value: %s", v.Value)
			}
			return "N" + ratString(r), nil
		}
	case *types.AttributeValueMemberB:
		if kind == "B" {
			return "B" + base64.StdEncoding.EncodeToString(v.Value), nil
		}
	}
	return "", validationError("One or more parameter values were invalid: Type mismatch for key %s expected: %s actual: %s", def.Name, kind, memberType(av))
}

// storageKey encodes an item's primary key as table, partition and sort parts.
func (t *memoryTable) storageKey(item map[string]types.AttributeValue) ([]byte, error) {
	parts := []string{t.spec.Name}
	for _, def := range t.keyDefs() {
		p, err := keyPart(item, def)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	if len(parts) == 2 {
		parts = append(parts, "")
	}
	return []byte(strings.Join(parts, keySep)), nil
}

func (t *memoryTable) partitionPrefix(value types.AttributeValue) ([]byte, error) {
	p, err := keyPart(map[string]types.AttributeValue{t.spec.PartitionKey.Name: value}, t.spec.PartitionKey)
	if err != nil {
		return nil, err
	}
	return []byte(t.spec.Name + keySep + p + keySep), nil
}

// primaryKey validates that key names exactly the table's key attributes.
func (t *memoryTable) primaryKey(key map[string]types.AttributeValue) ([]byte, error) {
	defs := t.keyDefs()
	if len(key) != len(defs) {
		return nil, validationError("The provided key element does not match the schema")
	}
	for _, def := range defs {
		if _, ok := key[def.Name]; !ok {
			return nil, validationError("The provided key element does not match the schema")
		}
	}
	return t.storageKey(key)
}

// badger access

func (m *MemoryClient) load(key []byte) (map[string]types.AttributeValue, error) {
	var item map[string]types.AttributeValue
	err := m.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			item, err = decodeItem(val)
			return err
		})
	})
	return item, err
}

func (m *MemoryClient) store(key []byte, item map[string]types.AttributeValue) error {
	data, err := encodeItem(item)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (m *MemoryClient) iterate(prefix []byte) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				item, err := decodeItem(val)
				if err != nil {
					return err
				}
				items = append(items, item)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return items, err
}

// expression scope

// exprScope tracks which names and values a request's expressions used.
type exprScope struct {
	names      map[string]string
	values     map[string]types.AttributeValue
	usedNames  map[string]bool
	usedValues map[string]bool
}

func newScope(names map[string]string, values map[string]types.AttributeValue) *exprScope {
	return &exprScope{
		names:      names,
		values:     values,
		usedNames:  make(map[string]bool),
		usedValues: make(map[string]bool),
	}
}

func (s *exprScope) parser(expr string) (*exprParser, error) {
	p, err := newParser(expr, s.names, s.values)
	if err != nil {
		return nil, err
	}
	p.usedNames, p.usedVals = s.usedNames, s.usedValues
	return p, nil
}

func (s *exprScope) condition(expr *string) (condNode, error) {
	if expr == nil {
		return nil, nil
	}
	p, err := s.parser(*expr)
	if err != nil {
		return nil, err
	}
	return p.parseCondition()
}

func (s *exprScope) update(expr string) (updatePlan, error) {
	p, err := s.parser(expr)
	if err != nil {
		return updatePlan{}, err
	}
	return p.parseUpdate()
}

func (s *exprScope) projection(expr *string) ([]string, error) {
	if expr == nil {
		return nil, nil
	}
	p, err := s.parser(*expr)
	if err != nil {
		return nil, err
	}
	return p.parseProjection()
}

func (s *exprScope) checkUnused() error {
	var names, values []string
	for k := range s.names {
		if !s.usedNames[k] {
			names = append(names, k)
		}
	}
	for k := range s.values {
		if !s.usedValues[k] {
			values = append(values, k)
		}
	}
	if len(names) > 0 {
		slices.Sort(names)
		return validationError("Value provided in ExpressionAttributeNames unused in expressions: keys: {%s}", strings.Join(names, ", "))
	}
	if len(values) > 0 {
		slices.Sort(values)
		return validationError("Value provided in ExpressionAttributeValues unused in expressions: keys: {%s}", strings.Join(values, ", "))
	}
	return nil
}

func evalCondition(n condNode, item map[string]types.AttributeValue) (bool, error) {
	if n == nil {
		return true, nil
	}
	return n.eval(item)
}

func project(item map[string]types.AttributeValue, paths []string) map[string]types.AttributeValue {
	if len(paths) == 0 {
		return item
	}
	out := make(map[string]types.AttributeValue, len(paths))
	for _, p := range paths {
		if av, ok := item[p]; ok {
			out[p] = av
		}
	}
	return out
}

func capacity(table string, mode types.ReturnConsumedCapacity, units float64) *types.ConsumedCapacity {
	if mode == "" || mode == types.ReturnConsumedCapacityNone {
		return nil
	}
	return &types.ConsumedCapacity{TableName: aws.String(table), CapacityUnits: aws.Float64(units)}
}

// operations

// DescribeTable describes a registered table.
func (m *MemoryClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	m.count("DescribeTable")
	t, err := m.table(params.TableName)
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: t.spec.Description()}, nil
}

// CreateTable registers the table the request describes.
func (m *MemoryClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	m.count("CreateTable")
	spec, err := SpecFromCreateTable(params)
	if err != nil {
		return nil, validationError("%s", err)
	}
	if err := m.AddTable(spec); err != nil {
		return nil, err
	}
	return &dynamodb.CreateTableOutput{TableDescription: spec.Description()}, nil
}

// GetItem reads one item by primary key.
func (m *MemoryClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.count("GetItem")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := t.primaryKey(params.Key)
	if err != nil {
		return nil, err
	}
	scope := newScope(params.ExpressionAttributeNames, nil)
	paths, err := scope.projection(params.ProjectionExpression)
	if err != nil {
		return nil, err
	}
	if err := scope.checkUnused(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	item, err := m.load(key)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := &dynamodb.GetItemOutput{ConsumedCapacity: capacity(t.spec.Name, params.ReturnConsumedCapacity, 0.5)}
	if item != nil {
		out.Item = project(item, paths)
	}
	return out, nil
}

// PutItem writes an item, evaluating ConditionExpression against the stored one.
func (m *MemoryClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.count("PutItem")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := t.storageKey(params.Item)
	if err != nil {
		return nil, err
	}
	scope := newScope(params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	cond, err := scope.condition(params.ConditionExpression)
	if err != nil {
		return nil, err
	}
	if err := scope.checkUnused(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	old, err := m.load(key)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(cond, old)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	if err := m.store(key, params.Item); err != nil {
		return nil, err
	}

	out := &dynamodb.PutItemOutput{ConsumedCapacity: capacity(t.spec.Name, params.ReturnConsumedCapacity, 1)}
	if params.ReturnValues == types.ReturnValueAllOld && old != nil {
		out.Attributes = old
	}
	return out, nil
}

// UpdateItem applies an update expression, creating the item when it is absent.
func (m *MemoryClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.count("UpdateItem")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := t.primaryKey(params.Key)
	if err != nil {
		return nil, err
	}
	if params.UpdateExpression == nil {
		return nil, validationError("Update expression is required")
	}
	scope := newScope(params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	plan, err := scope.update(*params.UpdateExpression)
	if err != nil {
		return nil, err
	}
	cond, err := scope.condition(params.ConditionExpression)
	if err != nil {
		return nil, err
	}
	if err := scope.checkUnused(); err != nil {
		return nil, err
	}
	for _, def := range t.keyDefs() {
		for _, a := range plan.set {
			if a.path == def.Name {
				return nil, validationError("One or more parameter values were invalid: Cannot update attribute %s. This attribute is part of the key", def.Name)
			}
		}
		if slices.Contains(plan.remove, def.Name) {
			return nil, validationError("One or more parameter values were invalid: Cannot update attribute %s. This attribute is part of the key", def.Name)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	old, err := m.load(key)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(cond, old)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}

	base := old
	if base == nil {
		base = make(map[string]types.AttributeValue)
		for k, v := range params.Key {
			base[k] = v
		}
	}
	updated := make(map[string]types.AttributeValue, len(base))
	for k, v := range base {
		updated[k] = v
	}
	for _, a := range plan.set {
		av, err := a.value.eval(base)
		if err != nil {
			return nil, err
		}
		updated[a.path] = av
	}
	for _, name := range plan.remove {
		delete(updated, name)
	}
	if err := m.store(key, updated); err != nil {
		return nil, err
	}

	out := &dynamodb.UpdateItemOutput{ConsumedCapacity: capacity(t.spec.Name, params.ReturnConsumedCapacity, 1)}
	switch params.ReturnValues {
	case types.ReturnValueAllNew:
		out.Attributes = updated
	case types.ReturnValueAllOld:
		out.Attributes = old
	}
	return out, nil
}

// ordering sorts items by attrs, in priority order.
type ordering struct {
	attrs      []string
	descending bool
}

func newOrdering(descending bool, defs ...*KeyDef) ordering {
	o := ordering{descending: descending}
	for _, d := range defs {
		if d != nil && d.Name != "" && !slices.Contains(o.attrs, d.Name) {
			o.attrs = append(o.attrs, d.Name)
		}
	}
	return o
}

func (o ordering) compare(a, b map[string]types.AttributeValue) int {
	c := 0
	for _, name := range o.attrs {
		x, xok := a[name]
		y, yok := b[name]
		switch {
		case !xok && !yok:
			continue
		case !xok:
			c = -1
		case !yok:
			c = 1
		default:
			c, _ = avCompare(x, y)
		}
		if c != 0 {
			break
		}
	}
	if o.descending {
		return -c
	}
	return c
}

// page applies start key, limit, filter and projection to sorted items. Limit counts
// evaluated items, before the filter.
func page(items []map[string]types.AttributeValue, order ordering, start map[string]types.AttributeValue, limit *int32, filter condNode, paths []string, keys []string) (out []map[string]types.AttributeValue, last map[string]types.AttributeValue, scanned int, err error) {
	if len(start) > 0 {
		n := sort.Search(len(items), func(i int) bool { return order.compare(items[i], start) > 0 })
		items = items[n:]
	}
	if limit != nil && int(*limit) < len(items) {
		lastItem := items[*limit-1]
		items = items[:*limit]
		last = make(map[string]types.AttributeValue, len(keys))
		for _, k := range keys {
			if av, ok := lastItem[k]; ok {
				last[k] = av
			}
		}
	}
	for _, item := range items {
		scanned++
		ok, err := evalCondition(filter, item)
		if err != nil {
			return nil, nil, 0, err
		}
		if ok {
			out = append(out, project(item, paths))
		}
	}
	return out, last, scanned, nil
}

// indexItems returns the items projected into the named index, sorted by the index
// keys and then the table keys.
func (m *MemoryClient) indexItems(t *memoryTable, indexName string, partition types.AttributeValue, descending bool) ([]map[string]types.AttributeValue, ordering, []string, error) {
	pk, sk, ok := t.spec.indexKeys(indexName)
	if !ok {
		return nil, ordering{}, nil, validationError("The table does not have the specified index: %s", indexName)
	}

	prefix := []byte(t.spec.Name + keySep)
	if indexName == "" && partition != nil {
		var err error
		if prefix, err = t.partitionPrefix(partition); err != nil {
			return nil, ordering{}, nil, err
		}
	}
	m.mu.RLock()
	all, err := m.iterate(prefix)
	m.mu.RUnlock()
	if err != nil {
		return nil, ordering{}, nil, err
	}

	var items []map[string]types.AttributeValue
	for _, item := range all {
		if _, ok := item[pk.Name]; !ok {
			continue
		}
		if sk != nil {
			if _, ok := item[sk.Name]; !ok {
				continue
			}
		}
		items = append(items, item)
	}

	var order ordering
	if partition != nil {
		order = newOrdering(descending, sk, &t.spec.PartitionKey, t.spec.SortKey)
	} else {
		order = newOrdering(false, &pk, sk, &t.spec.PartitionKey, t.spec.SortKey)
	}
	sort.SliceStable(items, func(i, j int) bool { return order.compare(items[i], items[j]) < 0 })

	keys := []string{pk.Name}
	if sk != nil {
		keys = append(keys, sk.Name)
	}
	for _, def := range t.keyDefs() {
		if !slices.Contains(keys, def.Name) {
			keys = append(keys, def.Name)
		}
	}
	return items, order, keys, nil
}

func conjuncts(n condNode) []condNode {
	if a, ok := n.(andNode); ok {
		return append(conjuncts(a.left), conjuncts(a.right)...)
	}
	return []condNode{n}
}

// keyPartition checks a key condition only constrains the index keys and returns
// the partition key value.
func keyPartition(n condNode, pk KeyDef, sk *KeyDef) (types.AttributeValue, error) {
	var partition types.AttributeValue
	sortConds := 0
	isSortKey := func(path string) bool { return sk != nil && path == sk.Name }

	for _, c := range conjuncts(n) {
		switch c := c.(type) {
		case compareNode:
			if c.left.value != nil || c.left.size || c.right.value == nil {
				return nil, validationError("Invalid KeyConditionExpression: key conditions must compare a key attribute to a value")
			}
			switch {
			case c.left.path == pk.Name && c.op == "=":
				if partition != nil {
					return nil, validationError("KeyConditionExpressions must only contain one condition per key")
				}
				partition = c.right.value
			case c.left.path == pk.Name:
				return nil, validationError("Query key condition not supported")
			case isSortKey(c.left.path) && c.op != "<>":
				sortConds++
			default:
				return nil, validationError("Query condition missed key schema element: %s", pk.Name)
			}
		case betweenNode:
			if !isSortKey(c.subject.path) {
				return nil, validationError("Query key condition not supported")
			}
			sortConds++
		case funcNode:
			if c.name != "begins_with" || !isSortKey(c.args[0].path) {
				return nil, validationError("Invalid operator used in KeyConditionExpression: %s", c.name)
			}
			sortConds++
		default:
			return nil, validationError("Invalid operator used in KeyConditionExpression: OR or NOT")
		}
	}
	if partition == nil {
		return nil, validationError("Query condition missed key schema element: %s", pk.Name)
	}
	if sortConds > 1 {
		return nil, validationError("KeyConditionExpressions must only contain one condition per key")
	}
	return partition, nil
}

// Query reads the items of one partition of the table or of an index.
func (m *MemoryClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.count("Query")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.table(params.TableName)
	if err != nil {
		return nil, err
	}
	pk, sk, ok := t.spec.indexKeys(aws.ToString(params.IndexName))
	if !ok {
		return nil, validationError("The table does not have the specified index: %s", aws.ToString(params.IndexName))
	}
	if params.KeyConditionExpression == nil {
		return nil, validationError("Either the KeyConditions or KeyConditionExpression parameter must be specified in the request.")
	}
	if params.IndexName != nil && aws.ToBool(params.ConsistentRead) && !t.isLocalIndex(*params.IndexName) {
		return nil, validationError("Consistent reads are not supported on global secondary indexes")
	}

	scope := newScope(params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	keyCond, err := scope.condition(params.KeyConditionExpression)
	if err != nil {
		return nil, err
	}
	partition, err := keyPartition(keyCond, pk, sk)
	if err != nil {
		return nil, err
	}
	filter, err := scope.condition(params.FilterExpression)
	if err != nil {
		return nil, err
	}
	paths, err := scope.projection(params.ProjectionExpression)
	if err != nil {
		return nil, err
	}
	if err := scope.checkUnused(); err != nil {
		return nil, err
	}

	descending := params.ScanIndexForward != nil && !*params.ScanIndexForward
	candidates, order, keys, err := m.indexItems(t, aws.ToString(params.IndexName), partition, descending)
	if err != nil {
		return nil, err
	}
	var matched []map[string]types.AttributeValue
	for _, item := range candidates {
		ok, err := keyCond.eval(item)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, item)
		}
	}

	items, last, scanned, err := page(matched, order, params.ExclusiveStartKey, params.Limit, filter, paths, keys)
	if err != nil {
		return nil, err
	}
	out := &dynamodb.QueryOutput{
		Count:            int32(len(items)),
		ScannedCount:     int32(scanned),
		LastEvaluatedKey: last,
		ConsumedCapacity: capacity(t.spec.Name, params.ReturnConsumedCapacity, 0.5*float64(max(scanned, 1))),
	}
	if params.Select != types.SelectCount {
		out.Items = items
	}
	return out, nil
}

// Scan reads every item of the table or of an index.
func (m *MemoryClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.count("Scan")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := m.table(params.TableName)
	if err != nil {
		return nil, err
	}
	scope := newScope(params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	filter, err := scope.condition(params.FilterExpression)
	if err != nil {
		return nil, err
	}
	paths, err := scope.projection(params.ProjectionExpression)
	if err != nil {
		return nil, err
	}
	if err := scope.checkUnused(); err != nil {
		return nil, err
	}

	candidates, order, keys, err := m.indexItems(t, aws.ToString(params.IndexName), nil, false)
	if err != nil {
		return nil, err
	}
	items, last, scanned, err := page(candidates, order, params.ExclusiveStartKey, params.Limit, filter, paths, keys)
	if err != nil {
		return nil, err
	}
	out := &dynamodb.ScanOutput{
		Count:            int32(len(items)),
		ScannedCount:     int32(scanned),
		LastEvaluatedKey: last,
		ConsumedCapacity: capacity(t.spec.Name, params.ReturnConsumedCapacity, 0.5*float64(max(scanned, 1))),
	}
	if params.Select != types.SelectCount {
		out.Items = items
	}
	return out, nil
}

func (t *memoryTable) isLocalIndex(name string) bool {
	for _, lsi := range t.spec.LSIs {
		if lsi.Name == name {
			return true
		}
	}
	return false
}
