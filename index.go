package dynamodel

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PrimaryIndexName names the table's primary key. DynamoDB index names cannot contain
// '#', so it never collides with a secondary index.
const PrimaryIndexName = "#"

// IndexKind distinguishes the primary key from secondary indexes.
type IndexKind string

const (
	KindPrimary IndexKind = "PRIMARY"
	KindGlobal  IndexKind = "GLOBAL_SECONDARY"
	KindLocal   IndexKind = "LOCAL_SECONDARY"
)

// Index describes the key schema of one physical index.
type Index struct {
	Name         string    // Index name, PrimaryIndexName for the table key
	PartitionKey string    // Partition (hash) key attribute
	SortKey      string    // Sort (range) key attribute, empty if the index has none
	Kind         IndexKind // Primary, global or local
}

// HasSortKey reports whether the index declares a sort key.
func (i Index) HasSortKey() bool { return i.SortKey != "" }

// Keys returns the key attribute names, partition key first.
func (i Index) Keys() []string {
	if i.HasSortKey() {
		return []string{i.PartitionKey, i.SortKey}
	}
	return []string{i.PartitionKey}
}

// CoveredBy reports whether the schema declares every key attribute of the index.
func (i Index) CoveredBy(s *Schema) bool {
	for _, k := range i.Keys() {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

func (i Index) String() string {
	return fmt.Sprintf("%s(%s)", i.Name, strings.Join(i.Keys(), ", "))
}

// ResolveIndex picks the index a key condition over attrs should query. With one
// attribute it returns the first index in declaration order partitioned on it. With
// two it considers indexes whose partition and sort keys are both in attrs and
// prefers the one partitioned on attrs[0], falling back to the first such index.
// Declaration order is the primary index, then global, then local indexes.
func ResolveIndex(attrs []string, indexes []Index) (Index, error) {
	switch len(attrs) {
	case 1:
		for _, idx := range indexes {
			if idx.PartitionKey == attrs[0] {
				return idx, nil
			}
		}
		return Index{}, newError(ErrQuery, "resolve index", "no index for attribute %q", attrs[0])

	case 2:
		var candidates []Index
		for _, idx := range indexes {
			if !idx.HasSortKey() {
				continue
			}
			if !slices.Contains(attrs, idx.PartitionKey) || !slices.Contains(attrs, idx.SortKey) {
				continue
			}
			if idx.PartitionKey == attrs[0] {
				return idx, nil
			}
			candidates = append(candidates, idx)
		}
		if len(candidates) == 0 {
			return Index{}, newError(ErrQuery, "resolve index", "no index for attributes %q", attrs)
		}
		return candidates[0], nil
	}
	return Index{}, newError(ErrQuery, "resolve index", "key condition must reference one or two attributes, got %d", len(attrs))
}

// indexesFromDescription lists the table's indexes in declaration order: primary,
// global secondary and local secondary, each group in DescribeTable order.
func indexesFromDescription(desc *types.TableDescription) ([]Index, error) {
	if desc == nil || len(desc.KeySchema) == 0 {
		return nil, newError(ErrConfiguration, "describe table", "table description has no key schema")
	}

	primary, err := indexFromKeySchema(PrimaryIndexName, KindPrimary, desc.KeySchema)
	if err != nil {
		return nil, err
	}
	indexes := []Index{primary}

	for _, gsi := range desc.GlobalSecondaryIndexes {
		idx, err := indexFromKeySchema(aws.ToString(gsi.IndexName), KindGlobal, gsi.KeySchema)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	for _, lsi := range desc.LocalSecondaryIndexes {
		idx, err := indexFromKeySchema(aws.ToString(lsi.IndexName), KindLocal, lsi.KeySchema)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

func indexFromKeySchema(name string, kind IndexKind, schema []types.KeySchemaElement) (Index, error) {
	idx := Index{Name: name, Kind: kind}
	for _, el := range schema {
		switch el.KeyType {
		case types.KeyTypeHash:
			idx.PartitionKey = aws.ToString(el.AttributeName)
		case types.KeyTypeRange:
			idx.SortKey = aws.ToString(el.AttributeName)
		}
	}
	if name == "" || idx.PartitionKey == "" {
		return Index{}, newError(ErrConfiguration, "describe table", "index %q has no partition key", name)
	}
	return idx, nil
}
