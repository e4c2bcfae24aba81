package dynamock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Seeder writes test items into one table.
type Seeder struct {
	client    DynamoDBAPI
	tableName string
}

// NewSeeder creates a new test data seeder.
func NewSeeder(client DynamoDBAPI, tableName string) *Seeder {
	return &Seeder{client: client, tableName: tableName}
}

// Seed marshals each value with attributevalue.MarshalMap and puts it.
func (s *Seeder) Seed(ctx context.Context, items ...any) (int, error) {
	count := 0
	for i, item := range items {
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return count, fmt.Errorf("failed to marshal item at index %d: %w", i, err)
		}
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      av,
		})
		if err != nil {
			return count, fmt.Errorf("failed to seed item at index %d: %w", i, err)
		}
		count++
	}
	return count, nil
}

// SeedJSON reads a JSON array of objects and puts each object as an item. JSON
// numbers are stored as DynamoDB numbers with their exact text.
// Returns the number of items saved and any errors generated.
func (s *Seeder) SeedJSON(ctx context.Context, r io.Reader) (int, error) {
	var document []map[string]any
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	if err := decoder.Decode(&document); err != nil {
		return 0, fmt.Errorf("failed to parse JSON document: %w", err)
	}

	items := make([]any, len(document))
	for i, obj := range document {
		items[i] = jsonNumbers(obj)
	}
	return s.Seed(ctx, items...)
}

// SeedJSONFile is SeedJSON over the file at path.
func (s *Seeder) SeedJSONFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return s.SeedJSON(ctx, f)
}

// jsonNumbers replaces json.Number values with attributevalue.Number.
func jsonNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		return attributevalue.Number(v.String())
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = jsonNumbers(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = jsonNumbers(e)
		}
		return out
	}
	return v
}

// NewSeededMemoryClient loads the YAML table spec at specPath, creates a memory
// client holding it and seeds it from the JSON file at dataPath. The client is
// closed when the test ends.
func NewSeededMemoryClient(t testing.TB, specPath, dataPath string) (*MemoryClient, TableSpec) {
	t.Helper()
	spec, err := LoadTableSpec(specPath)
	if err != nil {
		t.Fatalf("failed to load table spec: %v", err)
	}
	client := NewTestMemoryClient(t, spec)
	if _, err := NewSeeder(client, spec.Name).SeedJSONFile(context.Background(), dataPath); err != nil {
		t.Fatalf("failed to seed table %s: %v", spec.Name, err)
	}
	return client, spec
}
