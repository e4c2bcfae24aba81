package dynamock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
)

// TableManager manages DynamoDB tables for testing, providing automatic cleanup.
type TableManager struct {
	local  *LocalDynamoDB
	tables []string // track created tables for cleanup
}

// NewTableManager creates a new table manager for the given local instance.
func NewTableManager(local *LocalDynamoDB) *TableManager {
	return &TableManager{local: local}
}

// CreateTestTable creates the table spec describes and tracks it for cleanup.
func (tm *TableManager) CreateTestTable(ctx context.Context, spec TableSpec) error {
	if err := tm.local.CreateTable(ctx, spec); err != nil {
		return err
	}
	tm.tables = append(tm.tables, spec.Name)
	return nil
}

// Cleanup deletes all tables created by this manager.
func (tm *TableManager) Cleanup(ctx context.Context) error {
	for _, tableName := range tm.tables {
		if err := tm.local.DeleteTable(ctx, tableName); err != nil {
			return fmt.Errorf("failed to delete table %s: %w", tableName, err)
		}
	}
	tm.tables = tm.tables[:0]
	return nil
}

// TableNames returns the names of all tables managed by this manager.
func (tm *TableManager) TableNames() []string {
	return append([]string(nil), tm.tables...)
}

// NewTestTable generates a unique table name for testing.
func NewTestTable(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// WithIsolatedTable runs fn against a copy of spec under a unique table name. The
// table is deleted when fn returns.
func WithIsolatedTable(t *testing.T, local *LocalDynamoDB, spec TableSpec, fn func(tableName string)) {
	t.Helper()
	ctx := context.Background()
	spec.Name = NewTestTable(spec.Name)

	tm := NewTableManager(local)
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := tm.Cleanup(cleanupCtx); err != nil {
			t.Errorf("Failed to cleanup table %s: %v", spec.Name, err)
		}
	}()

	if err := tm.CreateTestTable(ctx, spec); err != nil {
		t.Fatalf("Failed to create test table %s: %v", spec.Name, err)
	}
	fn(spec.Name)
}

// WithLocalDynamoDB runs a test function with a local DynamoDB instance.
// It checks if DynamoDB Local is available and skips the test if not.
func WithLocalDynamoDB(t *testing.T, port int, fn func(local *LocalDynamoDB)) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	local, err := NewLocalDynamoDB(ctx, port)
	if err != nil {
		t.Skipf("DynamoDB Local client unavailable: %v", err)
	}
	if !local.IsAvailable(ctx) {
		t.Skipf("DynamoDB Local not available on port %d", port)
	}
	fn(local)
}

// WithDefaultLocalDynamoDB runs a test function with the default local DynamoDB instance (port 8000).
func WithDefaultLocalDynamoDB(t *testing.T, fn func(local *LocalDynamoDB)) {
	t.Helper()
	WithLocalDynamoDB(t, DefaultLocalPort, fn)
}

// AssertTableExists verifies that a table exists.
func AssertTableExists(t testing.TB, client DynamoDBAPI, tableName string) {
	t.Helper()
	if _, err := describe(client, tableName); err != nil {
		t.Errorf("Table %s does not exist: %v", tableName, err)
	}
}

// AssertTableNotExists verifies that a table does not exist.
func AssertTableNotExists(t testing.TB, client DynamoDBAPI, tableName string) {
	t.Helper()
	if _, err := describe(client, tableName); err == nil {
		t.Errorf("Table %s should not exist but it does", tableName)
	}
}

func describe(client DynamoDBAPI, tableName string) (*dynamodb.DescribeTableOutput, error) {
	return client.DescribeTable(context.Background(), &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
}
