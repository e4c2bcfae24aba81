package dynamock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type DynamoDBAPICall[T, U any] = func(context.Context, *T, ...func(*dynamodb.Options)) (*U, error)

// DynamoDBAPI defines the DynamoDB operations a dynamodel table issues.
type DynamoDBAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// MockClient is a simple expectation-based mock for DynamoDB operations.
// Every call fails the test unless the matching func is replaced.
type MockClient struct {
	DescribeTableFunc DynamoDBAPICall[dynamodb.DescribeTableInput, dynamodb.DescribeTableOutput]
	GetFunc           DynamoDBAPICall[dynamodb.GetItemInput, dynamodb.GetItemOutput]
	PutFunc           DynamoDBAPICall[dynamodb.PutItemInput, dynamodb.PutItemOutput]
	UpdateFunc        DynamoDBAPICall[dynamodb.UpdateItemInput, dynamodb.UpdateItemOutput]
	QueryFunc         DynamoDBAPICall[dynamodb.QueryInput, dynamodb.QueryOutput]
	ScanFunc          DynamoDBAPICall[dynamodb.ScanInput, dynamodb.ScanOutput]
}

// Ensure MockClient implements DynamoDBAPI
var _ DynamoDBAPI = (*MockClient)(nil)

// NewMockClient creates a new mock DynamoDB client that fails t on any call.
func NewMockClient(t testing.TB) *MockClient {
	return &MockClient{
		DescribeTableFunc: defaultFunc[dynamodb.DescribeTableInput, dynamodb.DescribeTableOutput](t, "DescribeTable"),
		GetFunc:           defaultFunc[dynamodb.GetItemInput, dynamodb.GetItemOutput](t, "GetItem"),
		PutFunc:           defaultFunc[dynamodb.PutItemInput, dynamodb.PutItemOutput](t, "PutItem"),
		UpdateFunc:        defaultFunc[dynamodb.UpdateItemInput, dynamodb.UpdateItemOutput](t, "UpdateItem"),
		QueryFunc:         defaultFunc[dynamodb.QueryInput, dynamodb.QueryOutput](t, "Query"),
		ScanFunc:          defaultFunc[dynamodb.ScanInput, dynamodb.ScanOutput](t, "Scan"),
	}
}

func defaultFunc[T, U any](t testing.TB, op string) DynamoDBAPICall[T, U] {
	return func(ctx context.Context, params *T, optFns ...func(*dynamodb.Options)) (*U, error) {
		t.Helper()
		t.Fatalf("unexpected call to %s", op)
		return nil, nil
	}
}

// Describe returns a DescribeTable func that always answers with spec's description.
func Describe(spec TableSpec) DynamoDBAPICall[dynamodb.DescribeTableInput, dynamodb.DescribeTableOutput] {
	return func(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
		return &dynamodb.DescribeTableOutput{Table: spec.Description()}, nil
	}
}

// DescribeTable describes a table.
func (m *MockClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return m.DescribeTableFunc(ctx, params, optFns...)
}

// GetItem retrieves an item from the mock table.
func (m *MockClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return m.GetFunc(ctx, params, optFns...)
}

// PutItem stores an item in the mock table.
func (m *MockClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return m.PutFunc(ctx, params, optFns...)
}

// UpdateItem updates an item in the mock table.
func (m *MockClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return m.UpdateFunc(ctx, params, optFns...)
}

// Query performs a query operation.
func (m *MockClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return m.QueryFunc(ctx, params, optFns...)
}

// Scan performs a scan operation.
func (m *MockClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return m.ScanFunc(ctx, params, optFns...)
}
