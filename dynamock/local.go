package dynamock

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DefaultLocalPort is the default port for DynamoDB Local.
const DefaultLocalPort = 8000

// LocalDynamoDB represents a connection to a local DynamoDB instance.
type LocalDynamoDB struct {
	Client   *dynamodb.Client
	Endpoint string
	Port     int
}

// NewLocalClient creates a DynamoDB client configured to connect to a local DynamoDB instance.
// This is useful for integration testing with DynamoDB Local.
//
// Example usage:
//
//	client, err := dynamock.NewLocalClient(ctx, 8000)
//	// Use client with your tests
func NewLocalClient(ctx context.Context, port int) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"), // DynamoDB Local doesn't care about region
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewLocalClientFromConfig(cfg, port), nil
}

// NewLocalClientFromConfig creates a local DynamoDB client using the provided AWS config.
// The endpoint is overridden and credentials are anonymous.
func NewLocalClientFromConfig(cfg aws.Config, port int) *dynamodb.Client {
	cfg.Credentials = aws.AnonymousCredentials{}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("http://localhost:%d", port))
	})
}

// NewLocalDynamoDB creates a LocalDynamoDB instance with the specified port.
// This provides additional utilities beyond just the client.
func NewLocalDynamoDB(ctx context.Context, port int) (*LocalDynamoDB, error) {
	client, err := NewLocalClient(ctx, port)
	if err != nil {
		return nil, err
	}
	return &LocalDynamoDB{
		Client:   client,
		Endpoint: fmt.Sprintf("http://localhost:%d", port),
		Port:     port,
	}, nil
}

// IsAvailable checks if DynamoDB Local is running on the configured port.
func (l *LocalDynamoDB) IsAvailable(ctx context.Context) bool {
	// Try to connect to the port
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", l.Port), 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()

	// Try to list tables to verify it's actually DynamoDB
	_, err = l.Client.ListTables(ctx, &dynamodb.ListTablesInput{})
	return err == nil
}

// WaitForAvailable waits for DynamoDB Local to become available.
// Returns an error if it doesn't become available within the timeout.
func (l *LocalDynamoDB) WaitForAvailable(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if l.IsAvailable(ctx) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("DynamoDB Local not available at %s after %v", l.Endpoint, timeout)
}

// CreateTable creates the table spec describes and waits for it to become active.
func (l *LocalDynamoDB) CreateTable(ctx context.Context, spec TableSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if _, err := l.Client.CreateTable(ctx, spec.CreateTableInput()); err != nil {
		return fmt.Errorf("failed to create table %s: %w", spec.Name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(l.Client)
	err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(spec.Name)}, 30*time.Second)
	if err != nil {
		return fmt.Errorf("table %s did not become active: %w", spec.Name, err)
	}
	return nil
}

// DeleteTable deletes a table and waits for it to be fully deleted.
func (l *LocalDynamoDB) DeleteTable(ctx context.Context, tableName string) error {
	_, err := l.Client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to delete table %s: %w", tableName, err)
	}

	waiter := dynamodb.NewTableNotExistsWaiter(l.Client)
	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, 30*time.Second)
	if err != nil {
		return fmt.Errorf("table %s was not deleted: %w", tableName, err)
	}
	return nil
}

// ListTables returns all table names in the local DynamoDB instance.
func (l *LocalDynamoDB) ListTables(ctx context.Context) ([]string, error) {
	var names []string
	pages := dynamodb.NewListTablesPaginator(l.Client, &dynamodb.ListTablesInput{})
	for pages.HasMorePages() {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		names = append(names, out.TableNames...)
	}
	return names, nil
}

// Cleanup deletes all tables in the local DynamoDB instance.
// This is useful for cleaning up after integration tests.
func (l *LocalDynamoDB) Cleanup(ctx context.Context) error {
	tables, err := l.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tables for cleanup: %w", err)
	}

	for _, tableName := range tables {
		if err := l.DeleteTable(ctx, tableName); err != nil {
			return fmt.Errorf("failed to delete table %s during cleanup: %w", tableName, err)
		}
	}

	return nil
}
