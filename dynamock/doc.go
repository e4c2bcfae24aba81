// Package dynamock provides testing utilities for the dynamodel library.
//
// This package includes:
//   - Expectation-based mock DynamoDB client for unit testing
//   - An in-memory DynamoDB backed by BadgerDB
//   - YAML table specs shared by the memory client and DynamoDB Local
//   - Test data seeding helpers
//   - Local DynamoDB integration utilities with automatic cleanup
//
// # Mock Client
//
// The MockClient provides an expectation-based mock implementation where you set
// expectations for specific operations. Any operation without an expectation fails
// the test:
//
//	mock := dynamock.NewMockClient(t)
//	mock.DescribeTableFunc = dynamock.Describe(spec)
//
//	// Set expectation for PutItem
//	mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
//		// Verify the operation parameters
//		return &dynamodb.PutItemOutput{}, nil
//	}
//
// # Table Specs
//
// A TableSpec names a table, its key schema and its secondary indexes:
//
//	name: tracks
//	partitionKey: {name: artist_name, kind: S}
//	sortKey: {name: track_name, kind: S}
//	gsis:
//	  - name: GlobalAlbumAndTrackNameIndex
//	    partitionKey: {name: album_name, kind: S}
//	    sortKey: {name: track_name, kind: S}
//
// # Memory Client
//
// MemoryClient keeps items in an in-memory BadgerDB and evaluates key conditions,
// filters, conditions, update expressions and projections itself. It answers the
// same errors DynamoDB does for failed conditions, unknown tables and malformed
// requests:
//
//	client, spec := dynamock.NewSeededMemoryClient(t, "testdata/tracks.yaml", "testdata/tracks.json")
//	table, err := dynamodel.New(ctx, client, spec.Name, schema)
//
// # Integration Testing
//
// Use the integration utilities for tests with DynamoDB Local. Tests are skipped
// when DynamoDB Local is not running:
//
//	func TestIntegration(t *testing.T) {
//		dynamock.WithDefaultLocalDynamoDB(t, func(local *dynamock.LocalDynamoDB) {
//			dynamock.WithIsolatedTable(t, local, spec, func(tableName string) {
//				// Your integration test code here
//			})
//		})
//	}
//
// To run DynamoDB Local:
//
//	docker run -p 8000:8000 amazon/dynamodb-local
package dynamock
