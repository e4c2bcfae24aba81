package dynamock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMockClient(t *testing.T) {
	mock := NewMockClient(t)
	require.NotNil(t, mock)

	assert.NotNil(t, mock.DescribeTableFunc, "DescribeTableFunc")
	assert.NotNil(t, mock.PutFunc, "PutFunc")
	assert.NotNil(t, mock.GetFunc, "GetFunc")
	assert.NotNil(t, mock.QueryFunc, "QueryFunc")
	assert.NotNil(t, mock.ScanFunc, "ScanFunc")
	assert.NotNil(t, mock.UpdateFunc, "UpdateFunc")
}

func TestMockClient_PutItem_WithExpectation(t *testing.T) {
	mock := NewMockClient(t)
	ctx := context.Background()

	expectedOutput := &dynamodb.PutItemOutput{}

	mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
		assert.Equal(t, "test-table", aws.ToString(params.TableName))
		return expectedOutput, nil
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String("test-table"),
		Item: map[string]types.AttributeValue{
			"artist_name": &types.AttributeValueMemberS{Value: "AC/DC"},
			"track_name":  &types.AttributeValueMemberS{Value: "Overdose"},
		},
	}

	output, err := mock.PutItem(ctx, input)
	require.NoError(t, err)
	assert.Same(t, expectedOutput, output)
}

func TestMockClient_UpdateItem_WithError(t *testing.T) {
	mock := NewMockClient(t)
	ctx := context.Background()

	expectedError := errors.New("update failed")

	mock.UpdateFunc = func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
		return nil, expectedError
	}

	_, err := mock.UpdateItem(ctx, &dynamodb.UpdateItemInput{TableName: aws.String("test-table")})
	assert.ErrorIs(t, err, expectedError)
}

func TestMockClient_Describe(t *testing.T) {
	mock := NewMockClient(t)
	mock.DescribeTableFunc = Describe(TableSpec{
		Name:         "tracks",
		PartitionKey: KeyDef{Name: "artist_name", Kind: "S"},
		SortKey:      &KeyDef{Name: "track_name", Kind: "S"},
	})

	out, err := mock.DescribeTable(context.Background(), &dynamodb.DescribeTableInput{TableName: aws.String("tracks")})
	require.NoError(t, err)
	assert.Equal(t, "tracks", aws.ToString(out.Table.TableName))
	assert.Len(t, out.Table.KeySchema, 2)
}

func TestMockClient_ImplementsInterface(t *testing.T) {
	var _ DynamoDBAPI = NewMockClient(t)
	var _ DynamoDBAPI = (*dynamodb.Client)(nil)
}
