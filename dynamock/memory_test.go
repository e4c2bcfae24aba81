package dynamock

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersYAML = `
name: orders
partitionKey: {name: pk, kind: S}
sortKey: {name: sk, kind: N}
gsis:
  - name: by-status
    partitionKey: {name: status, kind: S}
    sortKey: {name: sk, kind: N}
lsis:
  - name: by-total
    sortKey: {name: total, kind: N}
`

func ordersSpec(t *testing.T) TableSpec {
	t.Helper()
	spec, err := ReadTableSpec(strings.NewReader(ordersYAML))
	require.NoError(t, err)
	return spec
}

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func order(pk, sk, status, total string) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{"pk": s(pk), "sk": n(sk), "total": n(total)}
	if status != "" {
		item["status"] = s(status)
	}
	return item
}

func newOrders(t *testing.T, items ...map[string]types.AttributeValue) *MemoryClient {
	t.Helper()
	client := NewTestMemoryClient(t, ordersSpec(t))
	for _, item := range items {
		_, err := client.PutItem(context.Background(), &dynamodb.PutItemInput{
			TableName: aws.String("orders"),
			Item:      item,
		})
		require.NoError(t, err)
	}
	return client
}

func isValidation(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException"
}

func values(items []map[string]types.AttributeValue, name string) []string {
	var out []string
	for _, item := range items {
		switch v := item[name].(type) {
		case *types.AttributeValueMemberS:
			out = append(out, v.Value)
		case *types.AttributeValueMemberN:
			out = append(out, v.Value)
		}
	}
	return out
}

func TestMemoryClient_DescribeTable(t *testing.T) {
	t.Run("known table", func(t *testing.T) {
		client := newOrders(t)
		out, err := client.DescribeTable(context.Background(), &dynamodb.DescribeTableInput{TableName: aws.String("orders")})
		require.NoError(t, err)
		assert.Equal(t, "orders", aws.ToString(out.Table.TableName))
		assert.Len(t, out.Table.GlobalSecondaryIndexes, 1)
		assert.Len(t, out.Table.LocalSecondaryIndexes, 1)
		assert.Equal(t, 1, client.Calls("DescribeTable"))
	})

	t.Run("unknown table", func(t *testing.T) {
		client := newOrders(t)
		_, err := client.DescribeTable(context.Background(), &dynamodb.DescribeTableInput{TableName: aws.String("missing")})
		var rnfe *types.ResourceNotFoundException
		assert.ErrorAs(t, err, &rnfe)
	})

	t.Run("create table", func(t *testing.T) {
		client := NewTestMemoryClient(t)
		_, err := client.CreateTable(context.Background(), ordersSpec(t).CreateTableInput())
		require.NoError(t, err)
		AssertTableExists(t, client, "orders")

		_, err = client.CreateTable(context.Background(), ordersSpec(t).CreateTableInput())
		var riue *types.ResourceInUseException
		assert.ErrorAs(t, err, &riue)
	})
}

func TestMemoryClient_GetItem(t *testing.T) {
	ctx := context.Background()

	t.Run("projection", func(t *testing.T) {
		client := newOrders(t, order("user#1", "1", "OPEN", "9.5"))
		out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:                aws.String("orders"),
			Key:                      map[string]types.AttributeValue{"pk": s("user#1"), "sk": n("1.0")},
			ProjectionExpression:     aws.String("#0, total"),
			ExpressionAttributeNames: map[string]string{"#0": "status"},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]types.AttributeValue{"status": s("OPEN"), "total": n("9.5")}, out.Item)
	})

	t.Run("missing item", func(t *testing.T) {
		client := newOrders(t)
		out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String("orders"),
			Key:       map[string]types.AttributeValue{"pk": s("user#1"), "sk": n("1")},
		})
		require.NoError(t, err)
		assert.Empty(t, out.Item)
	})

	t.Run("incomplete key", func(t *testing.T) {
		client := newOrders(t)
		_, err := client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String("orders"),
			Key:       map[string]types.AttributeValue{"pk": s("user#1")},
		})
		assert.True(t, isValidation(err), "got %v", err)
	})

	t.Run("unused attribute name", func(t *testing.T) {
		client := newOrders(t)
		_, err := client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:                aws.String("orders"),
			Key:                      map[string]types.AttributeValue{"pk": s("user#1"), "sk": n("1")},
			ProjectionExpression:     aws.String("total"),
			ExpressionAttributeNames: map[string]string{"#0": "status"},
		})
		assert.True(t, isValidation(err), "got %v", err)
	})
}

func TestMemoryClient_PutItem(t *testing.T) {
	ctx := context.Background()

	t.Run("condition failure", func(t *testing.T) {
		client := newOrders(t, order("user#1", "1", "OPEN", "10"))
		_, err := client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String("orders"),
			Item:                order("user#1", "1", "CLOSED", "10"),
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		})
		var ccfe *types.ConditionalCheckFailedException
		assert.ErrorAs(t, err, &ccfe)
	})

	t.Run("condition on stored values", func(t *testing.T) {
		client := newOrders(t, order("user#1", "1", "OPEN", "10"))
		_, err := client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 aws.String("orders"),
			Item:                      order("user#1", "1", "CLOSED", "10"),
			ConditionExpression:       aws.String("status = :status AND total BETWEEN :lo AND :hi"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":status": s("OPEN"), ":lo": n("5"), ":hi": n("10.00")},
			ReturnConsumedCapacity:    types.ReturnConsumedCapacityTotal,
		})
		require.NoError(t, err)
	})

	t.Run("key type mismatch", func(t *testing.T) {
		client := newOrders(t)
		_, err := client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("orders"),
			Item:      map[string]types.AttributeValue{"pk": s("user#1"), "sk": s("1")},
		})
		assert.True(t, isValidation(err), "got %v", err)
	})

	t.Run("missing key", func(t *testing.T) {
		client := newOrders(t)
		_, err := client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("orders"),
			Item:      map[string]types.AttributeValue{"pk": s("user#1")},
		})
		assert.True(t, isValidation(err), "got %v", err)
	})
}

func TestMemoryClient_UpdateItem(t *testing.T) {
	ctx := context.Background()
	key := map[string]types.AttributeValue{"pk": s("user#1"), "sk": n("1")}

	t.Run("set and remove", func(t *testing.T) {
		client := newOrders(t, order("user#1", "1", "OPEN", "10"))
		out, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String("orders"),
			Key:                       key,
			UpdateExpression:          aws.String("SET total = total + :inc, note = :note REMOVE status"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":inc": n("2.5"), ":note": s("gift")},
			ReturnValues:              types.ReturnValueAllNew,
		})
		require.NoError(t, err)
		assert.Equal(t, n("12.5"), out.Attributes["total"])
		assert.Equal(t, s("gift"), out.Attributes["note"])
		assert.NotContains(t, out.Attributes, "status")
	})

	t.Run("upserts missing item", func(t *testing.T) {
		client := newOrders(t)
		_, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String("orders"),
			Key:                       key,
			UpdateExpression:          aws.String("SET total = if_not_exists(total, :zero)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":zero": n("0")},
		})
		require.NoError(t, err)

		out, err := client.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String("orders"), Key: key})
		require.NoError(t, err)
		assert.Equal(t, n("0"), out.Item["total"])
	})

	t.Run("key attribute", func(t *testing.T) {
		client := newOrders(t, order("user#1", "1", "OPEN", "10"))
		_, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String("orders"),
			Key:                       key,
			UpdateExpression:          aws.String("SET pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":pk": s("user#2")},
		})
		assert.True(t, isValidation(err), "got %v", err)
	})

	t.Run("undefined placeholder", func(t *testing.T) {
		client := newOrders(t, order("user#1", "1", "OPEN", "10"))
		_, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:        aws.String("orders"),
			Key:              key,
			UpdateExpression: aws.String("SET total = :total"),
		})
		assert.True(t, isValidation(err), "got %v", err)
	})
}

func TestMemoryClient_Query(t *testing.T) {
	ctx := context.Background()
	seed := func(t *testing.T) *MemoryClient {
		return newOrders(t,
			order("user#1", "3", "OPEN", "30"),
			order("user#1", "1", "CLOSED", "5"),
			order("user#1", "2", "OPEN", "12"),
			order("user#1", "10", "", "1"),
			order("user#2", "1", "OPEN", "7"),
		)
	}
	pk := map[string]types.AttributeValue{":pk": s("user#1")}

	t.Run("numeric sort order", func(t *testing.T) {
		out, err := seed(t).Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String("orders"),
			KeyConditionExpression:    aws.String("pk = :pk"),
			ExpressionAttributeValues: pk,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3", "10"}, values(out.Items, "sk"))
		assert.Nil(t, out.LastEvaluatedKey)
	})

	t.Run("descending with sort key condition", func(t *testing.T) {
		out, err := seed(t).Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String("orders"),
			KeyConditionExpression:    aws.String("pk = :pk AND sk >= :sk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":pk": s("user#1"), ":sk": n("2")},
			ScanIndexForward:          aws.Bool(false),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"10", "3", "2"}, values(out.Items, "sk"))
	})

	t.Run("pagination", func(t *testing.T) {
		client := seed(t)
		input := &dynamodb.QueryInput{
			TableName:                 aws.String("orders"),
			KeyConditionExpression:    aws.String("pk = :pk"),
			ExpressionAttributeValues: pk,
			Limit:                     aws.Int32(3),
		}
		var pages [][]string
		paginator := dynamodb.NewQueryPaginator(client, input)
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx)
			require.NoError(t, err)
			pages = append(pages, values(out.Items, "sk"))
		}
		assert.Equal(t, [][]string{{"1", "2", "3"}, {"10"}}, pages)
	})

	t.Run("limit counts filtered items", func(t *testing.T) {
		out, err := seed(t).Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String("orders"),
			KeyConditionExpression:    aws.String("pk = :pk"),
			FilterExpression:          aws.String("status = :open"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":pk": s("user#1"), ":open": s("OPEN")},
			Limit:                     aws.Int32(2),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"2"}, values(out.Items, "sk"))
		assert.Equal(t, int32(2), out.ScannedCount)
		assert.Equal(t, map[string]types.AttributeValue{"pk": s("user#1"), "sk": n("2")}, out.LastEvaluatedKey)
	})

	t.Run("global index is sparse", func(t *testing.T) {
		out, err := seed(t).Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String("orders"),
			IndexName:                 aws.String("by-status"),
			KeyConditionExpression:    aws.String("status = :open"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":open": s("OPEN")},
		})
		require.NoError(t, err)
		assert.Len(t, out.Items, 3)
	})

	t.Run("local index order", func(t *testing.T) {
		out, err := seed(t).Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String("orders"),
			IndexName:                 aws.String("by-total"),
			KeyConditionExpression:    aws.String("pk = :pk AND total < :max"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":pk": s("user#1"), ":max": n("20")},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "5", "12"}, values(out.Items, "total"))
	})

	t.Run("invalid key conditions", func(t *testing.T) {
		client := seed(t)
		for _, expr := range []string{
			"sk = :sk",
			"pk = :pk OR sk = :sk",
			"pk = :pk AND contains(sk, :sk)",
			"pk = :pk AND total = :sk",
			"pk <> :pk",
		} {
			_, err := client.Query(ctx, &dynamodb.QueryInput{
				TableName:                 aws.String("orders"),
				KeyConditionExpression:    aws.String(expr),
				ExpressionAttributeValues: map[string]types.AttributeValue{":pk": s("user#1"), ":sk": n("1")},
			})
			assert.True(t, isValidation(err), "%s: got %v", expr, err)
		}
	})

	t.Run("unknown index", func(t *testing.T) {
		_, err := seed(t).Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String("orders"),
			IndexName:                 aws.String("nope"),
			KeyConditionExpression:    aws.String("pk = :pk"),
			ExpressionAttributeValues: pk,
		})
		assert.True(t, isValidation(err), "got %v", err)
	})
}

func TestMemoryClient_Scan(t *testing.T) {
	ctx := context.Background()
	client := newOrders(t,
		order("user#2", "1", "OPEN", "7"),
		order("user#1", "2", "CLOSED", "12"),
		order("user#1", "1", "OPEN", "5"),
	)

	t.Run("filter", func(t *testing.T) {
		out, err := client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String("orders"),
			FilterExpression:          aws.String("NOT (status = :closed) AND begins_with(pk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":closed": s("CLOSED"), ":prefix": s("user#")},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"user#1", "user#2"}, values(out.Items, "pk"))
	})

	t.Run("pages", func(t *testing.T) {
		var all []string
		paginator := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
			TableName: aws.String("orders"),
			Limit:     aws.Int32(1),
		})
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx)
			require.NoError(t, err)
			all = append(all, values(out.Items, "total")...)
		}
		assert.Equal(t, []string{"5", "12", "7"}, all)
	})

	t.Run("count", func(t *testing.T) {
		out, err := client.Scan(ctx, &dynamodb.ScanInput{
			TableName: aws.String("orders"),
			Select:    types.SelectCount,
		})
		require.NoError(t, err)
		assert.Nil(t, out.Items)
		assert.Equal(t, int32(3), out.Count)
	})
}
