package dynamodel

import (
	"context"
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/nisimpson/dynamodel/dynamock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lastTrack = map[string]types.AttributeValue{
	"artist_name":  &types.AttributeValueMemberS{Value: "AC/DC"},
	"track_name":   &types.AttributeValueMemberS{Value: "Overdose"},
	"track_number": &types.AttributeValueMemberN{Value: "6"},
	"checksum":     &types.AttributeValueMemberB{Value: []byte{0xde, 0xad}},
}

func TestEncodedPaginator(t *testing.T) {
	ctx := context.Background()
	var p EncodedPaginator

	t.Run("round trip", func(t *testing.T) {
		token, err := p.PageCursor(ctx, lastTrack)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		_, err = base64.RawURLEncoding.DecodeString(token)
		assert.NoError(t, err, "tokens are url safe")

		key, err := p.StartKey(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, lastTrack, key)
	})

	t.Run("empty key", func(t *testing.T) {
		token, err := p.PageCursor(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, token)

		key, err := p.StartKey(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, key)
	})

	t.Run("invalid token", func(t *testing.T) {
		_, err := p.StartKey(ctx, "not a token!")
		assert.Error(t, err)

		_, err = p.StartKey(ctx, base64.RawURLEncoding.EncodeToString([]byte("garbage")))
		assert.Error(t, err)
	})
}

func newCursorTable(t *testing.T) *dynamock.MemoryClient {
	t.Helper()
	return dynamock.NewTestMemoryClient(t, dynamock.TableSpec{
		Name:         "cursors",
		PartitionKey: dynamock.KeyDef{Name: CursorAttribute, Kind: "S"},
	})
}

func TestTablePaginator(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("round trip", func(t *testing.T) {
		client := newCursorTable(t)
		p := NewTablePaginator(client, "cursors")
		p.Clock = clock

		token, err := p.PageCursor(ctx, lastTrack)
		require.NoError(t, err)
		_, err = uuid.Parse(token)
		assert.NoError(t, err, "tokens are uuids")

		out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String("cursors"),
			Key:       map[string]types.AttributeValue{CursorAttribute: &types.AttributeValueMemberS{Value: token}},
		})
		require.NoError(t, err)
		assert.Equal(t,
			&types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(24*time.Hour).Unix(), 10)},
			out.Item[CursorExpiration],
		)
		assert.NotContains(t, out.Item, "artist_name", "key values stay server side")

		key, err := p.StartKey(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, lastTrack, key)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		p := NewTablePaginator(newCursorTable(t), "cursors")
		a, err := p.PageCursor(ctx, lastTrack)
		require.NoError(t, err)
		b, err := p.PageCursor(ctx, lastTrack)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("empty key is not stored", func(t *testing.T) {
		client := newCursorTable(t)
		p := NewTablePaginator(client, "cursors")

		token, err := p.PageCursor(ctx, map[string]types.AttributeValue{})
		require.NoError(t, err)
		assert.Empty(t, token)

		key, err := p.StartKey(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, key)

		assert.Zero(t, client.Calls("PutItem"))
		assert.Zero(t, client.Calls("GetItem"))
	})

	t.Run("expired", func(t *testing.T) {
		current := now
		p := NewTablePaginator(newCursorTable(t), "cursors")
		p.TTL = time.Minute
		p.Clock = func() time.Time { return current }

		token, err := p.PageCursor(ctx, lastTrack)
		require.NoError(t, err)

		current = now.Add(time.Minute)
		_, err = p.StartKey(ctx, token)
		require.NoError(t, err)

		current = now.Add(time.Minute + time.Second)
		_, err = p.StartKey(ctx, token)
		assert.ErrorContains(t, err, "expired")
	})

	t.Run("unknown token", func(t *testing.T) {
		p := NewTablePaginator(newCursorTable(t), "cursors")
		_, err := p.StartKey(ctx, uuid.NewString())
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("missing table", func(t *testing.T) {
		p := NewTablePaginator(newCursorTable(t), "sessions")
		_, err := p.PageCursor(ctx, lastTrack)
		assert.Error(t, err)
		_, err = p.StartKey(ctx, "token")
		assert.Error(t, err)
	})
}

func TestDefaultClock(t *testing.T) {
	assert.Equal(t, time.UTC, DefaultClock().Location())
}
