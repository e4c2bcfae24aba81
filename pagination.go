package dynamodel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/gob"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

func init() {
	// Register DynamoDB types with gob
	gob.Register(map[string]types.AttributeValue{})
	gob.Register(&types.AttributeValueMemberS{})
	gob.Register(&types.AttributeValueMemberN{})
	gob.Register(&types.AttributeValueMemberB{})
	gob.Register(&types.AttributeValueMemberSS{})
	gob.Register(&types.AttributeValueMemberNS{})
	gob.Register(&types.AttributeValueMemberBS{})
	gob.Register(&types.AttributeValueMemberM{})
	gob.Register(&types.AttributeValueMemberL{})
	gob.Register(&types.AttributeValueMemberNULL{})
	gob.Register(&types.AttributeValueMemberBOOL{})
}

// Paginator converts the key a read stopped at into a continuation token for
// clients, and converts client tokens back into start keys.
type Paginator interface {
	// PageCursor generates a token from lastKey. Implementors should return an empty
	// token if lastKey is nil or empty.
	PageCursor(ctx context.Context, lastKey map[string]types.AttributeValue) (string, error)
	// StartKey returns the key cursor was generated from. Implementors should return a
	// nil key if cursor is empty.
	StartKey(ctx context.Context, cursor string) (map[string]types.AttributeValue, error)
}

// EncodedPaginator carries the key inside the token: a gob encoded key map in
// unpadded URL-safe base64. It is the default Paginator.
type EncodedPaginator struct{}

// PageCursor implements Paginator.
func (EncodedPaginator) PageCursor(_ context.Context, lastKey map[string]types.AttributeValue) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}
	data, err := encodeKey(lastKey)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// StartKey implements Paginator.
func (EncodedPaginator) StartKey(_ context.Context, cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return decodeKey(data)
}

func encodeKey(key map[string]types.AttributeValue) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(key); err != nil {
		return nil, fmt.Errorf("failed to encode last key: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeKey(data []byte) (map[string]types.AttributeValue, error) {
	var key map[string]types.AttributeValue
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&key); err != nil {
		return nil, fmt.Errorf("failed to decode last key: %w", err)
	}
	return key, nil
}

// Clock returns the current time.
type Clock func() time.Time

// DefaultClock returns the current UTC time.
func DefaultClock() time.Time {
	return time.Now().UTC()
}

// Attributes of the items a TablePaginator stores.
const (
	CursorAttribute  = "cursor"     // S, partition key
	CursorKey        = "start_key"  // B, gob encoded key
	CursorExpiration = "expires_at" // N, unix seconds; usable as the table's TTL attribute
)

// TablePaginator implements Paginator by storing start keys in a DynamoDB table
// whose partition key is the string attribute "cursor". Tokens are random ids, so
// clients never see key values.
type TablePaginator struct {
	TableName string
	Client    Client
	TTL       time.Duration // Token lifetime. Zero means 24 hours.
	Clock     Clock         // Defaults to DefaultClock
}

// NewTablePaginator creates a paginator storing keys in tableName.
func NewTablePaginator(client Client, tableName string) *TablePaginator {
	return &TablePaginator{TableName: tableName, Client: client}
}

func (p *TablePaginator) now() time.Time {
	if p.Clock == nil {
		return DefaultClock()
	}
	return p.Clock()
}

// PageCursor implements Paginator by putting lastKey under a new id.
func (p *TablePaginator) PageCursor(ctx context.Context, lastKey map[string]types.AttributeValue) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}

	data, err := encodeKey(lastKey)
	if err != nil {
		return "", err
	}
	ttl := p.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	cursor := uuid.NewString()

	_, err = p.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(p.TableName),
		Item: map[string]types.AttributeValue{
			CursorAttribute:  &types.AttributeValueMemberS{Value: cursor},
			CursorKey:        &types.AttributeValueMemberB{Value: data},
			CursorExpiration: &types.AttributeValueMemberN{Value: strconv.FormatInt(p.now().Add(ttl).Unix(), 10)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to store page cursor: %w", err)
	}
	return cursor, nil
}

// StartKey implements Paginator by reading the key stored under cursor. Unknown and
// expired cursors are errors.
func (p *TablePaginator) StartKey(ctx context.Context, cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}

	out, err := p.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(p.TableName),
		Key:            map[string]types.AttributeValue{CursorAttribute: &types.AttributeValueMemberS{Value: cursor}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get page cursor: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("page cursor %q not found", cursor)
	}

	if exp, ok := out.Item[CursorExpiration].(*types.AttributeValueMemberN); ok {
		unix, err := strconv.ParseInt(exp.Value, 10, 64)
		if err == nil && p.now().Unix() > unix {
			return nil, fmt.Errorf("page cursor %q expired", cursor)
		}
	}

	data, ok := out.Item[CursorKey].(*types.AttributeValueMemberB)
	if !ok || len(data.Value) == 0 {
		return nil, fmt.Errorf("page cursor %q has no start key", cursor)
	}
	return decodeKey(data.Value)
}
