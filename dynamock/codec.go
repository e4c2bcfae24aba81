package dynamock

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func init() {
	// Register types for gob encoding
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

// encodeItem serializes an item for storage.
func encodeItem(item map[string]types.AttributeValue) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(item); err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeItem deserializes a stored item.
func decodeItem(data []byte) (map[string]types.AttributeValue, error) {
	var item map[string]types.AttributeValue
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return item, nil
}

// memberType names the wire type of av as DynamoDB reports it in errors.
func memberType(av types.AttributeValue) string {
	switch av.(type) {
	case *types.AttributeValueMemberS:
		return "S"
	case *types.AttributeValueMemberN:
		return "N"
	case *types.AttributeValueMemberB:
		return "B"
	case *types.AttributeValueMemberBOOL:
		return "BOOL"
	case *types.AttributeValueMemberNULL:
		return "NULL"
	case *types.AttributeValueMemberSS:
		return "SS"
	case *types.AttributeValueMemberNS:
		return "NS"
	case *types.AttributeValueMemberBS:
		return "BS"
	case *types.AttributeValueMemberM:
		return "M"
	case *types.AttributeValueMemberL:
		return "L"
	}
	return fmt.Sprintf("%T", av)
}
