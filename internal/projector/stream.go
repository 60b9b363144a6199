package projector

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// convertImage turns a stream image into SDK attribute values so the same
// attributevalue decoders used by the store can read it.
func convertImage(image map[string]events.DynamoDBAttributeValue) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		av, err := convertValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func convertValue(v events.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}, nil
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}, nil
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}, nil
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}, nil
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}, nil
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, 0, len(list))
		for i, item := range list {
			av, err := convertValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out = append(out, av)
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		m, err := convertImage(v.Map())
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	default:
		return nil, fmt.Errorf("unsupported stream data type %v", v.DataType())
	}
}

// decodeImage unmarshals a stream image into out (a record struct pointer).
func decodeImage(image map[string]events.DynamoDBAttributeValue, out interface{}) error {
	item, err := convertImage(image)
	if err != nil {
		return err
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return fmt.Errorf("unmarshal stream image: %w", err)
	}
	return nil
}

// sortKey reads sk from the record keys, falling back to the images.
func sortKey(change events.DynamoDBStreamRecord) string {
	for _, image := range []map[string]events.DynamoDBAttributeValue{change.Keys, change.NewImage, change.OldImage} {
		if v, ok := image["sk"]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
	}
	return ""
}

func partitionKey(change events.DynamoDBStreamRecord) string {
	for _, image := range []map[string]events.DynamoDBAttributeValue{change.Keys, change.NewImage, change.OldImage} {
		if v, ok := image["pk"]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
	}
	return ""
}
