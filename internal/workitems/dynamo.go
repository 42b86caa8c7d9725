package workitems

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

const (
	pkPrefix = "WORKITEM#"
	skMeta   = "META"
)

// DynamoStore implements Store on a single DynamoDB table.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// Compile-time interface check.
var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table. The client
// should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func workItemPK(id string) string {
	return pkPrefix + id
}

func itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: workItemPK(id)},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

// GetWorkItem retrieves a work item by id. Returns nil, nil if absent.
func (s *DynamoStore) GetWorkItem(ctx context.Context, id string) (*WorkItem, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       itemKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem workItem=%s: %w", id, err)
	}
	if result.Item == nil {
		return nil, nil
	}
	var item WorkItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal workItem=%s: %w", id, err)
	}
	return &item, nil
}

// PutWorkItem creates or replaces a work item record.
func (s *DynamoStore) PutWorkItem(ctx context.Context, item *WorkItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal workItem=%s: %w", item.ID, err)
	}
	av["PK"] = &types.AttributeValueMemberS{Value: workItemPK(item.ID)}
	av["SK"] = &types.AttributeValueMemberS{Value: skMeta}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("PutItem workItem=%s: %w", item.ID, err)
	}
	return nil
}

// SetStatus updates only the status field of an existing work item.
func (s *DynamoStore) SetStatus(ctx context.Context, id string, status Status) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              itemKey(id),
		UpdateExpression: strPtr("SET #status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	if err != nil {
		return fmt.Errorf("UpdateItem status workItem=%s: %w", id, err)
	}
	return nil
}

// WriteResult merges the processing result onto the work item. Nil pointer
// fields are removed so a reprocessed item does not keep stale values. The
// update is conditional on the item existing, so a result for an unknown id
// fails instead of upserting a phantom item.
func (s *DynamoStore) WriteResult(ctx context.Context, result *ProcessingResult) error {
	names := map[string]string{
		"#status": "status",
	}
	values := map[string]types.AttributeValue{
		":status":        &types.AttributeValueMemberS{Value: string(result.Status)},
		":correlationId": &types.AttributeValueMemberS{Value: result.CorrelationID},
		":confidence":    &types.AttributeValueMemberN{Value: strconv.FormatFloat(result.ConfidenceScore, 'f', -1, 64)},
		":processedAt":   &types.AttributeValueMemberS{Value: result.ProcessedAt.UTC().Format(time.RFC3339Nano)},
	}
	set := "SET #status = :status, correlationId = :correlationId, confidenceScore = :confidence, processedAt = :processedAt"
	var remove []string

	optional := []struct {
		attr  string
		value *string
	}{
		{"serial", result.Serial},
		{"sku", result.SKU},
		{"family", result.Family},
		{"errorMessage", result.ErrorMessage},
	}
	for _, f := range optional {
		if f.value != nil {
			placeholder := ":" + f.attr
			set += fmt.Sprintf(", %s = %s", f.attr, placeholder)
			values[placeholder] = &types.AttributeValueMemberS{Value: *f.value}
		} else {
			remove = append(remove, f.attr)
		}
	}

	expr := set
	if len(remove) > 0 {
		expr += " REMOVE"
		for i, attr := range remove {
			if i > 0 {
				expr += ","
			}
			expr += " " + attr
		}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       itemKey(result.WorkItemID),
		ConditionExpression:       strPtr("attribute_exists(PK)"),
		UpdateExpression:          &expr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("UpdateItem result workItem=%s: %w", result.WorkItemID, err)
	}

	log.Debug().
		Str("workItemId", result.WorkItemID).
		Str("status", string(result.Status)).
		Float64("confidenceScore", result.ConfidenceScore).
		Msg("Processing result written back")
	return nil
}

func strPtr(s string) *string { return &s }
