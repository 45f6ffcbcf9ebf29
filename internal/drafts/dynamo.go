package drafts

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// draftItem is the DynamoDB representation. The table TTL attribute is expiresAt.
type draftItem struct {
	Sender    string `dynamodbav:"sender"`
	Draft     string `dynamodbav:"draft"`
	UpdatedAt string `dynamodbav:"updatedAt"`
	ExpiresAt int64  `dynamodbav:"expiresAt,omitempty"`
}

// DynamoStore keeps drafts in a DynamoDB table keyed by sender.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
}

// NewDynamoStore builds a store on the given table.
func NewDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	if client == nil {
		panic("drafts: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("drafts: table name cannot be empty")
	}
	return &DynamoStore{client: client, tableName: tableName, now: time.Now}
}

func (s *DynamoStore) Get(ctx context.Context, sender string) (*booking.Draft, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            map[string]types.AttributeValue{"sender": &types.AttributeValueMemberS{Value: sender}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("drafts: dynamodb get: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var item draftItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("drafts: unmarshal item: %w", err)
	}
	// DynamoDB deletes expired items lazily.
	if item.ExpiresAt > 0 && s.now().Unix() >= item.ExpiresAt {
		return nil, nil
	}
	return decodeDraft([]byte(item.Draft))
}

func (s *DynamoStore) Set(ctx context.Context, sender string, draft *booking.Draft, ttl time.Duration) error {
	data, err := encodeDraft(draft)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	item := draftItem{Sender: sender, Draft: string(data), UpdatedAt: now.Format(time.RFC3339Nano)}
	if ttl > 0 {
		item.ExpiresAt = now.Add(ttl).Unix()
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("drafts: marshal item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("drafts: dynamodb put: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, sender string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{"sender": &types.AttributeValueMemberS{Value: sender}},
	}); err != nil {
		return fmt.Errorf("drafts: dynamodb delete: %w", err)
	}
	return nil
}
