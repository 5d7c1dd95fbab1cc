package syncjob

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/parcelaid/backend/internal/model"
)

// DynamoTarget writes each collection into the table "<prefix><collection>".
// Tables use a string partition key "pk" holding the joined dedup key.
type DynamoTarget struct {
	client *dynamodb.Client
	prefix string
}

// NewDynamoTarget loads the default AWS config chain. region overrides the
// chain's region when non-empty.
func NewDynamoTarget(ctx context.Context, region, tablePrefix string) (*DynamoTarget, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &DynamoTarget{client: dynamodb.NewFromConfig(cfg), prefix: tablePrefix}, nil
}

var _ Target = (*DynamoTarget)(nil)

func (t *DynamoTarget) table(c model.Collection) *string {
	return aws.String(t.prefix + string(c))
}

func (t *DynamoTarget) Exists(ctx context.Context, c model.Collection, key model.Key) (bool, error) {
	result, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: t.table(c),
		Key: map[string]dynamodbtypes.AttributeValue{
			"pk": &dynamodbtypes.AttributeValueMemberS{Value: key.String()},
		},
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("pk"),
	})
	if err != nil {
		return false, fmt.Errorf("get item: %w", err)
	}
	return result.Item != nil, nil
}

func (t *DynamoTarget) Insert(ctx context.Context, c model.Collection, key model.Key, doc map[string]any) error {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	item["pk"] = &dynamodbtypes.AttributeValueMemberS{Value: key.String()}

	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           t.table(c),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	var ccf *dynamodbtypes.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (t *DynamoTarget) Close(context.Context) error { return nil }
