package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ManifestEntry records one written export.
type ManifestEntry struct {
	View       string
	Category   string
	Report     string
	Period     string
	Location   string
	Rows       int
	Columns    []string
	ExportedAt time.Time
}

// Manifest records written exports.
type Manifest interface {
	Record(ctx context.Context, e ManifestEntry) error
}

// dynamoAPI is the subset of the DynamoDB client used by DynamoManifest.
type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// manifestItem represents an item stored in DynamoDB
type manifestItem struct {
	PK         string   `dynamodbav:"PK"`
	SK         string   `dynamodbav:"SK"`
	Category   string   `dynamodbav:"Category"`
	Report     string   `dynamodbav:"Report"`
	Period     string   `dynamodbav:"Period"`
	Location   string   `dynamodbav:"Location"`
	Rows       int      `dynamodbav:"Rows"`
	Columns    []string `dynamodbav:"Columns,omitempty"`
	ExportedAt string   `dynamodbav:"ExportedAt"`
}

// DynamoManifest keeps one item per view/report/period, keyed
// PK=view#<view>, SK=<category>/<report>#<period>.
type DynamoManifest struct {
	client    dynamoAPI
	tableName string
}

// NewDynamoManifest creates a manifest backed by tableName.
func NewDynamoManifest(ctx context.Context, tableName, region, profile string) (*DynamoManifest, error) {
	cfg, err := LoadAWSConfig(ctx, region, profile)
	if err != nil {
		return nil, err
	}
	return newDynamoManifest(dynamodb.NewFromConfig(cfg), tableName), nil
}

func newDynamoManifest(client dynamoAPI, tableName string) *DynamoManifest {
	return &DynamoManifest{client: client, tableName: tableName}
}

func manifestPK(view string) string { return "view#" + view }

// Record saves e, overwriting an earlier export of the same period.
func (m *DynamoManifest) Record(ctx context.Context, e ManifestEntry) error {
	item := manifestItem{
		PK:         manifestPK(e.View),
		SK:         fmt.Sprintf("%s/%s#%s", e.Category, e.Report, e.Period),
		Category:   e.Category,
		Report:     e.Report,
		Period:     e.Period,
		Location:   e.Location,
		Rows:       e.Rows,
		Columns:    e.Columns,
		ExportedAt: e.ExportedAt.UTC().Format(time.RFC3339),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling manifest item: %w", err)
	}

	_, err = m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(m.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting manifest item: %w", err)
	}
	return nil
}

// History returns the recorded exports for a view.
func (m *DynamoManifest) History(ctx context.Context, view string) ([]ManifestEntry, error) {
	result, err := m.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(m.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: manifestPK(view)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying manifest: %w", err)
	}

	var items []manifestItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling manifest items: %w", err)
	}

	entries := make([]ManifestEntry, 0, len(items))
	for _, it := range items {
		at, _ := time.Parse(time.RFC3339, it.ExportedAt)
		entries = append(entries, ManifestEntry{
			View:       view,
			Category:   it.Category,
			Report:     it.Report,
			Period:     it.Period,
			Location:   it.Location,
			Rows:       it.Rows,
			Columns:    it.Columns,
			ExportedAt: at,
		})
	}
	return entries, nil
}
