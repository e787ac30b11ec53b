package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/haven/analytics-sync/internal/table"
)

// s3API is the subset of the S3 client used by S3Sink.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads CSV objects to a bucket.
type S3Sink struct {
	client s3API
	bucket string
	prefix string
}

// LoadAWSConfig loads the default AWS config, using profile when set.
// An empty profile uses the default credential chain (IAM role on ECS).
func LoadAWSConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// NewS3Sink creates an S3 sink from the default AWS config.
func NewS3Sink(ctx context.Context, bucket, prefix, region, profile string) (*S3Sink, error) {
	cfg, err := LoadAWSConfig(ctx, region, profile)
	if err != nil {
		return nil, err
	}
	return newS3Sink(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func newS3Sink(client s3API, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

// Write puts obj as a text/csv object under prefix/obj.Key.
func (s *S3Sink) Write(ctx context.Context, obj Object) (string, error) {
	data, err := table.EncodeCSV(obj.Rows)
	if err != nil {
		return "", err
	}

	key := path.Join(s.prefix, obj.Key)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
		Metadata: map[string]string{
			"view":     obj.View,
			"category": obj.Category,
			"report":   obj.Report,
			"period":   obj.Period,
		},
	})
	if err != nil {
		return "", fmt.Errorf("putting object to S3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
