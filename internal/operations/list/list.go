// Package list lists the objects under a key prefix.
package list

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// MaxPageSize is the largest page S3 returns.
const MaxPageSize = 1000

// Lister handles listing of S3 objects.
type Lister struct {
	client s3.ListObjectsV2APIClient
}

// New creates a new Lister.
func New(client s3.ListObjectsV2APIClient) *Lister {
	return &Lister{client: client}
}

// Config holds configuration for list operations.
type Config struct {
	Bucket string
	Prefix string
	// PageSize is clamped to MaxPageSize; zero means MaxPageSize.
	PageSize          int32
	ContinuationToken string
}

// Result is one page of objects, or every page for ListAll.
type Result struct {
	Objects           []transfertypes.ObjectReference
	ContinuationToken string
}

// List fetches a single page.
func (l *Lister) List(ctx context.Context, cfg *Config) (*Result, error) {
	output, err := l.client.ListObjectsV2(ctx, input(cfg))
	if err != nil {
		return nil, operations.TranslateError(err)
	}

	result := &Result{Objects: convert(output)}
	if aws.ToBool(output.IsTruncated) {
		result.ContinuationToken = aws.ToString(output.NextContinuationToken)
	}
	return result, nil
}

// ListAll drains every page from cfg.ContinuationToken on.
func (l *Lister) ListAll(ctx context.Context, cfg *Config) (*Result, error) {
	paginator := s3.NewListObjectsV2Paginator(l.client, input(cfg))

	result := &Result{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, operations.TranslateError(err)
		}
		result.Objects = append(result.Objects, convert(page)...)
	}
	return result, nil
}

func input(cfg *Config) *s3.ListObjectsV2Input {
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(cfg.Bucket),
		Prefix:  aws.String(cfg.Prefix),
		MaxKeys: aws.Int32(pageSize),
	}
	if cfg.ContinuationToken != "" {
		in.ContinuationToken = aws.String(cfg.ContinuationToken)
	}
	return in
}

func convert(output *s3.ListObjectsV2Output) []transfertypes.ObjectReference {
	objects := make([]transfertypes.ObjectReference, 0, len(output.Contents))
	for _, obj := range output.Contents {
		objects = append(objects, transfertypes.ObjectReference{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         aws.ToString(obj.ETag),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return objects
}
