package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	localStackImage  = "localstack/localstack:latest"
	localStackPort   = "4566"
	localStackRegion = "us-east-1"
)

// LocalStackEnv is a running LocalStack container with one empty bucket.
type LocalStackEnv struct {
	Client   *s3.Client
	Endpoint string
	Region   string
	Bucket   string
}

// SetupLocalStack starts LocalStack, creates a bucket and registers cleanup
// with t. It skips the test in short mode.
func SetupLocalStack(t *testing.T) *LocalStackEnv {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping LocalStack test in short mode")
	}

	ctx := context.Background()
	container, err := localstack.Run(ctx,
		localStackImage,
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/_localstack/health").
				WithPort(localStackPort).
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		t.Fatalf("start LocalStack container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate LocalStack container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("LocalStack host: %v", err)
	}
	port, err := container.MappedPort(ctx, localStackPort)
	if err != nil {
		t.Fatalf("LocalStack port: %v", err)
	}

	env := &LocalStackEnv{
		Endpoint: fmt.Sprintf("http://%s:%s", host, port.Port()),
		Region:   localStackRegion,
		Bucket:   GenerateTestBucketName("transfer-test"),
	}

	env.Client, err = NewLocalStackClient(ctx, env.Endpoint, env.Region)
	if err != nil {
		t.Fatalf("LocalStack client: %v", err)
	}

	if _, err := env.Client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(env.Bucket),
	}); err != nil {
		t.Fatalf("create bucket %s: %v", env.Bucket, err)
	}
	t.Cleanup(func() {
		if err := EmptyBucket(context.Background(), env.Client, env.Bucket); err != nil {
			t.Logf("empty bucket %s: %v", env.Bucket, err)
		}
	})

	return env
}

// NewLocalStackClient returns a path-style S3 client for endpoint using the
// LocalStack test credentials.
func NewLocalStackClient(ctx context.Context, endpoint, region string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     "test",
					SecretAccessKey: "test",
				}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(endpoint)
	}), nil
}

// EmptyBucket deletes every object in bucket.
func EmptyBucket(ctx context.Context, client *s3.Client, bucket string) error {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	for {
		out, err := client.ListObjectsV2(ctx, input)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		if len(out.Contents) == 0 {
			return nil
		}

		objects := make([]types.ObjectIdentifier, 0, len(out.Contents))
		for _, obj := range out.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		if _, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: objects},
		}); err != nil {
			return fmt.Errorf("delete objects: %w", err)
		}

		if !aws.ToBool(out.IsTruncated) {
			return nil
		}
		input.ContinuationToken = out.NextContinuationToken
	}
}
