package s3client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// TestServer starts an in-memory gofakes3 server and returns its URL.
// The server is cleaned up when the test completes. No buckets exist
// until created, which lets tests exercise bucket-not-found fallback.
func TestServer(t testing.TB) string {
	t.Helper()

	backend := s3mem.New()
	faker := gofakes3.New(backend)

	ts := httptest.NewServer(faker.Server())
	t.Cleanup(func() {
		ts.Close()
	})
	return ts.URL
}

// TestConfig returns a Config pointing at the given gofakes3 endpoint.
func TestConfig(endpoint, bucketName string) Config {
	return Config{
		Endpoint:        endpoint,
		Region:          "us-east-1",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		BucketName:      bucketName,
		UsePathStyle:    true, // Required for gofakes3
	}
}

// TestCreateBucket creates a bucket on a gofakes3 server.
func TestCreateBucket(t testing.TB, endpoint, bucketName string) {
	t.Helper()

	client := rawTestClient(t, endpoint)
	_, err := client.CreateBucket(context.Background(), &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}
}

// TestClient creates an S3 client backed by gofakes3 for testing.
// The bucket is created before returning.
func TestClient(t testing.TB, bucketName string) *Client {
	t.Helper()

	endpoint := TestServer(t)
	TestCreateBucket(t, endpoint, bucketName)
	return NewFromS3Client(rawTestClient(t, endpoint), bucketName)
}

func rawTestClient(t testing.TB, endpoint string) *s3.Client {
	t.Helper()

	ctx := context.Background()
	sdkConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		),
	)
	if err != nil {
		t.Fatalf("failed to load AWS config: %v", err)
	}

	return s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
}
