package testutil

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// GenerateRandomData generates random bytes of the specified size.
// This is useful for creating test data for uploads.
func GenerateRandomData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(rand.Intn(256))
	}
	return data
}

// GenerateTestKey generates a test object key with optional prefix.
// This helps ensure test isolation by using unique keys.
func GenerateTestKey(prefix string) string {
	timestamp := time.Now().UnixNano()
	random := rand.Int63n(100000)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return fmt.Sprintf("%stest-object-%d-%d", prefix, timestamp, random)
}

// GenerateTestBucketName generates a valid test bucket name.
// Bucket names must be DNS-compliant and globally unique.
func GenerateTestBucketName(prefix string) string {
	timestamp := time.Now().Unix()
	random := rand.Int31n(10000)
	name := fmt.Sprintf("%s-%d-%d", prefix, timestamp, random)
	// Ensure DNS compliance
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "-")
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// CalculateETag calculates the ETag for the given data.
// For simple uploads, this is the MD5 hash. For multipart uploads, the format is different.
func CalculateETag(data []byte) string {
	h := md5.Sum(data)
	return fmt.Sprintf(`"%x"`, h)
}

// CreateHeadObjectOutput creates a test HeadObjectOutput structure.
func CreateHeadObjectOutput(size int64, etag, contentType string) *s3.HeadObjectOutput {
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(size),
		LastModified:  aws.Time(time.Now()),
		ContentType:   aws.String(contentType),
		ETag:          aws.String(etag),
		Metadata:      map[string]string{},
	}
}

// CreateGetObjectOutput creates a test GetObjectOutput structure.
func CreateGetObjectOutput(data []byte, contentType string) *s3.GetObjectOutput {
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		ETag:          aws.String(CalculateETag(data)),
		LastModified:  aws.Time(time.Now()),
	}
}

// ParseRange parses a "bytes=start-end" header into [start, end].
func ParseRange(header string) (start, end int64, err error) {
	if _, err = fmt.Sscanf(header, "bytes=%d-%d", &start, &end); err != nil {
		return 0, 0, fmt.Errorf("parse range %q: %w", header, err)
	}
	return start, end, nil
}
