package upload

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

func openSession(t *testing.T, mock *testutil.MockS3Client) *Session {
	t.Helper()
	if mock.CreateMultipartUploadFunc == nil {
		mock.CreateMultipartUploadFunc = func(
			_ context.Context, _ *s3.CreateMultipartUploadInput, _ ...func(*s3.Options),
		) (*s3.CreateMultipartUploadOutput, error) {
			return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
		}
	}
	s, err := Open(context.Background(), mock, "test-bucket", "public/key", nil)
	require.NoError(t, err)
	return s
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name   string
		meta   *transfertypes.UploadMetadata
		verify func(t *testing.T, input *s3.CreateMultipartUploadInput)
	}{
		{
			name: "no metadata",
			verify: func(t *testing.T, input *s3.CreateMultipartUploadInput) {
				assert.Nil(t, input.ContentType)
				assert.Empty(t, input.ACL)
				assert.Empty(t, input.ServerSideEncryption)
			},
		},
		{
			name: "content type metadata and acl",
			meta: &transfertypes.UploadMetadata{
				ContentType: "text/plain",
				Metadata:    map[string]string{"author": "test"},
				ACL:         transfertypes.ACLPublicRead,
			},
			verify: func(t *testing.T, input *s3.CreateMultipartUploadInput) {
				assert.Equal(t, "text/plain", aws.ToString(input.ContentType))
				assert.Equal(t, "test", input.Metadata["author"])
				assert.Equal(t, awstypes.ObjectCannedACLPublicRead, input.ACL)
			},
		},
		{
			name: "s3 managed encryption",
			meta: &transfertypes.UploadMetadata{SSE: &transfertypes.SSEConfig{Type: transfertypes.SSES3}},
			verify: func(t *testing.T, input *s3.CreateMultipartUploadInput) {
				assert.Equal(t, awstypes.ServerSideEncryptionAes256, input.ServerSideEncryption)
				assert.Nil(t, input.SSEKMSKeyId)
			},
		},
		{
			name: "kms encryption",
			meta: &transfertypes.UploadMetadata{
				SSE: &transfertypes.SSEConfig{Type: transfertypes.SSEKMS, KMSKeyID: "key-1"},
			},
			verify: func(t *testing.T, input *s3.CreateMultipartUploadInput) {
				assert.Equal(t, awstypes.ServerSideEncryptionAwsKms, input.ServerSideEncryption)
				assert.Equal(t, "key-1", aws.ToString(input.SSEKMSKeyId))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &testutil.MockS3Client{
				CreateMultipartUploadFunc: func(
					_ context.Context, input *s3.CreateMultipartUploadInput, _ ...func(*s3.Options),
				) (*s3.CreateMultipartUploadOutput, error) {
					assert.Equal(t, "test-bucket", aws.ToString(input.Bucket))
					assert.Equal(t, "public/key", aws.ToString(input.Key))
					tt.verify(t, input)
					return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
				},
			}

			s, err := Open(context.Background(), mock, "test-bucket", "public/key", tt.meta)
			require.NoError(t, err)
			assert.Equal(t, "upload-1", s.UploadID())
		})
	}
}

func TestOpen_TranslatesErrors(t *testing.T) {
	mock := &testutil.MockS3Client{
		CreateMultipartUploadFunc: func(
			context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options),
		) (*s3.CreateMultipartUploadOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
		},
	}

	_, err := Open(context.Background(), mock, "b", "k", nil)
	assert.True(t, transfererrors.IsBlocked(err))
}

func TestSession_TransmitRange(t *testing.T) {
	payload := []byte("part payload")
	mock := &testutil.MockS3Client{
		UploadPartFunc: func(
			_ context.Context, input *s3.UploadPartInput, _ ...func(*s3.Options),
		) (*s3.UploadPartOutput, error) {
			assert.Equal(t, "upload-1", aws.ToString(input.UploadId))
			assert.Equal(t, int32(3), aws.ToInt32(input.PartNumber))
			assert.Equal(t, int64(len(payload)), aws.ToInt64(input.ContentLength))
			body, err := io.ReadAll(input.Body)
			require.NoError(t, err)
			assert.Equal(t, payload, body)
			return &s3.UploadPartOutput{ETag: aws.String(`"etag-3"`), ChecksumCRC32: aws.String("crc")}, nil
		},
	}
	s := openSession(t, mock)

	receipt, err := s.TransmitRange(context.Background(), &transfertypes.RangeRequest{
		PartNumber: 3,
		Range:      transfertypes.ByteRange{Offset: 100, Length: int64(len(payload))},
		Body:       bytes.NewReader(payload),
	})
	require.NoError(t, err)
	assert.Equal(t, `"etag-3"`, receipt.ETag)
	assert.Equal(t, "crc", receipt.Checksum)
	assert.Equal(t, int32(3), receipt.PartNumber)
}

type responseError struct {
	status int
}

func (e *responseError) Error() string { return http.StatusText(e.status) }
func (e *responseError) HTTPStatusCode() int { return e.status }

func TestSession_TransmitRange_ServerError(t *testing.T) {
	mock := &testutil.MockS3Client{
		UploadPartFunc: func(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
			return nil, &responseError{status: http.StatusServiceUnavailable}
		},
	}
	s := openSession(t, mock)

	_, err := s.TransmitRange(context.Background(), &transfertypes.RangeRequest{
		PartNumber: 1,
		Body:       bytes.NewReader(nil),
	})
	code, ok := transfererrors.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestSession_Commit(t *testing.T) {
	var completed *s3.CompleteMultipartUploadInput
	mock := &testutil.MockS3Client{
		CompleteMultipartUploadFunc: func(
			_ context.Context, input *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options),
		) (*s3.CompleteMultipartUploadOutput, error) {
			completed = input
			return &s3.CompleteMultipartUploadOutput{
				ETag:      aws.String(`"final-2"`),
				VersionId: aws.String("v1"),
			}, nil
		},
	}
	s := openSession(t, mock)

	ref, err := s.Commit(context.Background(), []transfertypes.RangeReceipt{
		{PartNumber: 2, Range: transfertypes.ByteRange{Offset: 5, Length: 3}, ETag: "b"},
		{PartNumber: 1, Range: transfertypes.ByteRange{Offset: 0, Length: 5}, ETag: "a", Checksum: "crc-a"},
	})
	require.NoError(t, err)

	require.NotNil(t, completed)
	parts := completed.MultipartUpload.Parts
	require.Len(t, parts, 2)
	assert.Equal(t, int32(1), aws.ToInt32(parts[0].PartNumber), "parts are completed in byte order")
	assert.Equal(t, "a", aws.ToString(parts[0].ETag))
	assert.Equal(t, "crc-a", aws.ToString(parts[0].ChecksumCRC32))
	assert.Nil(t, parts[1].ChecksumCRC32)

	assert.Equal(t, int64(8), ref.Size)
	assert.Equal(t, `"final-2"`, ref.ETag)
	assert.Equal(t, "v1", ref.VersionID)
	assert.Equal(t, "public/key", ref.Key)

	// A completed upload is not aborted.
	require.NoError(t, s.Abort(context.Background()))
}

func TestSession_Abort(t *testing.T) {
	var (
		mu     sync.Mutex
		aborts int
	)
	mock := &testutil.MockS3Client{
		AbortMultipartUploadFunc: func(
			_ context.Context, input *s3.AbortMultipartUploadInput, _ ...func(*s3.Options),
		) (*s3.AbortMultipartUploadOutput, error) {
			mu.Lock()
			defer mu.Unlock()
			aborts++
			assert.Equal(t, "upload-1", aws.ToString(input.UploadId))
			return &s3.AbortMultipartUploadOutput{}, nil
		},
	}
	s := openSession(t, mock)

	require.NoError(t, s.Abort(context.Background()))
	require.NoError(t, s.Abort(context.Background()))
	assert.Equal(t, 1, aborts)
}

func TestSession_Abort_UnknownUpload(t *testing.T) {
	mock := &testutil.MockS3Client{
		AbortMultipartUploadFunc: func(
			context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options),
		) (*s3.AbortMultipartUploadOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "NoSuchUpload"}
		},
	}
	s := openSession(t, mock)
	assert.NoError(t, s.Abort(context.Background()))
}
