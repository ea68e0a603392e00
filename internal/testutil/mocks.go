// Package testutil provides test utilities and mocks for the transfer module.
// This package is internal and should only be used for testing within the module.
package testutil

import (
	"context"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/s3api"
)

// MockS3Client is a mock implementation of the S3API interface for testing.
// It allows customization of each S3 operation through function fields.
type MockS3Client struct {
	GetObjectFunc               func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObjectFunc              func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjectFunc            func(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObjectFunc              func(context.Context, *s3.CopyObjectInput, ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	CreateMultipartUploadFunc   func(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPartFunc              func(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUploadFunc func(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUploadFunc    func(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListObjectsV2Func           func(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// GetObject mocks the S3 GetObject operation.
func (m *MockS3Client) GetObject(
	ctx context.Context,
	params *s3.GetObjectInput,
	optFns ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	if m.GetObjectFunc != nil {
		return m.GetObjectFunc(ctx, params, optFns...)
	}
	return &s3.GetObjectOutput{}, nil
}

// HeadObject mocks the S3 HeadObject operation.
func (m *MockS3Client) HeadObject(
	ctx context.Context,
	params *s3.HeadObjectInput,
	optFns ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	if m.HeadObjectFunc != nil {
		return m.HeadObjectFunc(ctx, params, optFns...)
	}
	return &s3.HeadObjectOutput{}, nil
}

// DeleteObject mocks the S3 DeleteObject operation.
func (m *MockS3Client) DeleteObject(
	ctx context.Context,
	params *s3.DeleteObjectInput,
	optFns ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	if m.DeleteObjectFunc != nil {
		return m.DeleteObjectFunc(ctx, params, optFns...)
	}
	return &s3.DeleteObjectOutput{}, nil
}

// CopyObject mocks the S3 CopyObject operation.
func (m *MockS3Client) CopyObject(
	ctx context.Context,
	params *s3.CopyObjectInput,
	optFns ...func(*s3.Options),
) (*s3.CopyObjectOutput, error) {
	if m.CopyObjectFunc != nil {
		return m.CopyObjectFunc(ctx, params, optFns...)
	}
	return &s3.CopyObjectOutput{}, nil
}

// CreateMultipartUpload mocks the S3 CreateMultipartUpload operation.
func (m *MockS3Client) CreateMultipartUpload(
	ctx context.Context,
	params *s3.CreateMultipartUploadInput,
	optFns ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	if m.CreateMultipartUploadFunc != nil {
		return m.CreateMultipartUploadFunc(ctx, params, optFns...)
	}
	return &s3.CreateMultipartUploadOutput{}, nil
}

// UploadPart mocks the S3 UploadPart operation.
func (m *MockS3Client) UploadPart(
	ctx context.Context,
	params *s3.UploadPartInput,
	optFns ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	if m.UploadPartFunc != nil {
		return m.UploadPartFunc(ctx, params, optFns...)
	}
	return &s3.UploadPartOutput{}, nil
}

// CompleteMultipartUpload mocks the S3 CompleteMultipartUpload operation.
func (m *MockS3Client) CompleteMultipartUpload(
	ctx context.Context,
	params *s3.CompleteMultipartUploadInput,
	optFns ...func(*s3.Options),
) (*s3.CompleteMultipartUploadOutput, error) {
	if m.CompleteMultipartUploadFunc != nil {
		return m.CompleteMultipartUploadFunc(ctx, params, optFns...)
	}
	return &s3.CompleteMultipartUploadOutput{}, nil
}

// AbortMultipartUpload mocks the S3 AbortMultipartUpload operation.
func (m *MockS3Client) AbortMultipartUpload(
	ctx context.Context,
	params *s3.AbortMultipartUploadInput,
	optFns ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	if m.AbortMultipartUploadFunc != nil {
		return m.AbortMultipartUploadFunc(ctx, params, optFns...)
	}
	return &s3.AbortMultipartUploadOutput{}, nil
}

// ListObjectsV2 mocks the S3 ListObjectsV2 operation.
func (m *MockS3Client) ListObjectsV2(
	ctx context.Context,
	params *s3.ListObjectsV2Input,
	optFns ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	if m.ListObjectsV2Func != nil {
		return m.ListObjectsV2Func(ctx, params, optFns...)
	}
	return &s3.ListObjectsV2Output{}, nil
}

// MockPresigner is a mock implementation of the Presigner interface.
type MockPresigner struct {
	PresignGetObjectFunc func(context.Context, *s3.GetObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// PresignGetObject mocks the S3 PresignGetObject operation.
func (m *MockPresigner) PresignGetObject(
	ctx context.Context,
	params *s3.GetObjectInput,
	optFns ...func(*s3.PresignOptions),
) (*v4.PresignedHTTPRequest, error) {
	if m.PresignGetObjectFunc != nil {
		return m.PresignGetObjectFunc(ctx, params, optFns...)
	}
	return &v4.PresignedHTTPRequest{Method: "GET"}, nil
}

// Verify that the mocks implement the s3api interfaces
var (
	_ s3api.S3API     = (*MockS3Client)(nil)
	_ s3api.Presigner = (*MockPresigner)(nil)
)
