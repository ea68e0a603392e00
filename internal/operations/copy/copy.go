// Package copy handles server-side S3 object copies.
package copy

import (
	"context"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Copier copies objects inside S3 without moving their bytes through the client.
type Copier struct {
	s3Client s3api.S3API
}

// NewCopier creates a copy operation handler.
func NewCopier(s3Client s3api.S3API) *Copier {
	return &Copier{s3Client: s3Client}
}

// Copy copies srcBucket/srcKey to dstBucket/dstKey. When meta is non-nil its
// content type and metadata replace the source's.
func (c *Copier) Copy(
	ctx context.Context,
	srcBucket, srcKey, dstBucket, dstKey string,
	meta *transfertypes.UploadMetadata,
) (*transfertypes.ObjectReference, error) {
	input := &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(srcBucket, srcKey)),
	}
	applyMetadata(input, meta)

	output, err := c.s3Client.CopyObject(ctx, input)
	if err != nil {
		return nil, operations.TranslateError(err)
	}

	ref := &transfertypes.ObjectReference{
		Key:       dstKey,
		VersionID: aws.ToString(output.VersionId),
	}
	if output.CopyObjectResult != nil {
		ref.ETag = aws.ToString(output.CopyObjectResult.ETag)
	}
	if meta != nil {
		ref.ContentType = meta.ContentType
	}
	return ref, nil
}

// copySource formats the x-amz-copy-source value, escaping the key.
func copySource(bucket, key string) string {
	return bucket + "/" + (&url.URL{Path: key}).EscapedPath()
}

func applyMetadata(input *s3.CopyObjectInput, meta *transfertypes.UploadMetadata) {
	if meta == nil {
		return
	}

	if meta.ContentType != "" || len(meta.Metadata) > 0 {
		input.MetadataDirective = awstypes.MetadataDirectiveReplace
		if meta.ContentType != "" {
			input.ContentType = aws.String(meta.ContentType)
		}
		input.Metadata = meta.Metadata
	}
	if meta.ACL != "" {
		input.ACL = awstypes.ObjectCannedACL(meta.ACL)
	}
	if meta.SSE != nil {
		switch meta.SSE.Type {
		case transfertypes.SSES3:
			input.ServerSideEncryption = awstypes.ServerSideEncryptionAes256
		case transfertypes.SSEKMS:
			input.ServerSideEncryption = awstypes.ServerSideEncryptionAwsKms
			if meta.SSE.KMSKeyID != "" {
				input.SSEKMSKeyId = aws.String(meta.SSE.KMSKeyID)
			}
		}
	}
}
