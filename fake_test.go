package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/testutil"
)

type fakeObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// fakeS3 is an in-memory bucket behind a testutil.MockS3Client.
type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string]fakeObject
	uploads   map[string]map[int32][]byte
	pending   map[string]fakeObject
	active    int
	maxActive int
	aborts    int
	seq       int

	// partHook runs before every UploadPart; a non-nil error fails the call.
	partHook func(ctx context.Context, part int32) error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: map[string]fakeObject{},
		uploads: map[string]map[int32][]byte{},
		pending: map[string]fakeObject{},
	}
}

func (f *fakeS3) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{data: data, contentType: "application/octet-stream"}
}

func (f *fakeS3) object(key string) (fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[key]
	return o, ok
}

func (f *fakeS3) stats() (maxActive, aborts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive, f.aborts
}

func notFound() error {
	return &smithy.GenericAPIError{Code: "NoSuchKey", Message: "not found"}
}

func (f *fakeS3) client() *testutil.MockS3Client {
	return &testutil.MockS3Client{
		CreateMultipartUploadFunc: func(
			_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options),
		) (*s3.CreateMultipartUploadOutput, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.seq++
			id := fmt.Sprintf("upload-%d", f.seq)
			f.uploads[id] = map[int32][]byte{}
			f.pending[id] = fakeObject{contentType: aws.ToString(in.ContentType), metadata: in.Metadata}
			return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
		},
		UploadPartFunc: func(
			ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options),
		) (*s3.UploadPartOutput, error) {
			f.mu.Lock()
			f.active++
			f.maxActive = max(f.maxActive, f.active)
			hook := f.partHook
			f.mu.Unlock()
			defer func() {
				f.mu.Lock()
				f.active--
				f.mu.Unlock()
			}()

			part := aws.ToInt32(in.PartNumber)
			if hook != nil {
				if err := hook(ctx, part); err != nil {
					return nil, err
				}
			}
			data, err := io.ReadAll(in.Body)
			if err != nil {
				return nil, err
			}

			f.mu.Lock()
			defer f.mu.Unlock()
			parts, ok := f.uploads[aws.ToString(in.UploadId)]
			if !ok {
				return nil, &smithy.GenericAPIError{Code: "NoSuchUpload"}
			}
			parts[part] = data
			return &s3.UploadPartOutput{ETag: aws.String(testutil.CalculateETag(data))}, nil
		},
		CompleteMultipartUploadFunc: func(
			_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options),
		) (*s3.CompleteMultipartUploadOutput, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			id := aws.ToString(in.UploadId)
			var buf bytes.Buffer
			for _, p := range in.MultipartUpload.Parts {
				buf.Write(f.uploads[id][aws.ToInt32(p.PartNumber)])
			}
			obj := f.pending[id]
			obj.data = buf.Bytes()
			f.objects[aws.ToString(in.Key)] = obj
			delete(f.uploads, id)
			delete(f.pending, id)
			return &s3.CompleteMultipartUploadOutput{ETag: aws.String(testutil.CalculateETag(obj.data))}, nil
		},
		AbortMultipartUploadFunc: func(
			_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options),
		) (*s3.AbortMultipartUploadOutput, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.aborts++
			delete(f.uploads, aws.ToString(in.UploadId))
			return &s3.AbortMultipartUploadOutput{}, nil
		},
		HeadObjectFunc: func(
			_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options),
		) (*s3.HeadObjectOutput, error) {
			o, ok := f.object(aws.ToString(in.Key))
			if !ok {
				return nil, notFound()
			}
			return testutil.CreateHeadObjectOutput(int64(len(o.data)), testutil.CalculateETag(o.data), o.contentType), nil
		},
		GetObjectFunc: func(
			_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options),
		) (*s3.GetObjectOutput, error) {
			o, ok := f.object(aws.ToString(in.Key))
			if !ok {
				return nil, notFound()
			}
			start, end, err := testutil.ParseRange(aws.ToString(in.Range))
			if err != nil {
				return nil, err
			}
			return testutil.CreateGetObjectOutput(o.data[start:end+1], o.contentType), nil
		},
		CopyObjectFunc: func(
			_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options),
		) (*s3.CopyObjectOutput, error) {
			// CopySource is "bucket/key".
			_, srcKey, _ := strings.Cut(aws.ToString(in.CopySource), "/")
			o, ok := f.object(srcKey)
			if !ok {
				return nil, notFound()
			}
			if in.MetadataDirective == awstypes.MetadataDirectiveReplace {
				o.contentType = aws.ToString(in.ContentType)
				o.metadata = in.Metadata
			}
			f.mu.Lock()
			f.objects[aws.ToString(in.Key)] = o
			f.mu.Unlock()
			return &s3.CopyObjectOutput{
				CopyObjectResult: &awstypes.CopyObjectResult{ETag: aws.String(testutil.CalculateETag(o.data))},
			}, nil
		},
		DeleteObjectFunc: func(
			_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options),
		) (*s3.DeleteObjectOutput, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.objects, aws.ToString(in.Key))
			return &s3.DeleteObjectOutput{}, nil
		},
		ListObjectsV2Func: func(
			_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options),
		) (*s3.ListObjectsV2Output, error) {
			return f.list(aws.ToString(in.Prefix), aws.ToString(in.ContinuationToken), int(aws.ToInt32(in.MaxKeys))), nil
		},
	}
}

// list pages through the keys under prefix in lexical order. The
// continuation token is the last key of the previous page.
func (f *fakeS3) list(prefix, after string, limit int) *s3.ListObjectsV2Output {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(len(keys) > limit)}
	if len(keys) > limit {
		keys = keys[:limit]
		out.NextContinuationToken = aws.String(keys[limit-1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, awstypes.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(f.objects[k].data))),
			ETag: aws.String(testutil.CalculateETag(f.objects[k].data)),
		})
	}
	return out
}
