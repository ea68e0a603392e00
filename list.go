package transfer

import (
	"context"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations/list"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations/presign"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// List lists the objects whose key starts with path.Key at path's access
// level. An empty key lists the whole level. The returned objects carry
// identities at that same level.
//
// Without WithListAll one page is returned; pass its NextToken back with
// WithNextToken to continue.
func (c *Client) List(
	ctx context.Context,
	path transfertypes.Identity,
	opts ...transfertypes.ListOption,
) (*transfertypes.ListResult, error) {
	if c.s3Client == nil {
		return nil, errors.NewStorageError("list", errors.ErrInvalidInput).
			WithKey(path.Key).WithMessage("list requires an S3 client")
	}
	if err := validation.ValidatePath(path); err != nil {
		return nil, err
	}

	cfg := &transfertypes.ListOptionConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	prefix := path.ResolveKey()
	listCfg := &list.Config{
		Bucket:            c.cfg.Bucket,
		Prefix:            prefix,
		PageSize:          cfg.PageSize,
		ContinuationToken: cfg.NextToken,
	}

	lister := list.New(c.s3Client)
	var (
		page *list.Result
		err  error
	)
	if cfg.All {
		page, err = lister.ListAll(ctx, listCfg)
	} else {
		page, err = lister.List(ctx, listCfg)
	}
	if err != nil {
		return nil, errors.NewStorageError("list", err).WithKey(prefix)
	}

	result := &transfertypes.ListResult{
		Objects:   make([]transfertypes.ObjectReference, 0, len(page.Objects)),
		NextToken: page.ContinuationToken,
	}
	for _, obj := range page.Objects {
		id, ok := path.Relative(obj.Key)
		if !ok {
			continue
		}
		obj.Identity = id
		result.Objects = append(result.Objects, obj)
	}
	c.logger.Debug("objects listed", "prefix", prefix, "count", len(result.Objects))
	return result, nil
}

// GetURL returns a pre-signed URL that downloads the object behind id. Anyone
// holding the URL can use it until it expires, whatever their access level.
// The object is not checked for existence.
func (c *Client) GetURL(
	ctx context.Context,
	id transfertypes.Identity,
	opts ...transfertypes.URLOption,
) (*transfertypes.ObjectURL, error) {
	if c.presigner == nil {
		return nil, errors.NewStorageError("getURL", errors.ErrInvalidInput).
			WithKey(id.Key).WithMessage("pre-signed URLs require an AWS S3 client")
	}
	if err := validation.ValidateIdentity(id); err != nil {
		return nil, err
	}

	cfg := &transfertypes.URLOptionConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := validation.ValidateContentType(cfg.ResponseContentType); err != nil {
		return nil, err
	}

	key := id.ResolveKey()
	u, err := presign.NewSigner(c.presigner).URL(ctx, c.cfg.Bucket, key, cfg)
	if err != nil {
		return nil, errors.NewStorageError("getURL", err).WithKey(key)
	}
	return u, nil
}
