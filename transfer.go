package transfer

import (
	"context"
	"io"

	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/content"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/transfer/manager"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Upload starts uploading src to id and returns the running task.
// The task is cancelled when ctx is.
//
//nolint:ireturn // transfertypes.Task is the public task contract.
func (c *Client) Upload(
	ctx context.Context,
	id transfertypes.Identity,
	src transfertypes.Source,
	opts ...transfertypes.UploadOption,
) (transfertypes.Task, error) {
	if src == nil {
		return nil, errors.NewStorageError("upload", errors.ErrInvalidInput).
			WithKey(id.Key).WithMessage("source cannot be nil")
	}

	cfg := &transfertypes.UploadOptionConfig{TransferConfig: c.transferDefaults()}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := validation.ValidateUpload(id, cfg); err != nil {
		return nil, err
	}
	if err := validation.ValidateTransfer(&cfg.TransferConfig); err != nil {
		return nil, err
	}

	if cfg.ContentType == "" {
		cfg.ContentType = content.DetectContentType(src, id.Key)
	}

	task, err := c.start(ctx, manager.Config{
		Direction: transfertypes.DirectionUpload,
		Identity:  id,
		Source:    src,
		Metadata: &transfertypes.UploadMetadata{
			ContentType: cfg.ContentType,
			Metadata:    cfg.Metadata,
			ACL:         cfg.ACL,
			SSE:         cfg.SSE,
		},
	}, cfg.TransferConfig)
	if err != nil {
		return nil, errors.NewStorageError("upload", err).WithKey(id.ResolveKey())
	}
	return task, nil
}

// UploadFile uploads path from fs to id. The file is closed once the task
// settles.
//
//nolint:ireturn // transfertypes.Task is the public task contract.
func (c *Client) UploadFile(
	ctx context.Context,
	id transfertypes.Identity,
	fs billy.Filesystem,
	path string,
	opts ...transfertypes.UploadOption,
) (transfertypes.Task, error) {
	f, err := content.OpenFile(fs, path)
	if err != nil {
		return nil, errors.NewStorageError("uploadFile", err).WithKey(id.ResolveKey())
	}

	// The key says nothing about the local name; detect from the file name.
	opts = append([]transfertypes.UploadOption{WithContentType(content.DetectContentType(f, path))}, opts...)

	task, err := c.Upload(ctx, id, f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	closeWhenDone(task, f)
	return task, nil
}

// Download starts downloading id into sink and returns the running task.
// A sink with a Sync() error method is synced before the task completes.
//
//nolint:ireturn // transfertypes.Task is the public task contract.
func (c *Client) Download(
	ctx context.Context,
	id transfertypes.Identity,
	sink transfertypes.Sink,
	opts ...transfertypes.DownloadOption,
) (transfertypes.Task, error) {
	if sink == nil {
		return nil, errors.NewStorageError("download", errors.ErrInvalidInput).
			WithKey(id.Key).WithMessage("sink cannot be nil")
	}

	cfg := &transfertypes.DownloadOptionConfig{TransferConfig: c.transferDefaults()}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := validation.ValidateIdentity(id); err != nil {
		return nil, err
	}
	if err := validation.ValidateTransfer(&cfg.TransferConfig); err != nil {
		return nil, err
	}

	task, err := c.start(ctx, manager.Config{
		Direction: transfertypes.DirectionDownload,
		Identity:  id,
		Sink:      sink,
	}, cfg.TransferConfig)
	if err != nil {
		return nil, errors.NewStorageError("download", err).WithKey(id.ResolveKey())
	}
	return task, nil
}

// DownloadFile downloads id into path in fs, creating parent directories.
// The file is closed once the task settles.
//
//nolint:ireturn // transfertypes.Task is the public task contract.
func (c *Client) DownloadFile(
	ctx context.Context,
	id transfertypes.Identity,
	fs billy.Filesystem,
	path string,
	opts ...transfertypes.DownloadOption,
) (transfertypes.Task, error) {
	sink, err := content.CreateFile(fs, path)
	if err != nil {
		return nil, errors.NewStorageError("downloadFile", err).WithKey(id.ResolveKey())
	}

	task, err := c.Download(ctx, id, sink, opts...)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	closeWhenDone(task, sink)
	return task, nil
}

func (c *Client) start(
	ctx context.Context,
	cfg manager.Config,
	tc transfertypes.TransferConfig,
) (*manager.Task, error) {
	cfg.Transport = c.transport
	cfg.PartSize = tc.PartSize
	cfg.Concurrency = tc.Concurrency
	cfg.Retry = tc.Retry
	cfg.Observer = tc.Observer
	cfg.AsyncObserver = tc.AsyncObserver
	cfg.Registry = c.registry
	cfg.Logger = c.logger
	return manager.Start(ctx, cfg)
}

func closeWhenDone(task transfertypes.Task, c io.Closer) {
	go func() {
		<-task.Done()
		_ = c.Close()
	}()
}
