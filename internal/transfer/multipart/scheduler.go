package multipart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/cancellation"
	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/progress"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// abortTimeout bounds the best-effort session abort after a failure or cancel.
const abortTimeout = 30 * time.Second

// Hooks receives part lifecycle events from a Scheduler.
type Hooks interface {
	// PartCompleted is called once per part after it has been committed.
	PartCompleted(p *Part)
	// PartFailed is called once, with the first unrecoverable part error,
	// before siblings have been aborted.
	PartFailed(p *Part, err error)
	// BeginCommit blocks while the task is paused. Once it returns nil the
	// task must not pause again.
	BeginCommit(ctx context.Context) error
}

// Config configures a Scheduler.
type Config struct {
	Direction   transfertypes.Direction
	Concurrency int
	Policy      *retry.Policy
	// Source is read for uploads.
	Source transfertypes.Source
	// Sink is written for downloads.
	Sink     transfertypes.Sink
	Gate     *Gate
	Progress *progress.Aggregator
	Hooks    Hooks
	Logger   *slog.Logger
}

// Scheduler moves the parts of one transfer through a session with
// bounded concurrency.
type Scheduler struct {
	session transfertypes.Session
	parts   []*Part
	cfg     Config

	failOnce sync.Once
	firstErr error
}

// NewScheduler creates a scheduler for parts, which must be in byte order.
func NewScheduler(session transfertypes.Session, parts []*Part, cfg Config) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Policy == nil {
		cfg.Policy = retry.NewPolicy(nil)
	}
	if cfg.Gate == nil {
		cfg.Gate = NewGate()
	}
	if cfg.Progress == nil {
		cfg.Progress = progress.NewAggregator(totalSize(parts), nil)
	}
	if cfg.Hooks == nil {
		cfg.Hooks = noopHooks{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		session: session,
		parts:   parts,
		cfg:     cfg,
	}
}

// Parts returns the parts in byte order.
func (s *Scheduler) Parts() []*Part {
	return s.parts
}

// Run transfers every part and commits the object. On the first
// unrecoverable part error the remaining parts are abandoned, the session
// is aborted and that error is returned. When ctx is cancelled the session
// is aborted and a CancelledError is returned.
func (s *Scheduler) Run(ctx context.Context) (*transfertypes.ObjectReference, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	// Every active part runs on a child of group, so the first failure
	// reaches all of them through gctx.
	group := cancellation.NewToken(gctx)
	defer group.Release()

	for _, p := range s.parts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			token := group.Child()
			defer token.Release()
			return s.runPart(token.Context(), p)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, s.abandon(ctx, err)
	}
	if ctx.Err() != nil {
		return nil, s.abandon(ctx, cancelled(ctx))
	}

	if err := s.cfg.Hooks.BeginCommit(ctx); err != nil {
		return nil, s.abandon(ctx, err)
	}

	ref, err := s.commit(ctx)
	if err != nil {
		return nil, s.abandon(ctx, err)
	}
	return ref, nil
}

func (s *Scheduler) runPart(ctx context.Context, p *Part) error {
	if err := s.cfg.Gate.Wait(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return cancelled(ctx)
	}
	p.setState(PartActive)

	length := int(p.Range.Length)
	payload := pool.GetBuffer(length)
	defer pool.PutBuffer(payload)

	if s.cfg.Direction == transfertypes.DirectionUpload {
		if err := readPayload(s.cfg.Source, payload, p.Range.Offset); err != nil {
			return s.partFailed(ctx, p, transfererrors.NewStorageError("readSource", err).
				WithMessage(fmt.Sprintf("part %d", p.Number)))
		}
	}

	var receipt *transfertypes.RangeReceipt
	rec := attemptRecorder{part: p, logger: s.cfg.Logger}
	err := retry.Do(ctx, s.cfg.Policy, rec, func(ctx context.Context) error {
		r, err := s.transmit(ctx, p, payload)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		if transfererrors.IsCancelled(err) {
			return err
		}
		return s.partFailed(ctx, p, err)
	}

	// A part that finishes while paused is held here until resume.
	if err := s.cfg.Gate.Wait(ctx); err != nil {
		return err
	}

	if s.cfg.Direction == transfertypes.DirectionDownload && length > 0 {
		if _, err := s.cfg.Sink.WriteAt(payload, p.Range.Offset); err != nil {
			return s.partFailed(ctx, p, transfererrors.NewStorageError("writeSink", err).
				WithMessage(fmt.Sprintf("part %d", p.Number)))
		}
	}

	p.finish(receipt)
	s.cfg.Progress.Complete(p.Number, p.Range.Length)
	s.cfg.Hooks.PartCompleted(p)
	return nil
}

func (s *Scheduler) transmit(
	ctx context.Context,
	p *Part,
	payload []byte,
) (*transfertypes.RangeReceipt, error) {
	report := func(n int64) { s.cfg.Progress.Advance(p.Number, n) }
	req := &transfertypes.RangeRequest{
		PartNumber: p.Number,
		Range:      p.Range,
	}

	var w *partWriter
	if s.cfg.Direction == transfertypes.DirectionUpload {
		req.Body = newPartReader(payload, report)
	} else {
		w = newPartWriter(payload, report)
		req.Sink = w
	}

	receipt, err := s.session.TransmitRange(ctx, req)
	if err != nil {
		return nil, err
	}

	if w != nil && int64(w.n) != p.Range.Length {
		return nil, &transfererrors.NetworkError{
			Err: fmt.Errorf("%w: part %d received %d of %d bytes",
				transfererrors.ErrSizeMismatch, p.Number, w.n, p.Range.Length),
		}
	}

	if receipt == nil {
		receipt = &transfertypes.RangeReceipt{}
	}
	receipt.PartNumber = p.Number
	receipt.Range = p.Range
	return receipt, nil
}

// partFailed records the first unrecoverable error. A failure that lands
// while the task is paused is reported on resume, like a success would be.
func (s *Scheduler) partFailed(ctx context.Context, p *Part, err error) error {
	if werr := s.cfg.Gate.Wait(ctx); werr != nil {
		p.setState(PartPending)
		return werr
	}
	p.setState(PartFailed)

	s.failOnce.Do(func() {
		s.firstErr = err
		s.cfg.Logger.Warn("part failed",
			"part", p.Number,
			"attempts", p.Attempts(),
			"error", err)
		s.cfg.Hooks.PartFailed(p, err)
	})
	return err
}

func (s *Scheduler) commit(ctx context.Context) (*transfertypes.ObjectReference, error) {
	receipts := make([]transfertypes.RangeReceipt, 0, len(s.parts))
	for _, p := range s.parts {
		r := p.Receipt()
		if r == nil {
			return nil, transfererrors.NewStorageError("commit",
				fmt.Errorf("%w: part %d has no receipt", transfererrors.ErrInvalidInput, p.Number))
		}
		receipts = append(receipts, *r)
	}

	var ref *transfertypes.ObjectReference
	err := retry.Do(ctx, s.cfg.Policy, nil, func(ctx context.Context) error {
		r, err := s.session.Commit(ctx, receipts)
		if err != nil {
			return err
		}
		ref = r
		return nil
	})
	if err != nil {
		if transfererrors.IsCancelled(err) {
			return nil, err
		}
		return nil, transfererrors.NewStorageError("commit", err)
	}
	return ref, nil
}

// abandon aborts the session and picks the error Run reports.
func (s *Scheduler) abandon(ctx context.Context, err error) error {
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if abortErr := s.session.Abort(abortCtx); abortErr != nil {
		s.cfg.Logger.Warn("session abort failed", "error", abortErr)
	}

	switch {
	case s.firstErr != nil:
		return s.firstErr
	case ctx.Err() != nil:
		return cancelled(ctx)
	default:
		return err
	}
}

type attemptRecorder struct {
	part   *Part
	logger *slog.Logger
}

func (r attemptRecorder) RecordAttempt(attempt int, err error) {
	r.part.RecordAttempt(attempt, err)
	if err != nil && !transfererrors.IsCancelled(err) {
		r.logger.Debug("part attempt failed",
			"part", r.part.Number,
			"attempt", attempt,
			"error", err)
	}
}

type noopHooks struct{}

func (noopHooks) PartCompleted(*Part) {}
func (noopHooks) PartFailed(*Part, error) {}
func (noopHooks) BeginCommit(context.Context) error { return nil }

func totalSize(parts []*Part) int64 {
	var n int64
	for _, p := range parts {
		n += p.Range.Length
	}
	return n
}

func cancelled(ctx context.Context) error {
	return transfererrors.NewCancelledError(context.Cause(ctx))
}
