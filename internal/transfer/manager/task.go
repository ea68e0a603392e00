// Package manager runs transfer tasks and owns their lifecycle.
//
// A Task moves through Pending, InProgress and Paused until it reaches one
// of the terminal states Completed, Failed or Cancelled. Every transition is
// taken under the task mutex, and the registry entry of the task is removed
// in the same critical section that records the terminal state, so a
// concurrent Cancel and natural settlement agree on a single outcome.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/cancellation"
	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/progress"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/transfer/multipart"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Config describes one transfer.
type Config struct {
	Direction transfertypes.Direction
	Identity  transfertypes.Identity
	Transport transfertypes.Transport

	// Source is required for uploads.
	Source transfertypes.Source
	// Sink is required for downloads. A sink with a Sync() error method is
	// synced before the task completes.
	Sink transfertypes.Sink
	// Metadata is passed to the transport when an upload session opens.
	Metadata *transfertypes.UploadMetadata

	PartSize      int64
	Concurrency   int
	Retry         *transfertypes.RetryPolicy
	Observer      transfertypes.ProgressObserver
	AsyncObserver bool

	Registry *cancellation.Registry
	Logger   *slog.Logger
}

func (c *Config) validate() error {
	if c.Transport == nil {
		return fmt.Errorf("%w: transport is required", transfererrors.ErrInvalidInput)
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	switch c.Direction {
	case transfertypes.DirectionUpload:
		if c.Source == nil {
			return fmt.Errorf("%w: upload source is required", transfererrors.ErrInvalidInput)
		}
	case transfertypes.DirectionDownload:
		if c.Sink == nil {
			return fmt.Errorf("%w: download sink is required", transfererrors.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown direction %d", transfererrors.ErrInvalidInput, c.Direction)
	}
	if c.PartSize < 0 {
		return fmt.Errorf("%w: negative part size", transfererrors.ErrInvalidInput)
	}
	return nil
}

// Task is a running transfer. It implements transfertypes.Task.
type Task struct {
	cfg      Config
	registry *cancellation.Registry
	handle   cancellation.Handle
	token    *cancellation.Token
	gate     *multipart.Gate
	policy   *retry.Policy
	progress *progress.Aggregator
	async    *progress.Coalescing
	logger   *slog.Logger
	started  time.Time

	mu         sync.Mutex
	state      transfertypes.State
	committing bool
	ref        *transfertypes.ObjectReference
	err        error
	done       chan struct{}
}

var _ transfertypes.Task = (*Task)(nil)

// Start registers a task and begins transferring in the background.
// Cancelling ctx cancels the task.
func Start(ctx context.Context, cfg Config) (*Task, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Registry == nil {
		cfg.Registry = cancellation.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	observer := cfg.Observer
	var async *progress.Coalescing
	if observer != nil && cfg.AsyncObserver {
		async = progress.NewCoalescing(observer)
		observer = async.Observe
	}

	handle, token := cfg.Registry.Register(ctx)
	t := &Task{
		cfg:      cfg,
		registry: cfg.Registry,
		handle:   handle,
		token:    token,
		gate:     multipart.NewGate(),
		policy:   retry.NewPolicy(cfg.Retry),
		progress: progress.NewAggregator(0, observer),
		async:    async,
		started:  time.Now(),
		state:    transfertypes.StatePending,
		done:     make(chan struct{}),
	}
	t.logger = cfg.Logger.With(
		"handle", string(handle),
		"direction", cfg.Direction.String(),
		"key", cfg.Identity.ResolveKey(),
	)

	go t.watch()
	go t.run(token.Context())

	t.logger.Info("transfer started")
	return t, nil
}

// Handle returns the registry handle of the task.
func (t *Task) Handle() cancellation.Handle {
	return t.handle
}

// State returns the current state.
func (t *Task) State() transfertypes.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Pause stops dispatching new parts. Parts already in flight finish and hold
// their results until Resume. It has no effect unless the task is in
// progress and the commit has not started.
func (t *Task) Pause() transfertypes.State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.committing {
		return t.state
	}
	if t.transitionLocked(transfertypes.StatePaused, transfertypes.StateInProgress) {
		t.gate.Close()
		t.logger.Debug("transfer paused")
	}
	return t.state
}

// Resume continues a paused task.
func (t *Task) Resume() transfertypes.State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.transitionLocked(transfertypes.StateInProgress, transfertypes.StatePaused) {
		t.gate.Open()
		t.logger.Debug("transfer resumed")
	}
	return t.state
}

// Cancel ends a non-terminal task. The result rejects with a
// *errors.CancelledError. Calls on a terminal task return its state.
func (t *Task) Cancel() transfertypes.State {
	t.mu.Lock()
	if t.state.IsTerminal() {
		defer t.mu.Unlock()
		return t.state
	}
	t.registry.Cancel(t.handle)
	settled := t.finishLocked(transfertypes.StateCancelled, nil, t.token.Err())
	state := t.state
	t.mu.Unlock()

	if settled {
		t.release()
	}
	return state
}

// Progress returns the latest snapshot. After settlement it is the final one.
func (t *Task) Progress() transfertypes.Progress {
	return t.progress.Snapshot()
}

// Result waits for the task to settle.
func (t *Task) Result(ctx context.Context) (*transfertypes.ObjectReference, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ref, t.err
}

// Done is closed once the task has settled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// PartCompleted implements multipart.Hooks.
func (t *Task) PartCompleted(p *multipart.Part) {
	t.logger.Debug("part completed", "part", p.Number, "attempts", p.Attempts())
}

// PartFailed implements multipart.Hooks. The task fails as soon as the first
// unrecoverable part error is known, before siblings finish aborting.
func (t *Task) PartFailed(_ *multipart.Part, err error) {
	t.settle(nil, err)
}

// BeginCommit implements multipart.Hooks. It waits out a pause and then
// marks the task as committing, after which Pause has no effect.
func (t *Task) BeginCommit(ctx context.Context) error {
	for {
		if err := t.gate.Wait(ctx); err != nil {
			return err
		}

		t.mu.Lock()
		switch {
		case t.state == transfertypes.StateInProgress:
			t.committing = true
			t.mu.Unlock()
			return nil
		case t.state.IsTerminal():
			t.mu.Unlock()
			return transfererrors.NewCancelledError(context.Cause(ctx))
		}
		// Paused again between the gate opening and the lock.
		t.mu.Unlock()
	}
}

// transitionLocked moves to `to` when the current state is one of from.
func (t *Task) transitionLocked(to transfertypes.State, from ...transfertypes.State) bool {
	for _, s := range from {
		if t.state == s {
			t.state = to
			return true
		}
	}
	return false
}

func (t *Task) transition(to transfertypes.State, from ...transfertypes.State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(to, from...)
}

// watch settles the task when its token is cancelled through the registry.
func (t *Task) watch() {
	<-t.token.Done()
	if !t.token.Cancelled() {
		return
	}
	t.settle(nil, t.token.Err())
}

func (t *Task) run(ctx context.Context) {
	ref, err := t.execute(ctx)
	t.settle(ref, err)
}

func (t *Task) execute(ctx context.Context) (*transfertypes.ObjectReference, error) {
	if !t.transition(transfertypes.StateInProgress, transfertypes.StatePending) {
		return nil, t.token.Err()
	}

	session, size, err := t.open(ctx)
	if err != nil {
		return nil, err
	}
	t.progress.SetTotal(size)

	parts, err := multipart.Plan(size, t.cfg.PartSize)
	if err != nil {
		t.abort(ctx, session)
		return nil, err
	}

	scheduler := multipart.NewScheduler(session, parts, multipart.Config{
		Direction:   t.cfg.Direction,
		Concurrency: t.cfg.Concurrency,
		Policy:      t.policy,
		Source:      t.cfg.Source,
		Sink:        t.cfg.Sink,
		Gate:        t.gate,
		Progress:    t.progress,
		Hooks:       t,
		Logger:      t.logger,
	})

	ref, err := scheduler.Run(ctx)
	if err != nil {
		return nil, err
	}

	if syncer, ok := t.cfg.Sink.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return nil, transfererrors.NewStorageError("syncSink", err).WithKey(t.cfg.Identity.ResolveKey())
		}
	}

	return t.reference(ref, size), nil
}

// open starts a transport session, retrying transient failures.
func (t *Task) open(ctx context.Context) (transfertypes.Session, int64, error) {
	var (
		session transfertypes.Session
		size    int64
		op      string
	)

	if t.cfg.Direction == transfertypes.DirectionUpload {
		op = "openUpload"
		n, err := t.cfg.Source.Size()
		if err != nil {
			return nil, 0, transfererrors.NewStorageError("readSource", err).WithKey(t.cfg.Identity.ResolveKey())
		}
		size = n
	} else {
		op = "openDownload"
	}

	err := retry.Do(ctx, t.policy, nil, func(ctx context.Context) error {
		var err error
		if t.cfg.Direction == transfertypes.DirectionUpload {
			session, err = t.cfg.Transport.OpenUpload(ctx, t.cfg.Identity, size, t.cfg.Metadata)
		} else {
			session, size, err = t.cfg.Transport.OpenDownload(ctx, t.cfg.Identity)
		}
		return err
	})
	if err != nil {
		if transfererrors.IsCancelled(err) {
			return nil, 0, err
		}
		var storageErr *transfererrors.StorageError
		if errors.As(err, &storageErr) {
			return nil, 0, err
		}
		return nil, 0, transfererrors.NewStorageError(op, err).WithKey(t.cfg.Identity.ResolveKey())
	}
	return session, size, nil
}

func (t *Task) abort(ctx context.Context, session transfertypes.Session) {
	if err := session.Abort(context.WithoutCancel(ctx)); err != nil {
		t.logger.Warn("session abort failed", "error", err)
	}
}

func (t *Task) reference(ref *transfertypes.ObjectReference, size int64) *transfertypes.ObjectReference {
	out := transfertypes.ObjectReference{}
	if ref != nil {
		out = *ref
	}
	out.Identity = t.cfg.Identity
	if out.Key == "" {
		out.Key = t.cfg.Identity.ResolveKey()
	}
	if out.Size == 0 {
		out.Size = size
	}
	if out.ContentType == "" && t.cfg.Metadata != nil {
		out.ContentType = t.cfg.Metadata.ContentType
	}
	out.Duration = time.Since(t.started)
	return &out
}

// settle resolves the task from the outcome of the run or a part failure.
func (t *Task) settle(ref *transfertypes.ObjectReference, err error) {
	state := transfertypes.StateCompleted
	switch {
	case err == nil:
	case transfererrors.IsCancelled(err):
		state = transfertypes.StateCancelled
	default:
		state = transfertypes.StateFailed
	}

	t.mu.Lock()
	settled := t.finishLocked(state, ref, err)
	t.mu.Unlock()

	if settled {
		t.release()
	}
}

// finishLocked records the terminal outcome once. A cancel that removed the
// registry entry first overrides a natural outcome.
func (t *Task) finishLocked(state transfertypes.State, ref *transfertypes.ObjectReference, err error) bool {
	if t.state.IsTerminal() {
		return false
	}

	if t.registry.Settle(t.handle) && t.token.Cancelled() {
		state, ref, err = transfertypes.StateCancelled, nil, t.token.Err()
	}
	if state == transfertypes.StateCancelled && err == nil {
		err = transfererrors.NewCancelledError(nil)
	}

	t.state = state
	t.ref = ref
	t.err = err
	return true
}

// release runs once after settlement, outside the task mutex. Observers may
// call back into the task, including Cancel, so the final snapshot can still
// be in flight here; done closes on a separate goroutine once it has been
// delivered.
func (t *Task) release() {
	t.token.Release()
	final := t.progress.Settle()
	go t.finish(final)
}

func (t *Task) finish(final transfertypes.Progress) {
	<-t.progress.Delivered()
	if t.async != nil {
		t.async.Close()
	}

	t.mu.Lock()
	state, err := t.state, t.err
	t.mu.Unlock()

	switch state {
	case transfertypes.StateFailed:
		t.logger.Error("transfer failed", "error", err, "transferred", final.Transferred)
	case transfertypes.StateCancelled:
		t.logger.Info("transfer cancelled", "transferred", final.Transferred)
	default:
		t.logger.Info("transfer completed",
			"bytes", final.Transferred,
			"duration", time.Since(t.started))
	}

	close(t.done)
}
