package manager

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/cancellation"
	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

const mib = 1024 * 1024

type memSource struct{ data []byte }

func (s memSource) Size() (int64, error) { return int64(len(s.data)), nil }

func (s memSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(s.data)) {
		return 0, nil
	}
	return copy(p, s.data[off:]), nil
}

type memSink struct {
	mu     sync.Mutex
	buf    []byte
	synced bool
}

func (s *memSink) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if end := int(off) + len(p); end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	return copy(s.buf[off:], p), nil
}

func (s *memSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced = true
	return nil
}

func fastRetry() *transfertypes.RetryPolicy {
	return &transfertypes.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Jitter:      -1,
	}
}

func uploadConfig(t *testing.T, data []byte, transport transfertypes.Transport) Config {
	t.Helper()
	return Config{
		Direction: transfertypes.DirectionUpload,
		Identity:  transfertypes.NewIdentity("photos/cat.jpg"),
		Transport: transport,
		Source:    memSource{data: data},
		Metadata:  &transfertypes.UploadMetadata{ContentType: "image/jpeg"},
		Retry:     fastRetry(),
		Registry:  cancellation.NewRegistry(),
	}
}

func result(t *testing.T, task *Task) (*transfertypes.ObjectReference, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ref, err := task.Result(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "task did not settle")
	return ref, err
}

// blockUntil makes every transmit wait for release or cancellation.
func blockUntil(release <-chan struct{}) func(context.Context, *transfertypes.RangeRequest, int) error {
	return func(ctx context.Context, _ *transfertypes.RangeRequest, _ int) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestStart_Validation(t *testing.T) {
	transport := testutil.NewMockTransport(nil)
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "missing transport",
			mutate:  func(c *Config) { c.Transport = nil },
			wantErr: transfererrors.ErrInvalidInput,
		},
		{
			name:    "missing source",
			mutate:  func(c *Config) { c.Source = nil },
			wantErr: transfererrors.ErrInvalidInput,
		},
		{
			name: "missing sink",
			mutate: func(c *Config) {
				c.Direction = transfertypes.DirectionDownload
			},
			wantErr: transfererrors.ErrInvalidInput,
		},
		{
			name: "private identity without id",
			mutate: func(c *Config) {
				c.Identity = transfertypes.NewIdentity("k").WithLevel(transfertypes.AccessPrivate, "")
			},
			wantErr: transfererrors.ErrMissingIdentityID,
		},
		{
			name:    "negative part size",
			mutate:  func(c *Config) { c.PartSize = -1 },
			wantErr: transfererrors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := uploadConfig(t, []byte("data"), transport)
			tt.mutate(&cfg)

			task, err := Start(context.Background(), cfg)
			assert.Nil(t, task)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, cfg.Registry.Len())
		})
	}
}

func TestTask_UploadCompletes(t *testing.T) {
	data := testutil.GenerateRandomData(10 * mib)
	transport := testutil.NewMockTransport(nil)
	transport.Session.Delay = 20 * time.Millisecond
	rec := &testutil.ProgressRecorder{}

	cfg := uploadConfig(t, data, transport)
	cfg.PartSize = 5 * mib
	cfg.Concurrency = 2
	cfg.Observer = rec.Observe

	task, err := Start(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, cfg.Registry.Contains(task.Handle()))

	ref, err := result(t, task)
	require.NoError(t, err)

	assert.Equal(t, transfertypes.StateCompleted, task.State())
	assert.Equal(t, 2, transport.Session.MaxActive())
	assert.Equal(t, data, transport.Session.Assembled())
	assert.Equal(t, int64(10*mib), transport.LastSize())
	assert.Equal(t, "image/jpeg", transport.LastMetadata().ContentType)

	assert.Equal(t, "public/photos/cat.jpg", ref.Key)
	assert.Equal(t, int64(10*mib), ref.Size)
	assert.Equal(t, "image/jpeg", ref.ContentType)
	assert.Equal(t, cfg.Identity, ref.Identity)

	assert.Equal(t, transfertypes.Progress{Transferred: 10 * mib, Total: 10 * mib}, task.Progress())
	assert.True(t, rec.Monotonic())
	// One call per part plus the terminal one.
	assert.Len(t, rec.Updates(), 3)
	assert.Equal(t, int64(10*mib), rec.Last().Transferred)

	assert.Zero(t, cfg.Registry.Len(), "settled task leaves no registry entry")
	assert.Equal(t, cancellation.StatusAlreadyResolved, cfg.Registry.Cancel(task.Handle()))
	assert.Equal(t, transfertypes.StateCompleted, task.Cancel())
	assert.Equal(t, transfertypes.StateCompleted, task.Pause())
	assert.Len(t, rec.Updates(), 3, "no observer call after settlement")
}

func TestTask_Download(t *testing.T) {
	data := testutil.GenerateRandomData(3*mib + 123)
	transport := testutil.NewMockTransport(data)
	sink := &memSink{}

	task, err := Start(context.Background(), Config{
		Direction:   transfertypes.DirectionDownload,
		Identity:    transfertypes.NewIdentity("k").WithLevel(transfertypes.AccessProtected, "user-1"),
		Transport:   transport,
		Sink:        sink,
		PartSize:    mib,
		Concurrency: 3,
		Retry:       fastRetry(),
		Registry:    cancellation.NewRegistry(),
	})
	require.NoError(t, err)

	ref, err := result(t, task)
	require.NoError(t, err)
	assert.Equal(t, data, sink.buf)
	assert.True(t, sink.synced)
	assert.Equal(t, "protected/user-1/k", ref.Key)
	assert.Equal(t, int64(len(data)), task.Progress().Transferred)
}

func TestTask_RetriesTransientFailures(t *testing.T) {
	data := testutil.GenerateRandomData(2 * 1024)
	transport := testutil.NewMockTransport(nil)
	transport.Session.TransmitFunc = func(_ context.Context, req *transfertypes.RangeRequest, attempt int) error {
		if req.PartNumber == 1 && attempt <= 2 {
			return &transfererrors.NetworkError{Err: errors.New("connection reset")}
		}
		return nil
	}

	cfg := uploadConfig(t, data, transport)
	cfg.PartSize = 1024

	task, err := Start(context.Background(), cfg)
	require.NoError(t, err)

	_, err = result(t, task)
	require.NoError(t, err)
	assert.Equal(t, transfertypes.StateCompleted, task.State())
	assert.Equal(t, 3, transport.Session.Attempts(1))
	assert.Equal(t, 1, transport.Session.Attempts(2))
}

func TestTask_UnrecoverableFailure(t *testing.T) {
	data := testutil.GenerateRandomData(4 * 1024)
	forbidden := &transfererrors.HTTPError{StatusCode: http.StatusBadRequest, Code: "InvalidArgument"}

	siblingStarted := make(chan struct{})
	var siblingAborted sync.WaitGroup
	siblingAborted.Add(1)

	transport := testutil.NewMockTransport(nil)
	transport.Session.TransmitFunc = func(ctx context.Context, req *transfertypes.RangeRequest, _ int) error {
		switch req.PartNumber {
		case 1:
			<-siblingStarted
			return forbidden
		case 2:
			close(siblingStarted)
			<-ctx.Done()
			siblingAborted.Done()
			return ctx.Err()
		}
		return nil
	}

	cfg := uploadConfig(t, data, transport)
	cfg.PartSize = 1024
	cfg.Concurrency = 2

	task, err := Start(context.Background(), cfg)
	require.NoError(t, err)

	_, err = result(t, task)
	require.Error(t, err)
	assert.ErrorIs(t, err, forbidden)
	assert.False(t, transfererrors.IsCancelled(err))
	assert.Equal(t, transfertypes.StateFailed, task.State())

	siblingAborted.Wait()
	assert.Eventually(t, func() bool { return transport.Session.Aborts() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, transport.Session.Commits())
	assert.Zero(t, cfg.Registry.Len())
	assert.Equal(t, transfertypes.StateFailed, task.Cancel())
}

func TestTask_OpenFailure(t *testing.T) {
	transport := testutil.NewMockTransport(nil)
	transport.OpenErr = &transfererrors.HTTPError{StatusCode: http.StatusForbidden, Code: "AccessDenied"}

	task, err := Start(context.Background(), uploadConfig(t, []byte("abc"), transport))
	require.NoError(t, err)

	_, err = result(t, task)
	var storageErr *transfererrors.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "openUpload", storageErr.Op)
	assert.Equal(t, "public/photos/cat.jpg", storageErr.Key)
	assert.Equal(t, transfertypes.StateFailed, task.State())
}

func TestTask_Cancel(t *testing.T) {
	data := testutil.GenerateRandomData(8 * 1024)
	transport := testutil.NewMockTransport(nil)
	transport.Session.Delay = time.Hour
	rec := &testutil.ProgressRecorder{}

	cfg := uploadConfig(t, data, transport)
	cfg.PartSize = 1024
	cfg.Concurrency = 2
	cfg.Observer = rec.Observe

	task, err := Start(context.Background(), cfg)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return transport.Session.MaxActive() == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, transfertypes.StateCancelled, task.Cancel())
	assert.Equal(t, transfertypes.StateCancelled, task.Cancel(), "cancel is idempotent")

	_, err = result(t, task)
	assert.True(t, transfererrors.IsCancelled(err))
	assert.ErrorIs(t, err, transfererrors.ErrCancelled)

	assert.Eventually(t, func() bool { return transport.Session.Aborts() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, transport.Session.Commits())
	assert.Zero(t, cfg.Registry.Len())
	assert.Equal(t, cancellation.StatusAlreadyResolved, cfg.Registry.Cancel(task.Handle()))

	updates := len(rec.Updates())
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, rec.Updates(), updates, "no observer call after cancellation")
}

func TestTask_CancelThroughRegistry(t *testing.T) {
	transport := testutil.NewMockTransport(nil)
	transport.Session.Delay = time.Hour
	cfg := uploadConfig(t, testutil.GenerateRandomData(4096), transport)
	cfg.PartSize = 1024

	task, err := Start(context.Background(), cfg)
	require.NoError(t, err)

	// Two racing cancels: exactly one wins.
	statuses := make([]cancellation.Status, 2)
	var wg sync.WaitGroup
	for i := range statuses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = cfg.Registry.Cancel(task.Handle())
		}()
	}
	wg.Wait()
	assert.ElementsMatch(t,
		[]cancellation.Status{cancellation.StatusCancelled, cancellation.StatusAlreadyResolved},
		statuses)

	_, err = result(t, task)
	assert.True(t, transfererrors.IsCancelled(err))
	assert.Equal(t, transfertypes.StateCancelled, task.State())
}

func TestTask_CancelWhilePaused(t *testing.T) {
	release := make(chan struct{})
	transport := testutil.NewMockTransport(nil)
	transport.Session.TransmitFunc = blockUntil(release)
	cfg := uploadConfig(t, testutil.GenerateRandomData(4096), transport)
	cfg.PartSize = 1024

	task, err := Start(context.Background(), cfg)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return task.State() == transfertypes.StateInProgress }, time.Second, time.Millisecond)

	assert.Equal(t, transfertypes.StatePaused, task.Pause())
	assert.Equal(t, transfertypes.StateCancelled, task.Cancel())
	assert.Equal(t, transfertypes.StateCancelled, task.Resume(), "resume does not leave a terminal state")

	_, err = result(t, task)
	assert.True(t, transfererrors.IsCancelled(err))
}

func TestTask_ParentContextCancel(t *testing.T) {
	transport := testutil.NewMockTransport(nil)
	transport.Session.Delay = time.Hour
	cfg := uploadConfig(t, testutil.GenerateRandomData(2048), transport)

	ctx, cancel := context.WithCancel(context.Background())
	task, err := Start(ctx, cfg)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(transport.Session.Started()) > 0 }, time.Second, time.Millisecond)

	cancel()
	_, err = result(t, task)
	assert.True(t, transfererrors.IsCancelled(err))
	assert.Equal(t, transfertypes.StateCancelled, task.State())
	assert.Zero(t, cfg.Registry.Len())
}

func TestTask_PauseHoldsCompletedParts(t *testing.T) {
	data := testutil.GenerateRandomData(4 * 1024)
	release := make(chan struct{})
	transport := testutil.NewMockTransport(nil)
	transport.Session.TransmitFunc = blockUntil(release)
	rec := &testutil.ProgressRecorder{}

	cfg := uploadConfig(t, data, transport)
	cfg.PartSize = 1024
	cfg.Concurrency = 1
	cfg.Observer = rec.Observe

	task, err := Start(context.Background(), cfg)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(transport.Session.Started()) == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, transfertypes.StatePaused, task.Pause())
	assert.Equal(t, transfertypes.StatePaused, task.Pause(), "pause is idempotent")
	close(release)

	// The in-flight part finishes but is held, and nothing new is dispatched.
	require.Eventually(t, func() bool { return task.Progress().Transferred == 1024 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, transport.Session.Started(), 1)
	assert.Empty(t, rec.Updates(), "held part is not reported complete")
	assert.Equal(t, transfertypes.StatePaused, task.State())
	paused := task.Progress()

	assert.Equal(t, transfertypes.StateInProgress, task.Resume())
	assert.Equal(t, transfertypes.StateInProgress, task.Resume(), "resume is idempotent")

	_, err = result(t, task)
	require.NoError(t, err)
	assert.Equal(t, data, transport.Session.Assembled())
	assert.GreaterOrEqual(t, task.Progress().Transferred, paused.Transferred)
	assert.True(t, rec.Monotonic())
}

func TestTask_PauseResumeMatchesUnpausedRun(t *testing.T) {
	data := testutil.GenerateRandomData(5 * 1024)

	run := func(t *testing.T, pause bool) (*transfertypes.ObjectReference, []byte) {
		release := make(chan struct{})
		transport := testutil.NewMockTransport(nil)
		transport.Session.TransmitFunc = blockUntil(release)

		cfg := uploadConfig(t, data, transport)
		cfg.PartSize = 1024
		cfg.Concurrency = 2

		task, err := Start(context.Background(), cfg)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return transport.Session.MaxActive() == 2 }, time.Second, time.Millisecond)

		if pause {
			before := task.Progress()
			assert.Equal(t, transfertypes.StatePaused, task.Pause())
			assert.Equal(t, transfertypes.StateInProgress, task.Resume())
			assert.Equal(t, before, task.Progress())
		}
		close(release)

		ref, err := result(t, task)
		require.NoError(t, err)
		return ref, transport.Session.Assembled()
	}

	plainRef, plainData := run(t, false)
	pausedRef, pausedData := run(t, true)

	assert.Equal(t, plainData, pausedData)
	assert.Equal(t, plainRef.Size, pausedRef.Size)
	assert.Equal(t, plainRef.Key, pausedRef.Key)
	assert.Equal(t, plainRef.ETag, pausedRef.ETag)
}

func TestTask_ControlNoOps(t *testing.T) {
	release := make(chan struct{})
	transport := testutil.NewMockTransport(nil)
	transport.Session.TransmitFunc = blockUntil(release)
	cfg := uploadConfig(t, []byte("hello"), transport)

	task, err := Start(context.Background(), cfg)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return task.State() == transfertypes.StateInProgress }, time.Second, time.Millisecond)

	assert.Equal(t, transfertypes.StateInProgress, task.Resume(), "resume without pause is a no-op")
	close(release)

	_, err = result(t, task)
	require.NoError(t, err)
	assert.Equal(t, transfertypes.StateCompleted, task.Pause())
	assert.Equal(t, transfertypes.StateCompleted, task.Resume())
}

func TestTask_AsyncObserver(t *testing.T) {
	data := testutil.GenerateRandomData(8 * 1024)
	transport := testutil.NewMockTransport(nil)

	var (
		mu       sync.Mutex
		observed []transfertypes.Progress
	)
	slow := func(p transfertypes.Progress) {
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, p)
	}

	cfg := uploadConfig(t, data, transport)
	cfg.PartSize = 1024
	cfg.Observer = slow
	cfg.AsyncObserver = true

	task, err := Start(context.Background(), cfg)
	require.NoError(t, err)
	_, err = result(t, task)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, observed)
	assert.LessOrEqual(t, len(observed), 9)
	assert.Equal(t, int64(len(data)), observed[len(observed)-1].Transferred)
	for i := 1; i < len(observed); i++ {
		assert.GreaterOrEqual(t, observed[i].Transferred, observed[i-1].Transferred)
	}
}

func TestTask_ObserverCancels(t *testing.T) {
	tests := []struct {
		name  string
		async bool
	}{
		{"sync observer", false},
		{"async observer", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testutil.GenerateRandomData(4 * mib)
			transport := testutil.NewMockTransport(nil)

			started := make(chan struct{})
			var (
				task   *Task
				mu     sync.Mutex
				calls  int
				states []transfertypes.State
			)
			cfg := uploadConfig(t, data, transport)
			cfg.PartSize = mib
			cfg.Concurrency = 1
			cfg.AsyncObserver = tt.async
			cfg.Observer = func(transfertypes.Progress) {
				<-started
				state := task.Cancel()
				mu.Lock()
				defer mu.Unlock()
				calls++
				states = append(states, state)
			}

			var err error
			task, err = Start(context.Background(), cfg)
			require.NoError(t, err)
			close(started)

			_, err = result(t, task)
			assert.True(t, transfererrors.IsCancelled(err))
			assert.Equal(t, transfertypes.StateCancelled, task.State())
			assert.Zero(t, cfg.Registry.Len())
			assert.Zero(t, transport.Session.Commits())

			mu.Lock()
			defer mu.Unlock()
			require.NotEmpty(t, states)
			for _, s := range states {
				assert.Equal(t, transfertypes.StateCancelled, s)
			}
			assert.LessOrEqual(t, calls, 2, "first snapshot plus the final one")
		})
	}
}

func TestTask_EmptyUpload(t *testing.T) {
	transport := testutil.NewMockTransport(nil)
	task, err := Start(context.Background(), uploadConfig(t, nil, transport))
	require.NoError(t, err)

	ref, err := result(t, task)
	require.NoError(t, err)
	assert.Zero(t, ref.Size)
	assert.Equal(t, transfertypes.Progress{}, task.Progress())
	assert.Equal(t, 1, transport.Session.Commits())
}
