package cancellation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

func TestToken(t *testing.T) {
	t.Run("cancel is idempotent", func(t *testing.T) {
		tok := NewToken(context.Background())
		assert.False(t, tok.Cancelled())
		assert.NoError(t, tok.Err())

		assert.True(t, tok.Cancel(nil))
		assert.False(t, tok.Cancel(errors.New("second")))
		assert.True(t, tok.Cancelled())
		assert.ErrorIs(t, tok.Err(), transfererrors.ErrCancelled)
		assert.ErrorIs(t, context.Cause(tok.Context()), transfererrors.ErrCancelled)

		select {
		case <-tok.Done():
		default:
			t.Fatal("context not cancelled")
		}
	})

	t.Run("parent cancels children transitively", func(t *testing.T) {
		parent := NewToken(context.Background())
		child := parent.Child()
		grandchild := child.Child()

		parent.Cancel(errors.New("stop"))

		assert.True(t, child.Cancelled())
		assert.True(t, grandchild.Cancelled())
		<-grandchild.Done()
		assert.ErrorContains(t, grandchild.Err(), "stop")
	})

	t.Run("child cancel leaves parent alone", func(t *testing.T) {
		parent := NewToken(context.Background())
		child := parent.Child()
		child.Cancel(nil)

		assert.True(t, child.Cancelled())
		assert.False(t, parent.Cancelled())
		assert.NoError(t, parent.Context().Err())
	})

	t.Run("release is not a cancellation", func(t *testing.T) {
		tok := NewToken(context.Background())
		tok.Release()
		<-tok.Done()
		assert.False(t, tok.Cancelled())
		assert.NoError(t, tok.Err())
	})
}

func TestRegistry(t *testing.T) {
	t.Run("cancel live entry", func(t *testing.T) {
		r := NewRegistry()
		h, tok := r.Register(context.Background())
		require.True(t, r.Contains(h))

		assert.Equal(t, StatusCancelled, r.Cancel(h))
		assert.True(t, tok.Cancelled())
		assert.Equal(t, StatusAlreadyResolved, r.Cancel(h))
		assert.Equal(t, 0, r.Len())
	})

	t.Run("settle then cancel", func(t *testing.T) {
		r := NewRegistry()
		h, tok := r.Register(context.Background())

		assert.False(t, r.Settle(h))
		assert.Equal(t, StatusAlreadyResolved, r.Cancel(h))
		assert.False(t, tok.Cancelled())
	})

	t.Run("cancel then settle", func(t *testing.T) {
		r := NewRegistry()
		h, _ := r.Register(context.Background())

		assert.Equal(t, StatusCancelled, r.Cancel(h))
		assert.True(t, r.Settle(h))
	})

	t.Run("unknown handle", func(t *testing.T) {
		r := NewRegistry()
		assert.Equal(t, StatusAlreadyResolved, r.Cancel("nope"))
	})

	t.Run("duplicate handle", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.RegisterHandle(context.Background(), "job-1")
		require.NoError(t, err)
		_, err = r.RegisterHandle(context.Background(), "job-1")
		assert.ErrorIs(t, err, transfererrors.ErrDuplicateHandle)
	})

	t.Run("cause is attached", func(t *testing.T) {
		r := NewRegistry()
		h, tok := r.Register(context.Background())
		cause := errors.New("shutdown")
		r.CancelWithCause(h, cause)
		assert.ErrorIs(t, tok.Err(), cause)
	})
}

func TestRegistry_ConcurrentCancels(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 200; i++ {
		h, _ := r.Register(context.Background())

		var wg sync.WaitGroup
		results := make([]Status, 2)
		for j := range results {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				results[j] = r.Cancel(h)
			}(j)
		}
		wg.Wait()

		assert.ElementsMatch(t, []Status{StatusCancelled, StatusAlreadyResolved}, results)
	}
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_CancelSettleRace(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 200; i++ {
		h, tok := r.Register(context.Background())

		var (
			wg        sync.WaitGroup
			status    Status
			cancelled bool
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			status = r.Cancel(h)
		}()
		go func() {
			defer wg.Done()
			cancelled = r.Settle(h)
		}()
		wg.Wait()

		// Exactly one side removed the entry and both agree on who it was.
		if status == StatusCancelled {
			assert.True(t, cancelled)
			assert.True(t, tok.Cancelled())
		} else {
			assert.False(t, cancelled)
			assert.False(t, tok.Cancelled())
		}
	}
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_NoGrowth(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, _ := r.Register(context.Background())
			r.Settle(h)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}

func TestDefaultRegistry(t *testing.T) {
	h, tok := Default().Register(context.Background())
	assert.Equal(t, StatusCancelled, Cancel(h))
	assert.True(t, tok.Cancelled())
	assert.Equal(t, StatusAlreadyResolved, Cancel(h))
}

func TestGo(t *testing.T) {
	t.Run("natural completion", func(t *testing.T) {
		r := NewRegistry()
		op := Go(context.Background(), r, func(context.Context) (int, error) {
			return 42, nil
		})

		v, err := op.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, StatusAlreadyResolved, op.Cancel())
		assert.Equal(t, 0, r.Len())
	})

	t.Run("error is returned", func(t *testing.T) {
		boom := errors.New("boom")
		op := Go(context.Background(), NewRegistry(), func(context.Context) (string, error) {
			return "", boom
		})
		_, err := op.Wait(context.Background())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancel resolves immediately", func(t *testing.T) {
		r := NewRegistry()
		release := make(chan struct{})
		op := Go(context.Background(), r, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			<-release
			return 0, ctx.Err()
		})

		assert.Equal(t, StatusCancelled, op.Cancel())
		_, err := op.Wait(context.Background())
		assert.ErrorIs(t, err, transfererrors.ErrCancelled)

		close(release)
		<-op.Done()
		_, err = op.Wait(context.Background())
		assert.ErrorIs(t, err, transfererrors.ErrCancelled)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("parent context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		op := Go(ctx, NewRegistry(), func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		cancel()

		_, err := op.Wait(context.Background())
		assert.ErrorIs(t, err, transfererrors.ErrCancelled)
	})

	t.Run("wait honours its own context", func(t *testing.T) {
		op := Go(context.Background(), NewRegistry(), func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, nil
		})
		defer op.Cancel()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := op.Wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
