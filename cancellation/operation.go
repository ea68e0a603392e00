package cancellation

import (
	"context"
	"errors"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// Operation is an asynchronous function enrolled in a registry.
type Operation[T any] struct {
	handle   Handle
	registry *Registry
	token    *Token
	done     chan struct{}
	value    T
	err      error
}

// Go runs fn in its own goroutine under a token registered in r (the
// default registry when r is nil). fn must return promptly once its
// context is done.
func Go[T any](ctx context.Context, r *Registry, fn func(context.Context) (T, error)) *Operation[T] {
	if r == nil {
		r = Default()
	}
	h, tok := r.Register(ctx)
	op := &Operation[T]{
		handle:   h,
		registry: r,
		token:    tok,
		done:     make(chan struct{}),
	}
	go op.run(ctx, fn)
	return op
}

func (o *Operation[T]) run(parent context.Context, fn func(context.Context) (T, error)) {
	defer close(o.done)

	v, err := fn(o.token.Context())
	if cancelledFirst := o.registry.Settle(o.handle); cancelledFirst {
		var zero T
		o.value, o.err = zero, o.token.Err()
		return
	}
	o.token.Release()

	if err != nil && errors.Is(err, context.Canceled) && parent.Err() != nil {
		err = transfererrors.NewCancelledError(context.Cause(parent))
	}
	o.value, o.err = v, err
}

// Handle returns the registry handle of the operation.
func (o *Operation[T]) Handle() Handle {
	return o.handle
}

// Done is closed once the function has returned.
func (o *Operation[T]) Done() <-chan struct{} {
	return o.done
}

// Cancel cancels the operation through its registry.
func (o *Operation[T]) Cancel() Status {
	return o.registry.Cancel(o.handle)
}

// Wait returns the result. A cancelled operation resolves with a
// CancelledError as soon as the cancel lands, without waiting for fn.
func (o *Operation[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-o.done:
		return o.value, o.err
	case <-o.token.Done():
		if o.token.Cancelled() {
			return zero, o.token.Err()
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	// The token was released or its parent context ended; fn is returning.
	select {
	case <-o.done:
		return o.value, o.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
