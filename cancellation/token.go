package cancellation

import (
	"context"
	"errors"
	"sync/atomic"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// errSettled is the context cause once a token is released after natural settlement.
var errSettled = errors.New("cancellation: token settled")

// Token is a cancellation flag backed by a context. Cancelling a token
// cancels every token derived from it with Child.
type Token struct {
	ctx       context.Context
	cancel    context.CancelCauseFunc
	cancelled atomic.Bool
	parent    *Token
}

// NewToken returns a token whose context derives from parent.
func NewToken(parent context.Context) *Token {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Child derives a token that is cancelled whenever t is.
func (t *Token) Child() *Token {
	ctx, cancel := context.WithCancelCause(t.ctx)
	return &Token{ctx: ctx, cancel: cancel, parent: t}
}

// Context returns the context to hand to blocking calls.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Done is closed when the token is cancelled or released.
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Cancel flips the token. Only the first call has an effect; it reports
// whether this call was the one that cancelled.
func (t *Token) Cancel(cause error) bool {
	if cause == nil {
		cause = transfererrors.ErrCancelled
	}
	if !t.cancelled.CompareAndSwap(false, true) {
		return false
	}
	t.cancel(cause)
	return true
}

// Cancelled reports whether t or one of its ancestors was cancelled.
func (t *Token) Cancelled() bool {
	for cur := t; cur != nil; cur = cur.parent {
		if cur.cancelled.Load() {
			return true
		}
	}
	return false
}

// Err returns a CancelledError once the token is cancelled, nil otherwise.
func (t *Token) Err() error {
	if !t.Cancelled() {
		return nil
	}
	return transfererrors.NewCancelledError(context.Cause(t.ctx))
}

// Release frees the context of a token whose operation settled naturally.
// The token does not report itself cancelled afterwards.
func (t *Token) Release() {
	t.cancel(errSettled)
}
