// Package progress aggregates per-part byte counts into task snapshots.
package progress

import (
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Aggregator tracks the bytes of done parts plus the high-water partial
// bytes of active parts. Snapshots never decrease, also when an attempt is
// retried from the start of its part.
//
// Snapshots are queued and handed to the observer by one goroutine at a
// time, with no lock held, so the observer may call back into the
// aggregator or cancel the task that owns it.
type Aggregator struct {
	mu sync.Mutex

	total    int64
	done     int64
	partial  map[int32]int64
	last     int64
	terminal bool
	observer transfertypes.ProgressObserver

	queue     []transfertypes.Progress
	emitting  bool
	delivered chan struct{}
}

// NewAggregator returns an aggregator for total bytes. observer may be nil.
func NewAggregator(total int64, observer transfertypes.ProgressObserver) *Aggregator {
	return &Aggregator{
		total:     total,
		partial:   make(map[int32]int64),
		observer:  observer,
		delivered: make(chan struct{}),
	}
}

// SetTotal sets the object size once it is known.
func (a *Aggregator) SetTotal(total int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total = total
}

// Advance records that part has moved n bytes in its current attempt.
func (a *Aggregator) Advance(part int32, n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.terminal {
		return
	}
	if n > a.partial[part] {
		a.partial[part] = n
	}
}

// Complete folds a finished part into the done total and notifies the observer.
func (a *Aggregator) Complete(part int32, length int64) {
	a.mu.Lock()
	if a.terminal {
		a.mu.Unlock()
		return
	}
	delete(a.partial, part)
	a.done += length
	a.enqueueLocked(a.snapshotLocked())
}

// Settle queues the final snapshot and returns it. Later calls of any kind
// emit nothing. When Settle runs inside an observer call, or while another
// goroutine is emitting, the final snapshot is delivered after Settle
// returns; Delivered reports when that has happened.
func (a *Aggregator) Settle() transfertypes.Progress {
	a.mu.Lock()
	snap := a.snapshotLocked()
	if a.terminal {
		a.mu.Unlock()
		return snap
	}
	a.terminal = true
	a.enqueueLocked(snap)
	return snap
}

// Delivered is closed once the final snapshot has reached the observer.
func (a *Aggregator) Delivered() <-chan struct{} {
	return a.delivered
}

// enqueueLocked queues p and drains the queue unless another call is
// already draining it. It is entered with mu held and returns with mu
// released.
func (a *Aggregator) enqueueLocked(p transfertypes.Progress) {
	a.queue = append(a.queue, p)
	if a.emitting {
		a.mu.Unlock()
		return
	}
	a.emitting = true
	a.mu.Unlock()

	for {
		a.mu.Lock()
		if len(a.queue) == 0 {
			a.emitting = false
			if a.terminal {
				close(a.delivered)
			}
			a.mu.Unlock()
			return
		}
		next := a.queue[0]
		a.queue = a.queue[1:]
		a.mu.Unlock()

		if a.observer != nil {
			a.observer(next)
		}
	}
}

// Snapshot returns the current progress.
func (a *Aggregator) Snapshot() transfertypes.Progress {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() transfertypes.Progress {
	if a.terminal {
		return transfertypes.Progress{Transferred: a.last, Total: a.total}
	}
	transferred := a.done
	for _, n := range a.partial {
		transferred += n
	}
	if transferred > a.total && a.total > 0 {
		transferred = a.total
	}
	if transferred < a.last {
		transferred = a.last
	}
	a.last = transferred
	return transfertypes.Progress{Transferred: transferred, Total: a.total}
}
