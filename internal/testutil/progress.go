package testutil

import (
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// ProgressRecorder collects the snapshots passed to a progress observer.
type ProgressRecorder struct {
	mu      sync.Mutex
	updates []transfertypes.Progress
}

// Observe records a snapshot. Pass it as a transfertypes.ProgressObserver.
func (r *ProgressRecorder) Observe(p transfertypes.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
}

// Updates returns a copy of the recorded snapshots.
func (r *ProgressRecorder) Updates() []transfertypes.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transfertypes.Progress(nil), r.updates...)
}

// Last returns the latest snapshot, or the zero value.
func (r *ProgressRecorder) Last() transfertypes.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return transfertypes.Progress{}
	}
	return r.updates[len(r.updates)-1]
}

// Monotonic reports whether the snapshots never decreased.
func (r *ProgressRecorder) Monotonic() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 1; i < len(r.updates); i++ {
		if r.updates[i].Transferred < r.updates[i-1].Transferred {
			return false
		}
	}
	return true
}

// Reset clears the recorded snapshots.
func (r *ProgressRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = nil
}
