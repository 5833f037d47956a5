package pipeline

import (
	"time"

	"ideaboard/internal/storage"
)

// Status is an observable snapshot of the pipeline's state. It describes the
// active run, or the most recent one when no run is active.
type Status struct {
	RunID           string
	Stage           Stage
	ProgressPercent int
	CurrentItem     string
	Errors          []string
	StartedAt       time.Time
	CompletedAt     *time.Time
	Counts          storage.Counts
}

// Running reports whether a run is currently active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Status returns a copy of the current status. The Errors slice is copied so
// callers cannot observe later mutation.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.status
	if len(r.status.Errors) > 0 {
		snapshot.Errors = append([]string(nil), r.status.Errors...)
	}
	return snapshot
}
