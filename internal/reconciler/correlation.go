package reconciler

import "sync"

// JobTable correlates upload job ids with the bundle they upload.
type JobTable struct {
	mu   sync.RWMutex
	jobs map[string]string
}

// NewJobTable creates an empty table.
func NewJobTable() *JobTable {
	return &JobTable{jobs: make(map[string]string)}
}

// Set records that jobID uploads bundleID.
func (t *JobTable) Set(jobID, bundleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[jobID] = bundleID
}

// Lookup returns the bundle for jobID.
func (t *JobTable) Lookup(jobID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.jobs[jobID]
	return id, ok
}

// Clear forgets jobID.
func (t *JobTable) Clear(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, jobID)
}

// ClearBundle forgets every job of bundleID.
func (t *JobTable) ClearBundle(bundleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for job, id := range t.jobs {
		if id == bundleID {
			delete(t.jobs, job)
		}
	}
}

// Len returns the number of tracked jobs.
func (t *JobTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}
