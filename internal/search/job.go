package search

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCanceled is reported by a rebuild superseded by newer keywords.
var ErrCanceled = errors.New("search rebuild canceled")

// Status is the state of a rebuild job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Job is one full rebuild of the index for a keyword set.
type Job struct {
	ID         string
	Keywords   []string
	Generation uint64

	mu        sync.Mutex
	status    Status
	startTime time.Time
	endTime   time.Time
	scanned   int
	matched   int
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
}

func newJob(id string, keywords []string, gen uint64) *Job {
	return &Job{
		ID:         id,
		Keywords:   keywords,
		Generation: gen,
		status:     StatusPending,
		done:       make(chan struct{}),
	}
}

// JobProgress is a snapshot of job progress.
type JobProgress struct {
	ID        string    `json:"id"`
	Keywords  []string  `json:"keywords"`
	Status    Status    `json:"status"`
	Scanned   int       `json:"scanned"`
	Matched   int       `json:"matched"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Error     string    `json:"error,omitempty"`
}

// Progress returns a snapshot of the job progress.
func (j *Job) Progress() JobProgress {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := JobProgress{
		ID:        j.ID,
		Keywords:  j.Keywords,
		Status:    j.status,
		Scanned:   j.scanned,
		Matched:   j.matched,
		StartTime: j.startTime,
		EndTime:   j.endTime,
	}
	if j.err != nil {
		p.Error = j.err.Error()
	}
	return p
}

// Status returns the current job status.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Done is closed when the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err returns ErrCanceled for superseded jobs, the failure for failed jobs,
// and nil otherwise.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) start(cancel context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = cancel
	j.status = StatusRunning
	j.startTime = time.Now()
}

func (j *Job) addProgress(scanned, matched int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.scanned += scanned
	j.matched += matched
}

// finish moves the job to a terminal status once.
func (j *Job) finish(status Status, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == StatusCompleted || j.status == StatusFailed || j.status == StatusCanceled {
		return
	}
	j.status = status
	j.err = err
	j.endTime = time.Now()
	if j.cancel != nil {
		j.cancel()
	}
	close(j.done)
}

func (j *Job) stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
