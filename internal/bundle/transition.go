package bundle

import "slices"

// Transition is a named, parameterized state change. Applying the same
// transition twice yields the same record as applying it once.
type Transition interface {
	// Name identifies the transition in logs and metrics.
	Name() string
	apply(r *Record)
}

// Apply returns the record produced by t. The input record is not modified.
func Apply(r Record, t Transition) Record {
	out := r.Clone()
	t.apply(&out)
	return out
}

// BeginTask starts a task from zero progress.
type BeginTask struct {
	Task Task
}

func (BeginTask) Name() string { return "begin_task" }

func (t BeginTask) apply(r *Record) {
	r.Task = t.Task
	r.Status = StatusInProgress
	r.Progress = IntPtr(0)
}

// EnsureInProgress marks the task as running without resetting progress
// that has already been reported.
type EnsureInProgress struct {
	Task Task
}

func (EnsureInProgress) Name() string { return "ensure_in_progress" }

func (t EnsureInProgress) apply(r *Record) {
	if r.Task == t.Task && r.Status == StatusInProgress {
		return
	}
	BeginTask(t).apply(r)
}

// UpdateProgress reports doneCount out of totalCount units of work.
type UpdateProgress struct {
	Task       Task
	DoneCount  int
	TotalCount int
}

func (UpdateProgress) Name() string { return "update_progress" }

func (t UpdateProgress) apply(r *Record) {
	if t.TotalCount <= 0 {
		return
	}
	p := percent(t.DoneCount, t.TotalCount)
	if r.Task == t.Task {
		switch r.Status {
		case StatusCompleted:
			// a late report for a task that already finished
			return
		case StatusInProgress:
			if r.Progress != nil && *r.Progress > p {
				p = *r.Progress
			}
		}
	}
	r.Task = t.Task
	r.Progress = IntPtr(p)
	if p == 100 {
		r.Status = StatusCompleted
	} else {
		r.Status = StatusInProgress
	}
}

// CompleteStatus forces the task to its terminal state. Finishing a
// resource removal returns the bundle to a downloadable state. That also
// holds when a record still in REMOVE_RESOURCES is completed for another
// task, so a repeat of the same CompleteStatus then completes that task.
// It is idempotent whenever Task matches the record's task.
type CompleteStatus struct {
	Task Task
}

func (CompleteStatus) Name() string { return "complete_status" }

func (t CompleteStatus) apply(r *Record) {
	if r.Task == TaskRemoveResources || t.Task == TaskRemoveResources {
		r.Task = TaskDownload
		r.Status = StatusNotStarted
		r.Progress = nil
		return
	}
	r.Task = t.Task
	r.Status = StatusCompleted
	r.Progress = IntPtr(100)
}

// RefreshFromSnapshot replaces the record's state with an authoritative
// snapshot. It wins over locally tracked progress.
type RefreshFromSnapshot struct {
	Snapshot Snapshot
}

func (RefreshFromSnapshot) Name() string { return "refresh_from_snapshot" }

func (t RefreshFromSnapshot) apply(r *Record) {
	s := t.Snapshot
	manifest := r.ResourceCountManifest
	if r.ID != s.ID {
		manifest = 0
	}
	if s.ResourceCountManifest != nil {
		manifest = *s.ResourceCountManifest
	}
	task, status, progress := deriveTaskStatus(*r, s, manifest)

	var parent *Parent
	if s.Parent != nil {
		p := *s.Parent
		parent = &p
	}
	*r = Record{
		ID:                    s.ID,
		DblID:                 s.DblID,
		Revision:              s.Revision,
		Parent:                parent,
		Medium:                s.Medium,
		Mode:                  s.Mode,
		Task:                  task,
		Status:                status,
		Progress:              progress,
		ResourceCountStored:   max(s.ResourceCountStored, 0),
		ResourceCountManifest: manifest,
		Name:                  s.Name,
		LanguageISO:           s.LanguageISO,
		LanguageName:          s.LanguageName,
		Countries:             slices.Clone(s.Countries),
		License:               s.License,
		RightsHolders:         slices.Clone(s.RightsHolders),
	}
}

// ResourceRemoved accounts for one locally stored resource being deleted.
// Each path is counted at most once between snapshots.
type ResourceRemoved struct {
	Path string
}

func (ResourceRemoved) Name() string { return "resource_removed" }

func (t ResourceRemoved) apply(r *Record) {
	if _, seen := r.RemovedResources[t.Path]; seen {
		return
	}
	if r.RemovedResources == nil {
		r.RemovedResources = make(map[string]struct{})
	}
	r.RemovedResources[t.Path] = struct{}{}
	r.ResourceCountStored = max(r.ResourceCountStored-1, 0)

	if r.Task != TaskRemoveResources || r.Status != StatusInProgress {
		BeginTask{Task: TaskRemoveResources}.apply(r)
	}
	if r.ResourceCountStored == 0 {
		CompleteStatus{Task: TaskRemoveResources}.apply(r)
		return
	}
	removed := len(r.RemovedResources)
	r.Progress = IntPtr(percent(removed, removed+r.ResourceCountStored))
}
