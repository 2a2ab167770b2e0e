// Package bundle defines the cached bundle record and the task/status state
// machine that every event and fetched snapshot is translated into.
package bundle

import (
	"maps"
	"slices"
)

// Task is the kind of operation a bundle is currently undergoing.
type Task string

const (
	TaskUpload          Task = "UPLOAD"
	TaskDownload        Task = "DOWNLOAD"
	TaskSaveTo          Task = "SAVETO"
	TaskRemoveResources Task = "REMOVE_RESOURCES"
)

// IsValid checks if the task is a known value.
func (t Task) IsValid() bool {
	switch t {
	case TaskUpload, TaskDownload, TaskSaveTo, TaskRemoveResources:
		return true
	default:
		return false
	}
}

// Status is the lifecycle phase of the current task.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// Backend lifecycle modes reported on snapshots.
const (
	ModeStore    = "store"
	ModeCreate   = "create"
	ModeDownload = "download"
	ModeUpload   = "upload"
)

// Parent is a weak reference to the record a draft or fork was created from.
type Parent struct {
	DblID    string `json:"dblId"`
	Revision string `json:"revision"`
	BundleID string `json:"bundleId,omitempty"`
}

// Record is one cached work item. The cache owns records; every other
// component holds ids only.
type Record struct {
	ID       string  `json:"id"`
	DblID    string  `json:"dblId"`
	Revision string  `json:"revision"`
	Parent   *Parent `json:"parent,omitempty"`
	Medium   string  `json:"medium"`
	Mode     string  `json:"mode"`

	Task     Task   `json:"task"`
	Status   Status `json:"status"`
	Progress *int   `json:"progress"`

	ResourceCountStored   int `json:"resourceCountStored"`
	ResourceCountManifest int `json:"resourceCountManifest"`

	Name          string   `json:"name"`
	LanguageISO   string   `json:"languageIso,omitempty"`
	LanguageName  string   `json:"languageName,omitempty"`
	Countries     []string `json:"countries,omitempty"`
	License       string   `json:"license,omitempty"`
	RightsHolders []string `json:"rightsHolders,omitempty"`

	// RemovedResources tracks resource paths already accounted for by
	// ResourceRemoved since the last snapshot.
	RemovedResources map[string]struct{} `json:"-"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	if r.Parent != nil {
		p := *r.Parent
		out.Parent = &p
	}
	if r.Progress != nil {
		out.Progress = IntPtr(*r.Progress)
	}
	out.Countries = slices.Clone(r.Countries)
	out.RightsHolders = slices.Clone(r.RightsHolders)
	if r.RemovedResources != nil {
		out.RemovedResources = maps.Clone(r.RemovedResources)
	}
	return out
}

// IsDraft reports whether the record is an unsubmitted draft.
func (r Record) IsDraft() bool {
	return r.Status == StatusDraft
}

// ProgressValue returns the progress or -1 when unset.
func (r Record) ProgressValue() int {
	if r.Progress == nil {
		return -1
	}
	return *r.Progress
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
