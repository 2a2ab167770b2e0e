package bundle

// Snapshot is the authoritative bundle representation returned by the
// backend REST API.
type Snapshot struct {
	ID       string  `json:"id"`
	DblID    string  `json:"dblId"`
	Revision string  `json:"revision"`
	Medium   string  `json:"medium"`
	Mode     string  `json:"mode"`
	Parent   *Parent `json:"parent,omitempty"`

	Name          string   `json:"name"`
	LanguageISO   string   `json:"languageIso,omitempty"`
	LanguageName  string   `json:"languageName,omitempty"`
	Countries     []string `json:"countries,omitempty"`
	License       string   `json:"license,omitempty"`
	RightsHolders []string `json:"rightsHolders,omitempty"`

	ResourceCountStored int `json:"resourceCountStored"`
	// ResourceCountManifest is nil when the backend did not report it and
	// the manifest must be fetched separately.
	ResourceCountManifest *int `json:"resourceCountManifest"`
}

// FromSnapshot builds a fresh record from a snapshot.
func FromSnapshot(s Snapshot) Record {
	return Apply(Record{}, RefreshFromSnapshot{Snapshot: s})
}

// deriveTaskStatus maps the backend mode and resource counts onto the
// task/status vocabulary.
func deriveTaskStatus(prev Record, s Snapshot, manifest int) (Task, Status, *int) {
	if s.Revision == DraftRevision && (s.Mode == ModeStore || s.Mode == ModeCreate) {
		return TaskUpload, StatusDraft, nil
	}
	switch s.Mode {
	case ModeUpload:
		if prev.ID == s.ID && prev.Task == TaskUpload && prev.Status == StatusInProgress && prev.Progress != nil {
			return TaskUpload, StatusInProgress, IntPtr(*prev.Progress)
		}
		return TaskUpload, StatusInProgress, IntPtr(0)
	case ModeDownload:
		return TaskDownload, StatusInProgress, IntPtr(percent(s.ResourceCountStored, manifest))
	case ModeStore:
		if manifest > 0 && s.ResourceCountStored >= manifest {
			return TaskDownload, StatusCompleted, IntPtr(100)
		}
		return TaskDownload, StatusNotStarted, nil
	default:
		return TaskDownload, StatusNotStarted, nil
	}
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := done * 100 / total
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
