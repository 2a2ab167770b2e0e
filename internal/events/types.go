// Package events decodes inbound task-service messages into typed events.
// Every topic maps to exactly one event variant.
package events

// Topic is the closed set of event topics consumed by the engine.
type Topic string

const (
	TopicChangeMode         Topic = "storer/change_mode"
	TopicWriteResource      Topic = "storer/write_resource"
	TopicDeleteResource     Topic = "storer/delete_resource"
	TopicDeleteBundle       Topic = "storer/delete_bundle"
	TopicUpdateFromDownload Topic = "storer/update_from_download"
	TopicCreateJob          Topic = "uploader/createJob"
	TopicJob                Topic = "uploader/job"
	TopicDownloadStatus     Topic = "downloader/status"
	TopicDownloadSpecStatus Topic = "downloader/spec_status"
)

// Topics lists every known topic.
var Topics = []Topic{
	TopicChangeMode,
	TopicWriteResource,
	TopicDeleteResource,
	TopicDeleteBundle,
	TopicUpdateFromDownload,
	TopicCreateJob,
	TopicJob,
	TopicDownloadStatus,
	TopicDownloadSpecStatus,
}

// IsValid checks if the topic is a known topic.
func (t Topic) IsValid() bool {
	switch t {
	case TopicChangeMode, TopicWriteResource, TopicDeleteResource, TopicDeleteBundle,
		TopicUpdateFromDownload, TopicCreateJob, TopicJob, TopicDownloadStatus, TopicDownloadSpecStatus:
		return true
	default:
		return false
	}
}

// Event is a decoded message. The concrete type identifies the variant.
type Event interface {
	Topic() Topic
}

// ChangeMode reports that a bundle's backend mode changed.
type ChangeMode struct {
	BundleID string
}

// WriteResource reports that a file was written into a bundle.
type WriteResource struct {
	BundleID string
	FileName string
}

// DeleteResource reports that a locally stored resource was deleted.
type DeleteResource struct {
	BundleID     string
	ResourcePath string
}

// DeleteBundle reports that the backend deleted a bundle.
type DeleteBundle struct {
	BundleID string
}

// UpdateFromDownload reports that a download updated a bundle's content.
type UpdateFromDownload struct {
	BundleID string
}

// CreateJob correlates a new upload job with its bundle.
type CreateJob struct {
	JobID    string
	BundleID string
}

// JobUpdated carries upload progress for a job.
type JobUpdated struct {
	EntryID  string
	JobID    string
	ToUpload int
	Uploaded int
}

// Job state values with special meaning.
const (
	JobValueCompleted = "completed"
	JobValueRemoved   = "removed"
)

// JobState reports a state or status change of an upload job.
type JobState struct {
	// Kind is either "state" or "status".
	Kind  string
	JobID string
	Value string
}

// DownloadStatus carries download progress. Spec is true for
// downloader/spec_status events.
type DownloadStatus struct {
	BundleID            string
	ResourcesDownloaded int
	ResourcesToDownload int
	Spec                bool
}

func (ChangeMode) Topic() Topic         { return TopicChangeMode }
func (WriteResource) Topic() Topic      { return TopicWriteResource }
func (DeleteResource) Topic() Topic     { return TopicDeleteResource }
func (DeleteBundle) Topic() Topic       { return TopicDeleteBundle }
func (UpdateFromDownload) Topic() Topic { return TopicUpdateFromDownload }
func (CreateJob) Topic() Topic          { return TopicCreateJob }
func (JobUpdated) Topic() Topic         { return TopicJob }
func (JobState) Topic() Topic           { return TopicJob }

func (e DownloadStatus) Topic() Topic {
	if e.Spec {
		return TopicDownloadSpecStatus
	}
	return TopicDownloadStatus
}
