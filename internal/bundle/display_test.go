package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveRevision(t *testing.T) {
	tests := []struct {
		name string
		r    Record
		want int
	}{
		{"own revision", Record{Revision: "7"}, 7},
		{"draft uses parent", Record{Revision: "0", Parent: &Parent{Revision: "5"}}, 5},
		{"draft without parent", Record{Revision: "0"}, 0},
		{"garbage revision", Record{Revision: "x1"}, 0},
		{"negative revision", Record{Revision: "-3", Parent: &Parent{Revision: "2"}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveRevision(tt.r))
		})
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		r    Record
		want string
	}{
		{Record{Task: TaskUpload, Status: StatusDraft}, "Draft"},
		{Record{Task: TaskDownload, Status: StatusNotStarted}, "Download"},
		{Record{Task: TaskDownload, Status: StatusInProgress, Progress: IntPtr(50)}, "Downloading (50%)"},
		{Record{Task: TaskDownload, Status: StatusCompleted, Progress: IntPtr(100)}, "Downloaded"},
		{Record{Task: TaskUpload, Status: StatusInProgress, Progress: IntPtr(3)}, "Uploading (3%)"},
		{Record{Task: TaskUpload, Status: StatusCompleted}, "Uploaded"},
		{Record{Task: TaskSaveTo, Status: StatusInProgress}, "Exporting"},
		{Record{Task: TaskRemoveResources, Status: StatusInProgress, Progress: IntPtr(10)}, "Cleaning Resources (10%)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusLabel(tt.r))
		})
	}
}

func TestDisplayAs(t *testing.T) {
	r := Record{
		ID:            "b1",
		DblID:         "2880c78491b2f8ce",
		Revision:      "0",
		Parent:        &Parent{DblID: "2880c78491b2f8ce", Revision: "4"},
		Name:          "Mark Gospel",
		LanguageISO:   "eng",
		LanguageName:  "English",
		Countries:     []string{"US", "GB"},
		License:       "CC BY-SA",
		RightsHolders: []string{"Bible Society", "Wycliffe"},
		Task:          TaskUpload,
		Status:        StatusDraft,
	}
	d := r.DisplayAs()
	assert.Equal(t, "eng: English (US, GB)", d.LanguageAndCountry)
	assert.Equal(t, "Mark Gospel", d.Name)
	assert.Equal(t, "Draft (Revision 4)", d.Revision)
	assert.Equal(t, "Bible Society, Wycliffe", d.RightsHolders)
	assert.Equal(t, "Draft", d.Status)
	assert.Len(t, d.Fields(), len(SearchableFields))

	r.Revision = "5"
	r.Status = StatusCompleted
	r.Task = TaskDownload
	assert.Equal(t, "Revision 5", r.DisplayAs().Revision)
	assert.Equal(t, "Downloaded", r.DisplayAs().Status)
}

func TestEnums_IsValid(t *testing.T) {
	assert.True(t, TaskSaveTo.IsValid())
	assert.False(t, Task("EXPORT").IsValid())
	assert.True(t, StatusDraft.IsValid())
	assert.False(t, Status("DONE").IsValid())
}
