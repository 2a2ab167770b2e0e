package bundle

import (
	"fmt"
	"strings"
)

// DisplayAs holds the formatted labels for a record. It is derived on demand
// and never stored.
type DisplayAs struct {
	LanguageAndCountry string `json:"languageAndCountry"`
	Name               string `json:"name"`
	DblID              string `json:"dblId"`
	Revision           string `json:"revision"`
	License            string `json:"license"`
	RightsHolders      string `json:"rightsHolders"`
	Status             string `json:"status"`
}

// Field names of DisplayAs, used as keys by the search index.
const (
	FieldLanguageAndCountry = "languageAndCountry"
	FieldName               = "name"
	FieldDblID              = "dblId"
	FieldRevision           = "revision"
	FieldLicense            = "license"
	FieldRightsHolders      = "rightsHolders"
	FieldStatus             = "status"
)

// SearchableFields lists the DisplayAs fields in a stable order.
var SearchableFields = []string{
	FieldLanguageAndCountry,
	FieldName,
	FieldDblID,
	FieldRevision,
	FieldLicense,
	FieldRightsHolders,
	FieldStatus,
}

// Fields returns the labels keyed by field name.
func (d DisplayAs) Fields() map[string]string {
	return map[string]string{
		FieldLanguageAndCountry: d.LanguageAndCountry,
		FieldName:               d.Name,
		FieldDblID:              d.DblID,
		FieldRevision:           d.Revision,
		FieldLicense:            d.License,
		FieldRightsHolders:      d.RightsHolders,
		FieldStatus:             d.Status,
	}
}

// DisplayAs projects the record into its display labels.
func (r Record) DisplayAs() DisplayAs {
	return DisplayAs{
		LanguageAndCountry: languageAndCountry(r),
		Name:               r.Name,
		DblID:              r.DblID,
		Revision:           revisionLabel(r),
		License:            r.License,
		RightsHolders:      strings.Join(r.RightsHolders, ", "),
		Status:             StatusLabel(r),
	}
}

func languageAndCountry(r Record) string {
	var b strings.Builder
	if r.LanguageISO != "" {
		b.WriteString(r.LanguageISO)
	}
	if r.LanguageName != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(r.LanguageName)
	}
	if len(r.Countries) > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("(" + strings.Join(r.Countries, ", ") + ")")
	}
	return b.String()
}

func revisionLabel(r Record) string {
	if rev := ParseRevision(r.Revision); rev != 0 {
		return fmt.Sprintf("Revision %d", rev)
	}
	if r.Parent != nil {
		if prev := ParseRevision(r.Parent.Revision); prev != 0 {
			return fmt.Sprintf("Draft (Revision %d)", prev)
		}
	}
	return "Draft"
}

var taskVerbs = map[Task][3]string{
	TaskDownload:        {"Download", "Downloading", "Downloaded"},
	TaskUpload:          {"Upload", "Uploading", "Uploaded"},
	TaskSaveTo:          {"Export", "Exporting", "Exported"},
	TaskRemoveResources: {"Clean Resources", "Cleaning Resources", "Cleaned"},
}

// StatusLabel renders the task/status/progress triple as a label such as
// "Downloading (50%)".
func StatusLabel(r Record) string {
	if r.Status == StatusDraft {
		return "Draft"
	}
	verbs, ok := taskVerbs[r.Task]
	if !ok {
		verbs = taskVerbs[TaskDownload]
	}
	switch r.Status {
	case StatusInProgress:
		if p := r.ProgressValue(); p >= 0 {
			return fmt.Sprintf("%s (%d%%)", verbs[1], p)
		}
		return verbs[1]
	case StatusCompleted:
		return verbs[2]
	default:
		return verbs[0]
	}
}
