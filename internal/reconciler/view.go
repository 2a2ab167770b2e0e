package reconciler

import (
	"github.com/syntrixbase/bundlesync/internal/bundle"
	"github.com/syntrixbase/bundlesync/internal/pruner"
	"github.com/syntrixbase/bundlesync/internal/search"
)

// Row is one entry of the derived view model.
type Row struct {
	Record    bundle.Record             `json:"record"`
	DisplayAs bundle.DisplayAs          `json:"displayAs"`
	Chunks    map[string][]search.Chunk `json:"chunks,omitempty"`
}

// View returns the rows to render: displayed records, or every cached
// record when all is set, filtered by the current search.
func (o *Orchestrator) View(all bool) []Row {
	records := o.cache.List()
	if !all {
		records = pruner.SelectDisplayed(records)
	}
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		if !o.index.IsMatching(r.ID) {
			continue
		}
		rows = append(rows, Row{
			Record:    r,
			DisplayAs: r.DisplayAs(),
			Chunks:    o.index.Chunks(r.ID),
		})
	}
	return rows
}

// Get returns the row for id regardless of display selection and search.
func (o *Orchestrator) Get(id string) (Row, error) {
	r, err := o.cache.Get(id)
	if err != nil {
		return Row{}, err
	}
	return Row{Record: r, DisplayAs: r.DisplayAs(), Chunks: o.index.Chunks(r.ID)}, nil
}

// SearchState summarizes the current search.
type SearchState struct {
	Active   bool                `json:"active"`
	Keywords []string            `json:"keywords"`
	Matching int                 `json:"matching"`
	Job      *search.JobProgress `json:"job,omitempty"`
}

// SearchState reports the published keywords and the latest rebuild job.
func (o *Orchestrator) SearchState() SearchState {
	res := o.index.Snapshot()
	state := SearchState{
		Active:   res.Active,
		Keywords: res.Keywords,
		Matching: len(res.Matching),
	}
	if job := o.index.CurrentJob(); job != nil {
		p := job.Progress()
		state.Job = &p
	}
	return state
}
