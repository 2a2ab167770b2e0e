package pruner

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syntrixbase/bundlesync/internal/bundle"
)

func rec(id, dbl, rev string, stored int) bundle.Record {
	status := bundle.StatusNotStarted
	if rev == "0" {
		status = bundle.StatusDraft
	}
	return bundle.Record{ID: id, DblID: dbl, Revision: rev, ResourceCountStored: stored, Status: status}
}

func ids(records []bundle.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestSelectDisplayed(t *testing.T) {
	tests := []struct {
		name    string
		records []bundle.Record
		want    []string
	}{
		{
			name:    "newest revision when nothing is stored",
			records: []bundle.Record{rec("r3", "d1", "3", 0), rec("r5", "d1", "5", 0)},
			want:    []string{"r5"},
		},
		{
			name:    "stored revision wins over newer empty one",
			records: []bundle.Record{rec("r3", "d1", "3", 2), rec("r5", "d1", "5", 0)},
			want:    []string{"r3"},
		},
		{
			name:    "drafts are always displayed",
			records: []bundle.Record{rec("draft", "d1", "0", 0), rec("r5", "d1", "5", 0), rec("r4", "d1", "4", 0)},
			want:    []string{"draft", "r5"},
		},
		{
			name:    "one per dblId",
			records: []bundle.Record{rec("a", "d1", "1", 0), rec("b", "d2", "1", 0), rec("c", "d2", "2", 0)},
			want:    []string{"a", "c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(SelectDisplayed(tt.records)))
		})
	}
}

func TestComputeExcess_SupersededRevision(t *testing.T) {
	r5 := rec("r5", "d9", "5", 0)
	r5.Status = bundle.StatusCompleted
	r3 := rec("r3", "d9", "3", 0)

	excess := ComputeExcess([]bundle.Record{r5, r3}, []bundle.Record{r5})
	assert.Equal(t, []string{"r3"}, excess)
}

func TestComputeExcess_Protections(t *testing.T) {
	tests := []struct {
		name      string
		cached    []bundle.Record
		displayed []string
		want      []string
	}{
		{
			name:      "stored resources are kept",
			cached:    []bundle.Record{rec("r5", "d1", "5", 0), rec("r3", "d1", "3", 1)},
			displayed: []string{"r5"},
			want:      nil,
		},
		{
			name:      "revision at least as recent as displayed is kept",
			cached:    []bundle.Record{rec("r3", "d1", "3", 4), rec("r5", "d1", "5", 0)},
			displayed: []string{"r3"},
			want:      nil,
		},
		{
			name: "parent revision of displayed draft is kept",
			cached: []bundle.Record{
				rec("r6", "d1", "6", 0),
				rec("r4", "d1", "4", 0),
				rec("r2", "d1", "2", 0),
				func() bundle.Record {
					d := rec("draft", "d1", "0", 0)
					d.Parent = &bundle.Parent{DblID: "d1", Revision: "4"}
					return d
				}(),
			},
			displayed: []string{"r6", "draft"},
			want:      []string{"r2"},
		},
		{
			name: "parent bundle id of displayed draft is kept",
			cached: []bundle.Record{
				rec("r6", "d1", "6", 0),
				rec("r2", "d1", "2", 0),
				func() bundle.Record {
					d := rec("fork", "d7", "0", 0)
					d.Parent = &bundle.Parent{DblID: "d1", Revision: "9", BundleID: "r2"}
					return d
				}(),
			},
			displayed: []string{"r6", "fork"},
			want:      nil,
		},
		{
			name:      "nothing displayed for the dblId",
			cached:    []bundle.Record{rec("r1", "d1", "1", 0)},
			displayed: nil,
			want:      nil,
		},
		{
			name:      "displayed records are never excess",
			cached:    []bundle.Record{rec("r1", "d1", "1", 0)},
			displayed: []string{"r1"},
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			byID := make(map[string]bundle.Record)
			for _, r := range tt.cached {
				byID[r.ID] = r
			}
			var displayed []bundle.Record
			for _, id := range tt.displayed {
				displayed = append(displayed, byID[id])
			}
			assert.Equal(t, tt.want, ComputeExcess(tt.cached, displayed))
		})
	}
}

// Randomized check that eviction never touches a displayed draft's parent
// or a revision at least as recent as the displayed one.
func TestComputeExcess_SafetyProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 500; iter++ {
		var cached []bundle.Record
		n := 1 + rng.Intn(8)
		for i := 0; i < n; i++ {
			dbl := fmt.Sprintf("d%d", rng.Intn(3))
			rev := fmt.Sprint(rng.Intn(6))
			r := rec(fmt.Sprintf("b%d", i), dbl, rev, rng.Intn(3)*rng.Intn(2))
			if rev == "0" && i > 0 && rng.Intn(2) == 0 {
				p := cached[rng.Intn(len(cached))]
				r.Parent = &bundle.Parent{DblID: p.DblID, Revision: p.Revision, BundleID: p.ID}
			}
			cached = append(cached, r)
		}

		displayed := SelectDisplayed(cached)
		excess := ComputeExcess(cached, displayed)

		byID := make(map[string]bundle.Record)
		for _, r := range cached {
			byID[r.ID] = r
		}
		for _, id := range excess {
			r := byID[id]
			assert.Equal(t, 0, r.ResourceCountStored)
			for _, d := range displayed {
				assert.NotEqual(t, id, d.ID)
				if d.Parent != nil && d.Parent.BundleID == id {
					t.Fatalf("evicted %s which is the parent of displayed %s", id, d.ID)
				}
				if d.DblID == r.DblID && bundle.ParseRevision(d.Revision) != 0 {
					assert.Less(t, bundle.EffectiveRevision(r), bundle.EffectiveRevision(d))
				}
			}
		}
	}
}
