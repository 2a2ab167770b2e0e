// Package pruner decides which cached bundle revisions are displayed and
// which superseded ones can be evicted from the cache.
package pruner

import (
	"slices"

	"github.com/syntrixbase/bundlesync/internal/bundle"
)

// isDraft reports whether r is an unsubmitted draft, whether or not its
// upload has started.
func isDraft(r bundle.Record) bool {
	return r.IsDraft() || bundle.ParseRevision(r.Revision) == 0
}

// SelectDisplayed picks the records shown to the user. Per dblId every
// draft is shown, plus one submitted revision: the newest with stored
// resources, or else the newest overall. The result keeps input order.
func SelectDisplayed(records []bundle.Record) []bundle.Record {
	best := make(map[string]bundle.Record)
	for _, r := range records {
		if isDraft(r) {
			continue
		}
		cur, ok := best[r.DblID]
		if !ok || preferred(r, cur) {
			best[r.DblID] = r
		}
	}

	out := make([]bundle.Record, 0, len(best))
	for _, r := range records {
		if isDraft(r) || best[r.DblID].ID == r.ID {
			out = append(out, r)
		}
	}
	return out
}

// preferred reports whether a should be displayed instead of b.
func preferred(a, b bundle.Record) bool {
	aStored, bStored := a.ResourceCountStored > 0, b.ResourceCountStored > 0
	if aStored != bStored {
		return aStored
	}
	ra, rb := bundle.EffectiveRevision(a), bundle.EffectiveRevision(b)
	if ra != rb {
		return ra > rb
	}
	return a.ID < b.ID
}

// ComputeExcess returns the ids of cached records that can be evicted
// without losing local data, orphaning a displayed draft's parent, or
// dropping a revision at least as recent as the displayed one. Results are
// sorted.
func ComputeExcess(cached []bundle.Record, displayed []bundle.Record) []string {
	shown := make(map[string]struct{}, len(displayed))
	byDbl := make(map[string][]bundle.Record)
	parentIDs := make(map[string]struct{})
	for _, d := range displayed {
		shown[d.ID] = struct{}{}
		byDbl[d.DblID] = append(byDbl[d.DblID], d)
		if isDraft(d) && d.Parent != nil && d.Parent.BundleID != "" {
			parentIDs[d.Parent.BundleID] = struct{}{}
		}
	}

	var excess []string
	for _, r := range cached {
		if _, ok := shown[r.ID]; ok {
			continue
		}
		if r.ResourceCountStored != 0 {
			continue
		}
		if _, ok := parentIDs[r.ID]; ok {
			continue
		}
		if supersededOnlyBy(r, byDbl[r.DblID]) {
			excess = append(excess, r.ID)
		}
	}
	slices.Sort(excess)
	return excess
}

// supersededOnlyBy reports whether some displayed record of r's dblId is
// strictly newer than r and none of them still depends on r.
func supersededOnlyBy(r bundle.Record, group []bundle.Record) bool {
	rev := bundle.EffectiveRevision(r)
	newer := false
	for _, d := range group {
		drev := bundle.EffectiveRevision(d)
		if isDraft(d) {
			if d.Parent != nil && bundle.ParseRevision(d.Parent.Revision) == rev {
				return false
			}
		} else if rev >= drev {
			return false
		}
		if drev > rev {
			newer = true
		}
	}
	return newer
}
