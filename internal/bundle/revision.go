package bundle

import "strconv"

// DraftRevision is the revision string of an unsubmitted draft.
const DraftRevision = "0"

// ParseRevision converts a revision string into its canonical integer form.
// Anything that is not a non-negative integer is treated as 0.
func ParseRevision(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// EffectiveRevision is the revision used for every "later revision"
// comparison: the record's own revision if nonzero, otherwise the parent's.
func EffectiveRevision(r Record) int {
	if rev := ParseRevision(r.Revision); rev != 0 {
		return rev
	}
	if r.Parent != nil {
		return ParseRevision(r.Parent.Revision)
	}
	return 0
}
