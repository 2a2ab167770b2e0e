package search

import (
	"slices"
	"strings"
	"unicode"

	"github.com/syntrixbase/bundlesync/internal/bundle"
)

// Chunk is a matched range within a field value, in rune offsets. End is
// exclusive.
type Chunk struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Tokenize splits a query on whitespace into lower-cased keywords, dropping
// duplicates while keeping first-seen order.
func Tokenize(query string) []string {
	fields := strings.Fields(query)
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		kw := strings.ToLower(f)
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

func lowerRunes(s string) []rune {
	rs := []rune(s)
	for i, r := range rs {
		rs[i] = unicode.ToLower(r)
	}
	return rs
}

// FindChunks returns the case-insensitive occurrences of any keyword in
// text. Overlapping and adjacent ranges are merged.
func FindChunks(text string, keywords []string) []Chunk {
	if text == "" || len(keywords) == 0 {
		return nil
	}
	hay := lowerRunes(text)
	var chunks []Chunk
	for _, kw := range keywords {
		needle := lowerRunes(kw)
		if len(needle) == 0 || len(needle) > len(hay) {
			continue
		}
		for i := 0; i+len(needle) <= len(hay); i++ {
			if slices.Equal(hay[i:i+len(needle)], needle) {
				chunks = append(chunks, Chunk{Start: i, End: i + len(needle)})
			}
		}
	}
	return mergeChunks(chunks)
}

func mergeChunks(chunks []Chunk) []Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	slices.SortFunc(chunks, func(a, b Chunk) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.End - b.End
	})
	out := chunks[:1]
	for _, c := range chunks[1:] {
		last := &out[len(out)-1]
		if c.Start <= last.End {
			last.End = max(last.End, c.End)
			continue
		}
		out = append(out, c)
	}
	return out
}

// FieldID is the chunk key for matches on the bundle id.
const FieldID = "id"

// MatchRecord computes chunks for every searchable field of r. Fields
// without a match are omitted; a nil result means r does not match.
func MatchRecord(r bundle.Record, keywords []string) map[string][]Chunk {
	if len(keywords) == 0 {
		return nil
	}
	fields := r.DisplayAs().Fields()
	fields[FieldID] = r.ID
	var out map[string][]Chunk
	for _, name := range append([]string{FieldID}, bundle.SearchableFields...) {
		if chunks := FindChunks(fields[name], keywords); len(chunks) > 0 {
			if out == nil {
				out = make(map[string][]Chunk)
			}
			out[name] = chunks
		}
	}
	return out
}
