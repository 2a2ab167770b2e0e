// Package search maintains an incrementally updated keyword index over the
// bundle cache.
//
// A keyword change starts a full rebuild that runs in the background. Each
// step re-checks the index generation, so a rebuild superseded by newer
// keywords is discarded without touching the published result. Single
// record updates made while a rebuild is running are replayed against the
// fresh record when the rebuild commits.
package search

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/syntrixbase/bundlesync/internal/bundle"
)

// Source supplies the records to index.
type Source interface {
	IDs() []string
	Get(id string) (bundle.Record, error)
}

// Result is a consistent view of the index.
type Result struct {
	// Active is false when no keywords are set; every record matches then.
	Active     bool                          `json:"active"`
	Keywords   []string                      `json:"keywords"`
	Generation uint64                        `json:"generation"`
	Chunks     map[string]map[string][]Chunk `json:"chunks"`
	Matching   []string                      `json:"matching"`
}

// Index is the search index. It is safe for concurrent use.
type Index struct {
	source Source
	cfg    Config
	logger *slog.Logger

	generation atomic.Uint64

	mu       sync.RWMutex
	active   bool
	keywords []string
	entries  map[string]map[string][]Chunk
	// published is the generation of the current entries.
	published uint64

	// target is the newest requested keyword set and its rebuild job.
	target  []string
	job     *Job
	touched map[string]struct{}
}

// New creates an inactive index over source.
func New(source Source, cfg Config, logger *slog.Logger) *Index {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		source:  source,
		cfg:     cfg,
		logger:  logger.With("component", "search"),
		entries: make(map[string]map[string][]Chunk),
	}
}

// SetKeywords requests a rebuild for keywords. Asking for the keyword set
// already requested returns the existing job. An empty set clears the index.
func (ix *Index) SetKeywords(ctx context.Context, keywords []string) *Job {
	keywords = normalize(keywords)

	ix.mu.Lock()
	if ix.job != nil && slices.Equal(ix.target, keywords) {
		job := ix.job
		ix.mu.Unlock()
		return job
	}
	if len(keywords) == 0 {
		ix.mu.Unlock()
		return ix.Clear()
	}

	gen := ix.generation.Add(1)
	if ix.job != nil {
		ix.job.stop()
	}
	job := newJob(uuid.NewString(), keywords, gen)
	ix.target = keywords
	ix.job = job
	ix.touched = make(map[string]struct{})
	ix.mu.Unlock()

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job.start(cancel)
	go ix.rebuild(jobCtx, job)
	return job
}

// Clear deactivates the index. Any running rebuild is abandoned. The
// returned job is already completed.
func (ix *Index) Clear() *Job {
	gen := ix.generation.Add(1)

	ix.mu.Lock()
	if ix.job != nil {
		ix.job.stop()
	}
	ix.active = false
	ix.keywords = nil
	ix.entries = make(map[string]map[string][]Chunk)
	ix.published = gen
	ix.target = nil
	ix.touched = nil
	job := newJob(uuid.NewString(), nil, gen)
	ix.job = job
	ix.mu.Unlock()

	job.finish(StatusCompleted, nil)
	return job
}

// ReindexOne recomputes the entry for r against the current keywords.
func (ix *Index) ReindexOne(r bundle.Record) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.touched != nil {
		ix.touched[r.ID] = struct{}{}
	}
	if !ix.active {
		return
	}
	ix.setEntry(r.ID, MatchRecord(r, ix.keywords))
}

// Remove drops id from the index.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.touched != nil {
		ix.touched[id] = struct{}{}
	}
	delete(ix.entries, id)
}

// setEntry must be called with ix.mu held.
func (ix *Index) setEntry(id string, chunks map[string][]Chunk) {
	if len(chunks) == 0 {
		delete(ix.entries, id)
		return
	}
	ix.entries[id] = chunks
}

// IsMatching reports whether id passes the current filter.
func (ix *Index) IsMatching(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if !ix.active {
		return true
	}
	_, ok := ix.entries[id]
	return ok
}

// Chunks returns the matches recorded for id.
func (ix *Index) Chunks(id string) map[string][]Chunk {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return cloneEntry(ix.entries[id])
}

// Active reports whether keywords are set.
func (ix *Index) Active() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.active
}

// Keywords returns the keywords of the published result.
func (ix *Index) Keywords() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return slices.Clone(ix.keywords)
}

// CurrentJob returns the most recent rebuild job, if any.
func (ix *Index) CurrentJob() *Job {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.job
}

// Snapshot returns a deep copy of the published result.
func (ix *Index) Snapshot() Result {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	res := Result{
		Active:     ix.active,
		Keywords:   slices.Clone(ix.keywords),
		Generation: ix.published,
		Chunks:     make(map[string]map[string][]Chunk, len(ix.entries)),
		Matching:   make([]string, 0, len(ix.entries)),
	}
	for id, entry := range ix.entries {
		res.Chunks[id] = cloneEntry(entry)
		res.Matching = append(res.Matching, id)
	}
	slices.Sort(res.Matching)
	return res
}

// Rebuild restarts the rebuild for the current keywords, for example after
// the cache was reloaded.
func (ix *Index) Rebuild(ctx context.Context) *Job {
	ix.mu.Lock()
	keywords := ix.target
	if len(keywords) == 0 {
		keywords = ix.keywords
	}
	ix.target = nil
	ix.job = nil
	ix.mu.Unlock()
	return ix.SetKeywords(ctx, keywords)
}

func (ix *Index) superseded(gen uint64) bool {
	return ix.generation.Load() != gen
}

func (ix *Index) rebuild(ctx context.Context, job *Job) {
	gen := job.Generation
	logger := ix.logger.With("job", job.ID, "generation", gen)
	logger.Debug("Search rebuild started", "keywords", job.Keywords)

	var limiter *rate.Limiter
	if ix.cfg.QPSLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(ix.cfg.QPSLimit), ix.cfg.BatchSize)
	}

	ids := ix.source.IDs()
	result := make(map[string]map[string][]Chunk)
	for start := 0; start < len(ids); start += ix.cfg.BatchSize {
		batch := ids[start:min(start+ix.cfg.BatchSize, len(ids))]
		if limiter != nil {
			if err := limiter.WaitN(ctx, len(batch)); err != nil {
				ix.abandon(logger, job, err)
				return
			}
		}
		matched := 0
		for _, id := range batch {
			if ix.superseded(gen) || ctx.Err() != nil {
				ix.abandon(logger, job, ctx.Err())
				return
			}
			r, err := ix.source.Get(id)
			if err != nil {
				// removed since the id list was taken
				continue
			}
			if chunks := MatchRecord(r, job.Keywords); len(chunks) > 0 {
				result[id] = chunks
				matched++
			}
		}
		job.addProgress(len(batch), matched)
	}

	ix.mu.Lock()
	if ix.superseded(gen) {
		ix.mu.Unlock()
		ix.abandon(logger, job, nil)
		return
	}
	for id := range ix.touched {
		r, err := ix.source.Get(id)
		if err != nil {
			delete(result, id)
			continue
		}
		if chunks := MatchRecord(r, job.Keywords); len(chunks) > 0 {
			result[id] = chunks
		} else {
			delete(result, id)
		}
	}
	ix.active = true
	ix.keywords = job.Keywords
	ix.entries = result
	ix.published = gen
	ix.touched = nil
	ix.mu.Unlock()

	job.finish(StatusCompleted, nil)
	logger.Debug("Search rebuild completed", "matched", len(result), "scanned", len(ids))
}

func (ix *Index) abandon(logger *slog.Logger, job *Job, cause error) {
	if cause != nil && !errors.Is(cause, context.Canceled) && !ix.superseded(job.Generation) {
		job.finish(StatusFailed, cause)
		logger.Warn("Search rebuild failed", "error", cause)
		return
	}
	job.finish(StatusCanceled, ErrCanceled)
	logger.Debug("Search rebuild superseded")
}

func normalize(keywords []string) []string {
	return Tokenize(strings.Join(keywords, " "))
}

func cloneEntry(entry map[string][]Chunk) map[string][]Chunk {
	if entry == nil {
		return nil
	}
	out := make(map[string][]Chunk, len(entry))
	for field, chunks := range entry {
		out[field] = slices.Clone(chunks)
	}
	return out
}
