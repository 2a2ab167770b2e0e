// Package reconciler is the single dispatch point that turns stream events
// and fetch results into ordered cache and search index updates, and
// periodically prunes superseded revisions.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syntrixbase/bundlesync/internal/backend"
	"github.com/syntrixbase/bundlesync/internal/bundle"
	"github.com/syntrixbase/bundlesync/internal/cache"
	"github.com/syntrixbase/bundlesync/internal/events"
	"github.com/syntrixbase/bundlesync/internal/metrics"
	"github.com/syntrixbase/bundlesync/internal/pruner"
	"github.com/syntrixbase/bundlesync/internal/search"
)

const metadataFile = "metadata.xml"

// Fetch triggers, used as metric labels.
const (
	triggerChangeMode = "change_mode"
	triggerDownload   = "update_from_download"
	triggerDiscovered = "write_resource"
	triggerJob        = "job"
	triggerRefresh    = "refresh"
)

// Orchestrator reconciles events and fetched snapshots into the cache and
// the search index.
type Orchestrator struct {
	cfg     Config
	cache   *cache.Cache
	index   *search.Index
	jobs    *JobTable
	metrics metrics.Metrics
	logger  *slog.Logger

	// indexMu serializes index updates so each one reads the newest cached
	// record.
	indexMu sync.Mutex
	phase   atomic.Int32

	fetchSem chan struct{}
	fetchWG  sync.WaitGroup

	onFetchError func(id string, err error)
	watchedJob   atomic.Pointer[search.Job]

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	triggerCh chan struct{}
}

// New creates an orchestrator over c and ix.
func New(cfg Config, c *cache.Cache, ix *search.Index, m metrics.Metrics, logger *slog.Logger) *Orchestrator {
	cfg.ApplyDefaults()
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		cache:     c,
		index:     ix,
		jobs:      NewJobTable(),
		metrics:   m,
		logger:    logger.With("component", "reconciler"),
		fetchSem:  make(chan struct{}, cfg.MaxConcurrentFetches),
		triggerCh: make(chan struct{}, 1),
	}
}

// SetFetchErrorHandler registers fn to receive failures of event-triggered
// fetches. Stale and not-found results are not failures.
func (o *Orchestrator) SetFetchErrorHandler(fn func(id string, err error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onFetchError = fn
}

// Jobs returns the upload job correlation table.
func (o *Orchestrator) Jobs() *JobTable {
	return o.jobs
}

// Phase returns the current processing phase.
func (o *Orchestrator) Phase() Phase {
	return Phase(o.phase.Load())
}

func (o *Orchestrator) setPhase(p Phase) {
	o.phase.Store(int32(p))
}

// HandleRaw decodes and dispatches one stream message. Undecodable messages
// are logged and dropped.
func (o *Orchestrator) HandleRaw(ctx context.Context, topic string, payload []byte) {
	o.setPhase(PhaseDecoding)
	defer o.setPhase(PhaseIdle)

	label := topic
	if !events.Topic(topic).IsValid() {
		label = "unknown"
	}
	o.metrics.IncEventReceived(label)

	ev, err := events.Decode(topic, payload)
	if err != nil {
		o.metrics.IncEventDropped(label, "decode")
		o.logger.Warn("Dropping undecodable event", "topic", topic, "error", err)
		return
	}
	o.Handle(ctx, ev)
}

// Handle dispatches a decoded event.
func (o *Orchestrator) Handle(ctx context.Context, ev events.Event) {
	switch e := ev.(type) {
	case events.ChangeMode:
		if o.cfg.SessionPrefix != "" && strings.HasPrefix(e.BundleID, o.cfg.SessionPrefix) {
			o.logger.Debug("Ignoring mode change of session bundle", "bundle", e.BundleID)
			return
		}
		o.fetchAsync(ctx, e.BundleID, triggerChangeMode, nil)

	case events.UpdateFromDownload:
		o.fetchAsync(ctx, e.BundleID, triggerDownload, nil)

	case events.WriteResource:
		if path.Base(e.FileName) != metadataFile {
			return
		}
		// forks stay owned by their parent and are not surfaced on their own
		o.fetchAsync(ctx, e.BundleID, triggerDiscovered, func(s bundle.Snapshot) bool {
			return s.Parent == nil
		})

	case events.DeleteBundle:
		o.jobs.ClearBundle(e.BundleID)
		o.remove(e.BundleID)

	case events.CreateJob:
		o.jobs.Set(e.JobID, e.BundleID)
		if !o.transition(e.Topic(), e.BundleID, bundle.BeginTask{Task: bundle.TaskUpload}) {
			o.fetchAsync(ctx, e.BundleID, triggerJob, nil)
		}

	case events.JobUpdated:
		id, ok := o.correlate(e.Topic(), e.JobID)
		if !ok {
			return
		}
		o.transition(e.Topic(), id, bundle.UpdateProgress{
			Task:       bundle.TaskUpload,
			DoneCount:  e.Uploaded,
			TotalCount: e.ToUpload,
		})

	case events.JobState:
		id, ok := o.correlate(e.Topic(), e.JobID)
		if !ok {
			return
		}
		switch e.Value {
		case events.JobValueCompleted:
			o.jobs.Clear(e.JobID)
			o.transition(e.Topic(), id, bundle.CompleteStatus{Task: bundle.TaskUpload})
		case events.JobValueRemoved:
			o.jobs.Clear(e.JobID)
			o.fetchAsync(ctx, id, triggerJob, nil)
		default:
			o.transition(e.Topic(), id, bundle.EnsureInProgress{Task: bundle.TaskUpload})
		}

	case events.DownloadStatus:
		o.transition(e.Topic(), e.BundleID, bundle.UpdateProgress{
			Task:       bundle.TaskDownload,
			DoneCount:  e.ResourcesDownloaded,
			TotalCount: e.ResourcesToDownload,
		})

	case events.DeleteResource:
		o.transition(e.Topic(), e.BundleID, bundle.ResourceRemoved{Path: e.ResourcePath})

	default:
		o.logger.Warn("Unhandled event type", "type", fmt.Sprintf("%T", ev))
	}
}

func (o *Orchestrator) correlate(topic events.Topic, jobID string) (string, bool) {
	id, ok := o.jobs.Lookup(jobID)
	if !ok {
		o.metrics.IncCorrelationMiss(string(topic))
		o.logger.Debug("No bundle correlated with job", "job", jobID)
	}
	return id, ok
}

// transition applies t to a cached bundle and re-indexes it. It reports
// false when the bundle is not cached.
func (o *Orchestrator) transition(topic events.Topic, id string, t bundle.Transition) bool {
	o.setPhase(PhaseApplying)
	o.indexMu.Lock()
	defer o.indexMu.Unlock()

	rec, err := o.cache.Apply(id, t)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			o.metrics.IncEventDropped(string(topic), "not_cached")
			o.logger.Debug("Transition for uncached bundle", "bundle", id, "transition", t.Name())
		} else {
			o.logger.Warn("Transition failed", "bundle", id, "transition", t.Name(), "error", err)
		}
		return false
	}
	o.setPhase(PhaseIndexing)
	o.index.ReindexOne(rec)
	return true
}

// remove drops id from the cache and the index.
func (o *Orchestrator) remove(id string) {
	o.setPhase(PhaseApplying)
	o.indexMu.Lock()
	defer o.indexMu.Unlock()
	o.cache.Remove(id)
	o.setPhase(PhaseIndexing)
	o.index.Remove(id)
	o.metrics.SetCacheSize(o.cache.Len())
}

// reindex brings the index entry for id in line with the cache.
func (o *Orchestrator) reindex(id string) {
	o.setPhase(PhaseIndexing)
	o.indexMu.Lock()
	defer o.indexMu.Unlock()
	if rec, err := o.cache.Get(id); err == nil {
		o.index.ReindexOne(rec)
	} else {
		o.index.Remove(id)
	}
}

func (o *Orchestrator) fetchAsync(ctx context.Context, id, trigger string, accept func(bundle.Snapshot) bool) {
	o.fetchWG.Add(1)
	go func() {
		defer o.fetchWG.Done()
		select {
		case o.fetchSem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-o.fetchSem }()

		if _, err := o.fetch(ctx, id, trigger, accept); err != nil && !isQuiet(err) {
			o.mu.Lock()
			handler := o.onFetchError
			o.mu.Unlock()
			if handler != nil {
				handler(id, err)
			}
		}
	}()
}

// isQuiet reports errors that need no follow-up by whoever triggered the
// fetch.
func isQuiet(err error) bool {
	return cache.IsStale(err) || errors.Is(err, context.Canceled)
}

func (o *Orchestrator) fetch(ctx context.Context, id, trigger string, accept func(bundle.Snapshot) bool) (cache.FetchResult, error) {
	start := time.Now()
	res, err := o.cache.FetchAndUpsertIf(ctx, id, accept)
	o.metrics.ObserveFetchLatency(trigger, time.Since(start))

	switch {
	case err == nil:
		o.metrics.IncFetch(trigger, res.Outcome.String())
		if res.Outcome != cache.OutcomeUnchanged {
			o.reindex(id)
			o.metrics.SetCacheSize(o.cache.Len())
			o.Trigger()
		}
		o.logger.Debug("Bundle fetched", "bundle", id, "trigger", trigger, "outcome", res.Outcome)
		return res, nil
	case cache.IsStale(err):
		o.metrics.IncFetch(trigger, "stale")
		o.logger.Debug("Discarded stale fetch", "bundle", id, "trigger", trigger)
	case backend.IsTransient(err):
		o.metrics.IncFetch(trigger, "transient")
		o.logger.Warn("Bundle fetch failed, retry later", "bundle", id, "trigger", trigger, "error", err)
	default:
		o.metrics.IncFetch(trigger, "error")
		o.logger.Error("Bundle fetch failed", "bundle", id, "trigger", trigger, "error", err)
	}
	return res, err
}

// Refresh re-fetches id synchronously. A bundle the backend no longer has
// is removed and reported as OutcomeRemoved or OutcomeUnchanged.
func (o *Orchestrator) Refresh(ctx context.Context, id string) (cache.FetchResult, error) {
	defer o.setPhase(PhaseIdle)
	return o.fetch(ctx, id, triggerRefresh, nil)
}

// Wait blocks until all event-triggered fetches have finished.
func (o *Orchestrator) Wait() {
	o.fetchWG.Wait()
}

// LoadAll replaces the cache with the backend's full listing, rebuilds the
// search index when keywords are set, and prunes.
func (o *Orchestrator) LoadAll(ctx context.Context) error {
	o.setPhase(PhaseApplying)
	defer o.setPhase(PhaseIdle)

	res, err := o.cache.LoadAll(ctx)
	if err != nil {
		return err
	}
	o.metrics.SetCacheSize(o.cache.Len())

	o.setPhase(PhaseIndexing)
	o.indexMu.Lock()
	for _, id := range res.Removed {
		o.index.Remove(id)
	}
	if o.index.Active() {
		o.watch(o.index.Rebuild(ctx))
	}
	o.indexMu.Unlock()

	o.Sweep()
	return nil
}

// Search sets the query. Whitespace-only queries clear the filter.
func (o *Orchestrator) Search(ctx context.Context, query string) *search.Job {
	job := o.index.SetKeywords(ctx, search.Tokenize(query))
	o.watch(job)
	return job
}

// watch records the final status of job once.
func (o *Orchestrator) watch(job *search.Job) {
	if job == nil || o.watchedJob.Swap(job) == job {
		return
	}
	go func() {
		<-job.Done()
		o.metrics.IncRebuild(string(job.Status()))
	}()
}

// Sweep evicts superseded revisions and returns the evicted ids.
func (o *Orchestrator) Sweep() []string {
	o.indexMu.Lock()
	excess := o.cache.Prune(func(records []bundle.Record) []string {
		return pruner.ComputeExcess(records, pruner.SelectDisplayed(records))
	})
	for _, id := range excess {
		o.index.Remove(id)
	}
	o.indexMu.Unlock()
	if len(excess) == 0 {
		return nil
	}

	o.metrics.IncPruned(len(excess))
	o.metrics.SetCacheSize(o.cache.Len())
	o.logger.Info("Pruned superseded revisions", "count", len(excess))
	return excess
}
