// Package cache holds the authoritative in-memory map of bundle records.
//
// Fetches take a ticket before calling the backend. A completion is applied
// only if no newer authoritative write (another fetch, an upsert or a
// remove) for the same id has landed in the meantime.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/btree"
	"golang.org/x/sync/errgroup"

	"github.com/syntrixbase/bundlesync/internal/backend"
	"github.com/syntrixbase/bundlesync/internal/bundle"
)

// Outcome describes what a write did to the cache.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeInserted
	OutcomeUpdated
	OutcomeRemoved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRemoved:
		return "removed"
	default:
		return "unchanged"
	}
}

// orderKey sorts records by dblId, newest effective revision first, then id.
type orderKey struct {
	dblID string
	rev   int
	id    string
}

func keyFor(r bundle.Record) orderKey {
	return orderKey{dblID: r.DblID, rev: bundle.EffectiveRevision(r), id: r.ID}
}

func lessKey(a, b orderKey) bool {
	if a.dblID != b.dblID {
		return a.dblID < b.dblID
	}
	if a.rev != b.rev {
		return a.rev > b.rev
	}
	return a.id < b.id
}

// Config controls fetch fan-out.
type Config struct {
	MaxConcurrentFetches int
}

// Cache maps bundle id to record. It is safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	records   map[string]bundle.Record
	order     *btree.BTreeG[orderKey]
	lastWrite map[string]uint64
	ticket    uint64
	// inflight holds the tickets of fetches still waiting on the backend.
	inflight map[uint64]struct{}
	// removedAt holds ids whose last write was a removal, so their
	// lastWrite entry can be dropped once no older fetch is in flight.
	removedAt map[string]uint64

	client backend.Client
	cfg    Config
	logger *slog.Logger
}

// New creates an initialized cache backed by client.
func New(client backend.Client, cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = 8
	}
	c := &Cache{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "cache"),
	}
	c.Init()
	return c
}

// Init (re)allocates empty cache state.
func (c *Cache) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]bundle.Record)
	c.order = btree.NewG(32, lessKey)
	c.lastWrite = make(map[string]uint64)
	c.inflight = make(map[uint64]struct{})
	c.removedAt = make(map[string]uint64)
}

// Dispose drops all state. Later writes fail with ErrDisposed until Init.
func (c *Cache) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
	c.order = nil
	c.lastWrite = nil
	c.inflight = nil
	c.removedAt = nil
}

// beginFetch issues a ticket for a backend call. endFetch must follow.
func (c *Cache) beginFetch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticket++
	if c.inflight != nil {
		c.inflight[c.ticket] = struct{}{}
	}
	return c.ticket
}

func (c *Cache) endFetch(ticket uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == nil {
		return
	}
	delete(c.inflight, ticket)
	c.collectRemovedLocked()
}

// collectRemovedLocked forgets removed ids that no in-flight fetch predates.
// Any later fetch takes a higher ticket, so the entry guards nothing.
func (c *Cache) collectRemovedLocked() {
	oldest := uint64(math.MaxUint64)
	for t := range c.inflight {
		oldest = min(oldest, t)
	}
	for id, t := range c.removedAt {
		if t < oldest {
			delete(c.removedAt, id)
			delete(c.lastWrite, id)
		}
	}
}

// markWriteLocked records an authoritative write for id. It never moves
// lastWrite backwards.
func (c *Cache) markWriteLocked(id string, ticket uint64, removed bool) {
	c.lastWrite[id] = max(c.lastWrite[id], ticket)
	if removed {
		c.removedAt[id] = c.lastWrite[id]
		c.collectRemovedLocked()
	} else {
		delete(c.removedAt, id)
	}
}

// put stores r. Must be called with c.mu held.
func (c *Cache) put(r bundle.Record) Outcome {
	prev, exists := c.records[r.ID]
	if exists {
		c.order.Delete(keyFor(prev))
	}
	c.records[r.ID] = r
	c.order.ReplaceOrInsert(keyFor(r))
	if exists {
		return OutcomeUpdated
	}
	return OutcomeInserted
}

// drop removes id. Must be called with c.mu held.
func (c *Cache) drop(id string) bool {
	prev, exists := c.records[id]
	if !exists {
		return false
	}
	c.order.Delete(keyFor(prev))
	delete(c.records, id)
	return true
}

// Upsert inserts or replaces a record.
func (c *Cache) Upsert(r bundle.Record) (Outcome, error) {
	if r.ID == "" {
		return OutcomeUnchanged, fmt.Errorf("upsert: empty id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.records == nil {
		return OutcomeUnchanged, ErrDisposed
	}
	c.ticket++
	c.markWriteLocked(r.ID, c.ticket, false)
	return c.put(r.Clone()), nil
}

// Remove deletes id. Removing an absent id is a no-op. It reports whether a
// record was removed.
func (c *Cache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.records == nil {
		return false
	}
	c.ticket++
	c.markWriteLocked(id, c.ticket, true)
	return c.drop(id)
}

// Prune removes the ids chosen by selectExcess from the records as they
// are at the moment of removal. selection and removal happen under one
// lock, so a write cannot land in between. It returns the removed ids in
// selection order.
func (c *Cache) Prune(selectExcess func([]bundle.Record) []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.records == nil {
		return nil
	}
	records := make([]bundle.Record, 0, len(c.records))
	c.order.Ascend(func(k orderKey) bool {
		records = append(records, c.records[k.id].Clone())
		return true
	})

	var removed []string
	for _, id := range selectExcess(records) {
		c.ticket++
		c.markWriteLocked(id, c.ticket, true)
		if c.drop(id) {
			removed = append(removed, id)
		}
	}
	return removed
}

// Get returns a copy of the record for id.
func (c *Cache) Get(id string) (bundle.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.records == nil {
		return bundle.Record{}, ErrDisposed
	}
	r, ok := c.records[id]
	if !ok {
		return bundle.Record{}, ErrNotFound
	}
	return r.Clone(), nil
}

// Has reports whether id is cached.
func (c *Cache) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.records[id]
	return ok
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// List returns copies of all records ordered by dblId, newest revision
// first.
func (c *Cache) List() []bundle.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.order == nil {
		return nil
	}
	out := make([]bundle.Record, 0, len(c.records))
	c.order.Ascend(func(k orderKey) bool {
		out = append(out, c.records[k.id].Clone())
		return true
	})
	return out
}

// IDs returns all cached ids in List order.
func (c *Cache) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.order == nil {
		return nil
	}
	out := make([]string, 0, len(c.records))
	c.order.Ascend(func(k orderKey) bool {
		out = append(out, k.id)
		return true
	})
	return out
}

// Apply runs a state machine transition against the cached record.
func (c *Cache) Apply(id string, t bundle.Transition) (bundle.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.records == nil {
		return bundle.Record{}, ErrDisposed
	}
	prev, ok := c.records[id]
	if !ok {
		return bundle.Record{}, ErrNotFound
	}
	next := bundle.Apply(prev, t)
	c.put(next)
	return next.Clone(), nil
}

// FetchResult is the effect of a FetchAndUpsert call.
type FetchResult struct {
	Outcome Outcome
	Record  bundle.Record
}

// FetchAndUpsert refreshes id from the backend. A not-found response removes
// the record. Any other failure leaves the cache untouched and is returned;
// transient failures match backend.IsTransient.
func (c *Cache) FetchAndUpsert(ctx context.Context, id string) (FetchResult, error) {
	return c.FetchAndUpsertIf(ctx, id, nil)
}

// FetchAndUpsertIf is FetchAndUpsert, except that a snapshot for an id not
// yet cached is only inserted when accept returns true. Known records are
// always refreshed.
func (c *Cache) FetchAndUpsertIf(ctx context.Context, id string, accept func(bundle.Snapshot) bool) (FetchResult, error) {
	ticket := c.beginFetch()
	defer c.endFetch(ticket)

	snap, err := c.client.FetchBundle(ctx, id)
	if err != nil {
		if !backend.IsNotFound(err) {
			return FetchResult{}, fmt.Errorf("fetch bundle %s: %w", id, err)
		}
		return c.applyRemoval(id, ticket)
	}
	if accept != nil && !c.Has(id) && !accept(snap) {
		return FetchResult{Outcome: OutcomeUnchanged}, nil
	}
	// a missing manifest only means no resources are listed yet
	if err := c.fillManifest(ctx, &snap); err != nil && !backend.IsNotFound(err) {
		return FetchResult{}, fmt.Errorf("fetch manifest %s: %w", id, err)
	}
	return c.applySnapshot(snap, ticket)
}

func (c *Cache) applyRemoval(id string, ticket uint64) (FetchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.records == nil {
		return FetchResult{}, ErrDisposed
	}
	if c.lastWrite[id] > ticket {
		return FetchResult{}, ErrStaleWrite
	}
	c.markWriteLocked(id, ticket, true)
	if c.drop(id) {
		return FetchResult{Outcome: OutcomeRemoved}, nil
	}
	return FetchResult{Outcome: OutcomeUnchanged}, nil
}

func (c *Cache) applySnapshot(snap bundle.Snapshot, ticket uint64) (FetchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.records == nil {
		return FetchResult{}, ErrDisposed
	}
	if c.lastWrite[snap.ID] > ticket {
		return FetchResult{}, ErrStaleWrite
	}
	prev, exists := c.records[snap.ID]
	if exists && olderRevision(prev, snap) {
		return FetchResult{}, ErrStaleWrite
	}
	c.markWriteLocked(snap.ID, ticket, false)
	next := bundle.Apply(prev, bundle.RefreshFromSnapshot{Snapshot: snap})
	outcome := c.put(next)
	return FetchResult{Outcome: outcome, Record: next.Clone()}, nil
}

// olderRevision reports whether snap carries a lower submitted revision
// than the cached record.
func olderRevision(prev bundle.Record, snap bundle.Snapshot) bool {
	cached := bundle.ParseRevision(prev.Revision)
	incoming := bundle.ParseRevision(snap.Revision)
	return cached != 0 && incoming != 0 && incoming < cached
}

// fillManifest fetches the manifest when the snapshot does not carry a
// resource count and none is cached yet.
func (c *Cache) fillManifest(ctx context.Context, snap *bundle.Snapshot) error {
	if snap.ResourceCountManifest != nil || snap.Revision == bundle.DraftRevision {
		return nil
	}
	c.mu.RLock()
	prev, ok := c.records[snap.ID]
	c.mu.RUnlock()
	if ok && prev.ResourceCountManifest > 0 {
		return nil
	}
	paths, err := c.client.FetchManifestPaths(ctx, snap.ID)
	if err != nil {
		return err
	}
	n := len(paths)
	snap.ResourceCountManifest = &n
	return nil
}

// LoadResult lists the ids changed by LoadAll.
type LoadResult struct {
	Upserted []string
	Removed  []string
}

// LoadAll replaces the cache content with the backend's full listing.
// Records written after the listing was requested are left alone.
func (c *Cache) LoadAll(ctx context.Context) (LoadResult, error) {
	ticket := c.beginFetch()
	defer c.endFetch(ticket)

	snaps, err := c.client.FetchAll(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("fetch all bundles: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrentFetches)
	for i := range snaps {
		g.Go(func() error {
			err := c.fillManifest(gctx, &snaps[i])
			if err != nil && !backend.IsNotFound(err) {
				return fmt.Errorf("fetch manifest %s: %w", snaps[i].ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return LoadResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.records == nil {
		return LoadResult{}, ErrDisposed
	}

	var result LoadResult
	seen := make(map[string]struct{}, len(snaps))
	for _, snap := range snaps {
		if snap.ID == "" {
			continue
		}
		seen[snap.ID] = struct{}{}
		if c.lastWrite[snap.ID] > ticket {
			continue
		}
		c.markWriteLocked(snap.ID, ticket, false)
		c.put(bundle.Apply(c.records[snap.ID], bundle.RefreshFromSnapshot{Snapshot: snap}))
		result.Upserted = append(result.Upserted, snap.ID)
	}
	for id := range c.records {
		if _, ok := seen[id]; ok || c.lastWrite[id] > ticket {
			continue
		}
		c.markWriteLocked(id, ticket, true)
		c.drop(id)
		result.Removed = append(result.Removed, id)
	}

	c.logger.Info("Cache loaded", "upserted", len(result.Upserted), "removed", len(result.Removed))
	return result, nil
}

// IsStale reports whether err is ErrStaleWrite.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleWrite)
}
