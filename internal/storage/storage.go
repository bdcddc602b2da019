// Package storage holds the curated collection: a bounded, deduplicating,
// durable map of items keyed by id.
package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tracgallery/gallery/internal/logging"
	"github.com/tracgallery/gallery/internal/types"
)

// DefaultCapacity is the maximum number of items retained
const DefaultCapacity = 1000

// DefaultTrendingLimit applies when Trending is called without a positive limit
const DefaultTrendingLimit = 10

// Persister durably stores the full collection. Save receives items in
// insertion order and replaces whatever was stored before.
type Persister interface {
	Load(ctx context.Context) ([]*types.CuratedItem, error)
	Save(ctx context.Context, items []*types.CuratedItem) error
	Close() error
}

type entry struct {
	item *types.CuratedItem
	seq  uint64 // insertion order; breaks DiscoveredAt ties during eviction
}

// Store is the canonical owner of curated items. Every read returns clones.
type Store struct {
	mu        sync.RWMutex
	items     map[string]*entry
	nextSeq   uint64
	capacity  int
	persister Persister
	log       *zerolog.Logger
}

// Open creates a store and loads whatever the persister holds. Load failures
// are logged and yield an empty collection; Open itself never fails on them.
func Open(ctx context.Context, persister Persister, capacity int, logger *zerolog.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		items:     make(map[string]*entry),
		capacity:  capacity,
		persister: persister,
		log:       logging.Component(logger, "store"),
	}
	if persister == nil {
		return s
	}

	loaded, err := persister.Load(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to load curated items, starting empty")
		return s
	}
	skipped := 0
	for _, item := range loaded {
		if item == nil || item.Validate() != nil {
			skipped++
			continue
		}
		s.upsertLocked(item)
	}
	evicted := s.evictLocked()
	s.log.Info().Int("items", len(s.items)).Int("skipped", skipped).Int("evicted", evicted).Msg("loaded curated items")
	return s
}

// Capacity returns the configured bound
func (s *Store) Capacity() int {
	return s.capacity
}

// Has reports whether an item with id is present
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// Get returns a copy of the item with id
func (s *Store) Get(id string) (*types.CuratedItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return e.item.Clone(), true
}

// All returns copies of every item in insertion order
func (s *Store) All() []*types.CuratedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.orderedLocked())
}

// Len returns the number of items
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Add upserts one item, evicts down to capacity and persists.
// Nil items and items without an id are ignored. A persistence error is
// returned but the in-memory update stands.
func (s *Store) Add(ctx context.Context, item *types.CuratedItem) error {
	if item == nil || item.ID == "" {
		return nil
	}
	return s.AddBatch(ctx, []*types.CuratedItem{item})
}

// AddBatch upserts items then runs a single eviction and persistence pass
func (s *Store) AddBatch(ctx context.Context, items []*types.CuratedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, item := range items {
		if item == nil || item.ID == "" {
			continue
		}
		s.upsertLocked(item.Clone())
		added++
	}
	if added == 0 {
		return nil
	}
	if n := s.evictLocked(); n > 0 {
		s.log.Debug().Int("evicted", n).Int("capacity", s.capacity).Msg("evicted oldest items")
	}
	return s.persistLocked(ctx)
}

// Filtered returns copies of the items matching f, sorted and truncated
func (s *Store) Filtered(f types.QueryFilter) []*types.CuratedItem {
	s.mu.RLock()
	matched := make([]*types.CuratedItem, 0, len(s.items))
	for _, item := range s.orderedLocked() {
		if matches(item, f) {
			matched = append(matched, item.Clone())
		}
	}
	s.mu.RUnlock()

	sortItems(matched, f.Sort)

	limit := f.Limit
	if limit <= 0 {
		limit = types.DefaultQueryLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// Trending returns the highest-scored items
func (s *Store) Trending(limit int) []*types.CuratedItem {
	if limit <= 0 {
		limit = DefaultTrendingLimit
	}
	return s.Filtered(types.QueryFilter{Sort: types.SortScore, Limit: limit})
}

// Stats summarizes the collection
func (s *Store) Stats() types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.Stats{Total: len(s.items), Chains: []types.Chain{}}
	seen := make(map[types.Chain]bool)
	sum := 0
	for _, e := range s.items {
		if e.item.Score != nil {
			stats.Analyzed++
			sum += *e.item.Score
		}
		if !seen[e.item.Chain] {
			seen[e.item.Chain] = true
			stats.Chains = append(stats.Chains, e.item.Chain)
		}
	}
	if stats.Analyzed > 0 {
		stats.AvgScore = int(math.Round(float64(sum) / float64(stats.Analyzed)))
	}
	sort.Slice(stats.Chains, func(i, j int) bool { return stats.Chains[i] < stats.Chains[j] })
	return stats
}

// Close releases the persister
func (s *Store) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Close()
}

// upsertLocked keeps the original insertion sequence when overwriting
func (s *Store) upsertLocked(item *types.CuratedItem) {
	if e, ok := s.items[item.ID]; ok {
		e.item = item
		return
	}
	s.nextSeq++
	s.items[item.ID] = &entry{item: item, seq: s.nextSeq}
}

// evictLocked removes the oldest items until the store is at capacity
func (s *Store) evictLocked() int {
	excess := len(s.items) - s.capacity
	if excess <= 0 {
		return 0
	}
	entries := make([]*entry, 0, len(s.items))
	for _, e := range s.items {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.item.DiscoveredAt.Equal(b.item.DiscoveredAt) {
			return a.item.DiscoveredAt.Before(b.item.DiscoveredAt)
		}
		return a.seq < b.seq
	})
	for _, e := range entries[:excess] {
		delete(s.items, e.item.ID)
	}
	return excess
}

func (s *Store) persistLocked(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, s.orderedLocked()); err != nil {
		s.log.Error().Err(err).Msg("failed to persist curated items")
		return fmt.Errorf("failed to persist curated items: %w", err)
	}
	return nil
}

// orderedLocked returns the canonical items (not clones) in insertion order
func (s *Store) orderedLocked() []*types.CuratedItem {
	entries := make([]*entry, 0, len(s.items))
	for _, e := range s.items {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]*types.CuratedItem, len(entries))
	for i, e := range entries {
		out[i] = e.item
	}
	return out
}

func matches(item *types.CuratedItem, f types.QueryFilter) bool {
	if f.Chain != "" && item.Chain != f.Chain {
		return false
	}
	if f.MinScore != nil && (item.Score == nil || *item.Score < *f.MinScore) {
		return false
	}
	if f.Style != "" && (item.Analysis == nil || item.Analysis.Style != f.Style) {
		return false
	}
	return true
}

func sortItems(items []*types.CuratedItem, key types.SortKey) {
	switch key {
	case types.SortScore:
		sort.SliceStable(items, func(i, j int) bool {
			return scoreOf(items[i]) > scoreOf(items[j])
		})
	case types.SortOldest:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].DiscoveredAt.Before(items[j].DiscoveredAt)
		})
	default:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].DiscoveredAt.After(items[j].DiscoveredAt)
		})
	}
}

func scoreOf(item *types.CuratedItem) int {
	if item.Score == nil {
		return 0
	}
	return *item.Score
}

func cloneAll(items []*types.CuratedItem) []*types.CuratedItem {
	out := make([]*types.CuratedItem, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}
