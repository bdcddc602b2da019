// Package gallery runs the curation loop and answers gallery commands.
//
// The Orchestrator owns the timer-driven discovery cycle (discover, dedup,
// analyze, store, publish) and the command dispatcher used by every
// transport. It reaches indexers, the vision engine and the store only
// through the interfaces below.
package gallery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tracgallery/gallery/internal/discovery"
	"github.com/tracgallery/gallery/internal/events"
	"github.com/tracgallery/gallery/internal/logging"
	"github.com/tracgallery/gallery/internal/types"
)

// Analyzer rates one item's content. Failures are reported as nil.
type Analyzer interface {
	Analyze(ctx context.Context, content []byte, mediaType string, item *types.CuratedItem) *types.AnalysisResult
	ProviderName() string
	Healthy() bool
}

// Store is the curated collection as seen by the orchestrator
type Store interface {
	Has(id string) bool
	Get(id string) (*types.CuratedItem, bool)
	Add(ctx context.Context, item *types.CuratedItem) error
	AddBatch(ctx context.Context, items []*types.CuratedItem) error
	Filtered(f types.QueryFilter) []*types.CuratedItem
	Trending(limit int) []*types.CuratedItem
	Stats() types.Stats
	Len() int
}

// Broadcaster publishes envelopes to connected clients. Broadcast must not block.
type Broadcaster interface {
	Broadcast(msg *events.Message)
}

// Config holds orchestrator settings
type Config struct {
	Interval        time.Duration // Time between discovery cycles (default: 15m)
	BatchSize       int           // Primary candidates per cycle (default: 20)
	SecondaryLimit  int           // Secondary candidates per cycle (default: 5)
	CurateBatchSize int           // Candidates examined by curate (default: 10)
	Cooldown        time.Duration // Per-requester window for rate/curate (default: 10m)
	Channel         string        // Channel identity reported by status
	Now             func() time.Time
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		Interval:        15 * time.Minute,
		BatchSize:       20,
		SecondaryLimit:  5,
		CurateBatchSize: 10,
		Cooldown:        10 * time.Minute,
		Channel:         "0000tracgallery",
	}
}

// Orchestrator drives discovery cycles and dispatches commands
type Orchestrator struct {
	cfg         Config
	source      discovery.Source
	analyzer    Analyzer
	store       Store
	broadcaster Broadcaster
	cooldown    *cooldown
	now         func() time.Time
	log         *zerolog.Logger

	mu      sync.Mutex
	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an orchestrator. broadcaster may be nil, in which case
// nothing is published.
func New(cfg Config, source discovery.Source, analyzer Analyzer, store Store, broadcaster Broadcaster, logger *zerolog.Logger) (*Orchestrator, error) {
	if source == nil {
		return nil, fmt.Errorf("discovery source is required")
	}
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.SecondaryLimit <= 0 {
		cfg.SecondaryLimit = def.SecondaryLimit
	}
	if cfg.CurateBatchSize <= 0 {
		cfg.CurateBatchSize = def.CurateBatchSize
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		cfg:         cfg,
		source:      source,
		analyzer:    analyzer,
		store:       store,
		broadcaster: broadcaster,
		cooldown:    newCooldown(cfg.Cooldown),
		now:         now,
		log:         logging.Component(logger, "orchestrator"),
	}, nil
}

// IsRunning reports whether the discovery loop is active
func (o *Orchestrator) IsRunning() bool {
	return o.running.Load()
}

// Start runs one discovery cycle immediately, then one per interval until
// Stop is called or ctx is cancelled. It returns once the loop is launched.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running.CompareAndSwap(false, true) {
		return fmt.Errorf("orchestrator is already running")
	}

	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	go o.loop(ctx, o.stopCh, o.doneCh)

	o.log.Info().
		Dur("interval", o.cfg.Interval).
		Str("provider", o.analyzer.ProviderName()).
		Str("channel", o.cfg.Channel).
		Msg("discovery loop started")
	return nil
}

// Stop ends the loop. An in-flight cycle finishes its current candidate and
// skips the rest. Stop waits for the loop to exit or ctx to expire. Calling
// Stop on a stopped orchestrator is a no-op.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running.CompareAndSwap(true, false) {
		o.mu.Unlock()
		return nil
	}
	close(o.stopCh)
	doneCh := o.doneCh
	o.mu.Unlock()

	select {
	case <-doneCh:
		o.log.Info().Msg("discovery loop stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for discovery loop: %w", ctx.Err())
	}
}

func (o *Orchestrator) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	o.runCycle(ctx, stopCh)

	timer := time.NewTimer(o.cfg.Interval)
	defer timer.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			o.running.Store(false)
			return
		case <-timer.C:
			o.runCycle(ctx, stopCh)
			timer.Reset(o.cfg.Interval)
		}
	}
}

// RunCycle performs a single discovery cycle outside the loop and returns
// the number of newly curated items.
func (o *Orchestrator) RunCycle(ctx context.Context) int {
	return o.runCycle(ctx, nil)
}

func (o *Orchestrator) runCycle(ctx context.Context, stopCh <-chan struct{}) (added int) {
	cycleID := uuid.New().String()[:8]
	log := o.log.With().Str("cycle", cycleID).Logger()
	start := o.now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("discovery cycle panicked")
		}
	}()

	if n := o.cooldown.Sweep(start); n > 0 {
		log.Debug().Int("expired", n).Msg("swept cooldown entries")
	}

	log.Info().Msg("discovery cycle starting")
	var curated []*types.CuratedItem

	candidates := o.source.FetchRecent(ctx, o.cfg.BatchSize, 0)
	for _, raw := range candidates {
		if halted(ctx, stopCh) {
			log.Info().Msg("cycle interrupted")
			break
		}
		if o.store.Has(raw.Key()) {
			continue
		}
		item := o.enrich(ctx, raw)
		if item == nil {
			continue
		}
		if err := o.store.Add(ctx, item); err != nil {
			log.Warn().Err(err).Str("id", item.ID).Msg("failed to persist store")
		}
		curated = append(curated, item)
		log.Info().Str("id", item.ID).Str("title", item.Title).Interface("score", item.Score).Msg("curated")
	}

	curated = append(curated, o.collectSecondary(ctx, stopCh, &log)...)

	if len(curated) > 0 && o.broadcaster != nil {
		o.broadcaster.Broadcast(events.NewCurated(curated, o.now()))
	}

	log.Info().
		Int("new", len(curated)).
		Int("total", o.store.Len()).
		Dur("elapsed", o.now().Sub(start)).
		Msg("discovery cycle complete")
	return len(curated)
}

// collectSecondary stores unscored secondary candidates. Its failures never
// reach the primary pipeline.
func (o *Orchestrator) collectSecondary(ctx context.Context, stopCh <-chan struct{}, log *zerolog.Logger) (out []*types.CuratedItem) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("secondary discovery panicked")
			out = nil
		}
	}()
	if halted(ctx, stopCh) {
		return nil
	}

	seen := make(map[string]bool)
	for _, raw := range o.source.FetchSecondary(ctx, o.cfg.SecondaryLimit) {
		item := o.source.Normalize(raw)
		if item == nil || seen[item.ID] || o.store.Has(item.ID) {
			continue
		}
		seen[item.ID] = true
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil
	}
	if err := o.store.AddBatch(ctx, out); err != nil {
		log.Warn().Err(err).Msg("failed to persist store")
	}
	return out
}

// enrich normalizes a candidate and attaches an analysis when the content
// can be fetched and rated. It is shared by the loop, rate and curate.
func (o *Orchestrator) enrich(ctx context.Context, raw discovery.RawCandidate) *types.CuratedItem {
	item := o.source.Normalize(raw)
	if item == nil {
		return nil
	}
	content, ok := o.source.FetchContent(ctx, raw.Key())
	if !ok {
		return item
	}
	mediaType := raw.ContentType
	if mediaType == "" {
		mediaType = item.ContentType
	}
	if analysis := o.analyzer.Analyze(ctx, content, mediaType, item); analysis != nil {
		item.ApplyAnalysis(analysis, o.now().UTC())
	}
	return item
}

func halted(ctx context.Context, stopCh <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}
