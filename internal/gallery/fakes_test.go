package gallery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tracgallery/gallery/internal/discovery"
	"github.com/tracgallery/gallery/internal/events"
	"github.com/tracgallery/gallery/internal/logging"
	"github.com/tracgallery/gallery/internal/storage"
	"github.com/tracgallery/gallery/internal/types"
)

// clock is a manually advanced time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSource struct {
	mu        sync.Mutex
	clock     *clock
	recent    []discovery.RawCandidate
	byID      map[string]discovery.RawCandidate
	content   map[string][]byte
	secondary []discovery.RawCandidate

	panicSecondary bool
	onContent      func(id string)

	recentCalls    int
	byIDCalls      int
	contentCalls   []string
	secondaryCalls int
}

func ordinal(id, contentType string) discovery.RawCandidate {
	return discovery.RawCandidate{Chain: types.ChainOrdinals, ID: id, ContentType: contentType}
}

func pipe(inscriptionID, ticker string) discovery.RawCandidate {
	return discovery.RawCandidate{Chain: types.ChainPipe, InscriptionID: inscriptionID, Ticker: ticker}
}

func (f *fakeSource) FetchRecent(_ context.Context, limit, _ int) []discovery.RawCandidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recentCalls++
	out := append([]discovery.RawCandidate(nil), f.recent...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeSource) FetchByID(_ context.Context, id string) (*discovery.RawCandidate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byIDCalls++
	raw, ok := f.byID[id]
	if !ok {
		return nil, false
	}
	return &raw, true
}

func (f *fakeSource) FetchContent(_ context.Context, id string) ([]byte, bool) {
	f.mu.Lock()
	f.contentCalls = append(f.contentCalls, id)
	data, ok := f.content[id]
	hook := f.onContent
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return data, ok
}

func (f *fakeSource) FetchSecondary(_ context.Context, limit int) []discovery.RawCandidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secondaryCalls++
	if f.panicSecondary {
		panic("secondary indexer exploded")
	}
	out := append([]discovery.RawCandidate(nil), f.secondary...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeSource) Normalize(raw discovery.RawCandidate) *types.CuratedItem {
	id := raw.Key()
	if id == "" {
		return nil
	}
	return &types.CuratedItem{
		ID:           id,
		Chain:        raw.Chain,
		ContentType:  raw.ContentType,
		Title:        "item " + id,
		DiscoveredAt: f.clock.Now(),
	}
}

func (f *fakeSource) contentFetches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.contentCalls...)
}

// fakeAnalyzer rates every item with the same dimensions unless a per-id
// override is set; ids mapped to nil fail analysis.
type fakeAnalyzer struct {
	mu        sync.Mutex
	score     int
	overrides map[string]*int
	calls     atomic.Int32
	mediaSeen []string
	tripped   atomic.Bool
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ []byte, mediaType string, item *types.CuratedItem) *types.AnalysisResult {
	a.calls.Add(1)
	a.mu.Lock()
	a.mediaSeen = append(a.mediaSeen, mediaType)
	score := a.score
	if o, ok := a.overrides[item.ID]; ok {
		if o == nil {
			a.mu.Unlock()
			return nil
		}
		score = *o
	}
	a.mu.Unlock()
	return &types.AnalysisResult{
		Description:  "rated " + item.ID,
		Style:        types.StylePixelArt,
		Dimensions:   types.Dimensions{Quality: score, Originality: score, Technique: score, Appeal: score},
		Tags:         []string{"test"},
		OverallScore: score,
	}
}

func (a *fakeAnalyzer) ProviderName() string { return "fake" }

func (a *fakeAnalyzer) Healthy() bool { return !a.tripped.Load() }

type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []*events.Message
}

func (b *recordingBroadcaster) Broadcast(msg *events.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
}

func (b *recordingBroadcaster) Messages() []*events.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*events.Message(nil), b.msgs...)
}

type harness struct {
	orch   *Orchestrator
	source *fakeSource
	ai     *fakeAnalyzer
	store  *storage.Store
	bcast  *recordingBroadcaster
	clock  *clock
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	clk := newClock()
	h := &harness{
		source: &fakeSource{clock: clk, byID: map[string]discovery.RawCandidate{}, content: map[string][]byte{}},
		ai:     &fakeAnalyzer{score: 80},
		store:  storage.Open(context.Background(), nil, 100, logging.Nop()),
		bcast:  &recordingBroadcaster{},
		clock:  clk,
	}
	cfg := DefaultConfig()
	cfg.Now = clk.Now
	if mutate != nil {
		mutate(&cfg)
	}
	orch, err := New(cfg, h.source, h.ai, h.store, h.bcast, logging.Nop())
	require.NoError(t, err)
	h.orch = orch
	return h
}

// seed stores an item directly, bypassing discovery
func (h *harness) seed(t *testing.T, id string, chain types.Chain, score *int, style types.Style, age time.Duration) {
	t.Helper()
	item := &types.CuratedItem{ID: id, Chain: chain, Title: id, DiscoveredAt: h.clock.Now().Add(-age)}
	if score != nil {
		item.ApplyAnalysis(&types.AnalysisResult{
			Description:  id,
			Style:        style,
			Dimensions:   types.Dimensions{Quality: *score, Originality: *score, Technique: *score, Appeal: *score},
			OverallScore: *score,
		}, item.DiscoveredAt)
	}
	require.NoError(t, h.store.Add(context.Background(), item))
}
