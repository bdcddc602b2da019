package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracgallery/gallery/internal/logging"
	"github.com/tracgallery/gallery/internal/storage"
	"github.com/tracgallery/gallery/internal/types"
)

func sample(id string, minutes int, score *int) *types.CuratedItem {
	it := &types.CuratedItem{
		ID:           id,
		Chain:        types.ChainOrdinals,
		NumericIndex: types.Ptr[int64](int64(minutes)),
		ContentType:  "image/webp",
		ContentURL:   types.Ptr("https://api.hiro.so/ordinals/v1/inscriptions/" + id + "/content"),
		Title:        "Inscription",
		Rarity:       types.Ptr("common"),
		DiscoveredAt: time.Date(2025, 4, 1, 0, minutes, 0, 0, time.UTC),
	}
	if score != nil {
		it.ApplyAnalysis(&types.AnalysisResult{
			Description:  "desc",
			Style:        types.StyleAbstract,
			Dimensions:   types.Dimensions{Quality: *score, Originality: *score, Technique: *score, Appeal: *score},
			Tags:         []string{"t"},
			OverallScore: *score,
		}, it.DiscoveredAt.Add(time.Minute))
	}
	return it
}

func TestPersister_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", FileName)

	p, err := New(ctx, path, logging.Nop())
	require.NoError(t, err)

	items, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	want := []*types.CuratedItem{sample("b", 2, types.Ptr(64)), sample("a", 1, nil), sample("c", 3, types.Ptr(91))}
	require.NoError(t, p.Save(ctx, want))

	got, err := p.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	// Save replaces rather than appends
	require.NoError(t, p.Save(ctx, want[:1]))
	got, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	require.NoError(t, p.Close())
}

func TestNew_CorruptFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	garbage := []byte(strings.Repeat("not a database\n", 128))
	require.NoError(t, os.WriteFile(path, garbage, 0644))

	p, err := New(ctx, path, logging.Nop())
	require.NoError(t, err)
	defer p.Close()
	assert.False(t, p.InMemory(), "a fresh file replaces the corrupt one")

	items, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, p.Save(ctx, []*types.CuratedItem{sample("a", 1, nil)}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var moved []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), FileName+".corrupt-") {
			moved = append(moved, e.Name())
		}
	}
	require.Len(t, moved, 1)
	kept, err := os.ReadFile(filepath.Join(dir, moved[0]))
	require.NoError(t, err)
	assert.Equal(t, garbage, kept, "the unreadable file is preserved for inspection")
}

func TestNew_CorruptFileBacksStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("garbage ", 512)), 0644))

	p, err := New(ctx, path, logging.Nop())
	require.NoError(t, err)
	s := storage.Open(ctx, p, 10, logging.Nop())
	defer s.Close()

	assert.Equal(t, 0, s.Len())
	require.NoError(t, s.Add(ctx, sample("a", 1, types.Ptr(70))))
	assert.True(t, s.Has("a"))
}

func TestQuarantine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("db"), 0644))
	require.NoError(t, os.WriteFile(path+"-wal", []byte("wal"), 0644))

	moved, err := quarantine(path, time.Date(2025, 4, 1, 12, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, path+".corrupt-20250401T123000Z", moved)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(moved + "-wal")
	assert.NoError(t, err)
	_, err = os.Stat(moved + "-shm")
	assert.True(t, os.IsNotExist(err), "missing sidecars are skipped")
}

func TestPersister_ReopenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), FileName)

	p, err := New(ctx, path, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, p.Save(ctx, []*types.CuratedItem{sample("a", 1, nil)}))
	require.NoError(t, p.Close())

	// migrations already applied must not run again
	p, err = New(ctx, path, logging.Nop())
	require.NoError(t, err)
	defer p.Close()

	got, err := p.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestPersister_BacksStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), FileName)

	p, err := New(ctx, path, logging.Nop())
	require.NoError(t, err)
	s := storage.Open(ctx, p, 2, logging.Nop())
	require.NoError(t, s.AddBatch(ctx, []*types.CuratedItem{
		sample("a", 1, nil), sample("b", 2, types.Ptr(50)), sample("c", 3, types.Ptr(70)),
	}))
	require.NoError(t, s.Close())

	p, err = New(ctx, path, logging.Nop())
	require.NoError(t, err)
	reopened := storage.Open(ctx, p, 2, logging.Nop())
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Len())
	assert.False(t, reopened.Has("a"), "evicted item is not persisted")
	assert.Equal(t, types.Stats{Total: 2, Analyzed: 2, AvgScore: 60, Chains: []types.Chain{types.ChainOrdinals}}, reopened.Stats())
}
