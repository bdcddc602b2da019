package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracgallery/gallery/internal/types"
)

var fixedTime = time.Date(2025, 5, 1, 12, 30, 0, 0, time.FixedZone("CEST", 2*60*60))

func decode(t *testing.T, msg *Message) map[string]any {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestNewItemsResponse(t *testing.T) {
	items := []*types.CuratedItem{{ID: "a", Chain: types.ChainOrdinals}, {ID: "b", Chain: types.ChainPipe}}
	out := decode(t, NewItemsResponse(CommandGallery, items, fixedTime))

	assert.Equal(t, "response", out["type"])
	assert.Equal(t, "gallery", out["command"])
	assert.Equal(t, float64(2), out["count"])
	assert.Equal(t, "2025-05-01T10:30:00Z", out["timestamp"], "timestamps are UTC ISO-8601")
	assert.Len(t, out["data"], 2)
	assert.NotEmpty(t, out["id"])
	assert.NotContains(t, out, "error")
	assert.NotContains(t, out, "theme")
}

func TestNewItemsResponse_EmptyListKeepsDataAndCount(t *testing.T) {
	out := decode(t, NewItemsResponse(CommandTrending, nil, fixedTime))

	assert.Equal(t, []any{}, out["data"])
	assert.Equal(t, float64(0), out["count"])
}

func TestNewItemResponse(t *testing.T) {
	out := decode(t, NewItemResponse(CommandRate, &types.CuratedItem{ID: "x"}, fixedTime))

	assert.Equal(t, "rate", out["command"])
	assert.NotContains(t, out, "count")
	require.Len(t, out["data"], 1)
}

func TestNewCurateResponse(t *testing.T) {
	out := decode(t, NewCurateResponse("sunset", []*types.CuratedItem{{ID: "x"}}, fixedTime))

	assert.Equal(t, "response", out["type"])
	assert.Equal(t, "curate", out["command"])
	assert.Equal(t, "sunset", out["theme"])
	assert.Equal(t, float64(1), out["count"])
}

func TestNewCurated(t *testing.T) {
	msg := NewCurated([]*types.CuratedItem{{ID: "x"}, {ID: "y"}}, fixedTime)
	out := decode(t, msg)

	assert.Equal(t, "curated", out["type"])
	assert.Equal(t, float64(2), out["count"])
	assert.NotContains(t, out, "command")
	assert.False(t, msg.IsError())
}

func TestNewStatusResponse(t *testing.T) {
	out := decode(t, NewStatusResponse(StatusData{
		Stats:               types.Stats{Total: 3, Analyzed: 2, AvgScore: 71},
		Running:             true,
		Provider:            "anthropic",
		GalleryChannel:      "0000tracgallery",
		DiscoveryIntervalMs: 900000,
	}, fixedTime))

	data, ok := out["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"total":               float64(3),
		"analyzed":            float64(2),
		"avgScore":            float64(71),
		"chains":              []any{},
		"running":             true,
		"provider":            "anthropic",
		"galleryChannel":      "0000tracgallery",
		"discoveryIntervalMs": float64(900000),
	}, data)
}

func TestNewErrorFrom(t *testing.T) {
	msg := NewErrorFrom(&types.RequestError{Kind: types.ErrRateLimited, Message: "Rate limited. Try again later."}, fixedTime)
	assert.True(t, msg.IsError())
	assert.Equal(t, "Rate limited. Try again later.", msg.Error)

	msg = NewErrorFrom(errors.New("database exploded"), fixedTime)
	assert.Equal(t, "Internal error.", msg.Error, "internal details are not leaked")

	out := decode(t, NewError("Inscription not found.", fixedTime))
	assert.Equal(t, "error", out["type"])
	assert.Equal(t, "Inscription not found.", out["error"])
	assert.NotContains(t, out, "data")
}
