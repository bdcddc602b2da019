package events

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracgallery/gallery/internal/types"
)

func TestRequest_Name(t *testing.T) {
	assert.Equal(t, "gallery", Request{Command: "  GaLLery \n"}.Name())
	assert.Equal(t, "", Request{}.Name())
}

func TestRequest_Arg(t *testing.T) {
	req := Request{Args: map[string]any{
		"chain":    " ordinals ",
		"minScore": float64(70),
		"empty":    "   ",
		"flag":     true,
		"nothing":  nil,
	}}

	assert.Equal(t, "ordinals", req.Arg("chain"))
	assert.Equal(t, "70", req.Arg("min_score", "minScore"), "falls through to the alias")
	assert.Equal(t, "", req.Arg("empty"))
	assert.Equal(t, "true", req.Arg("flag"))
	assert.Equal(t, "", req.Arg("nothing"))
	assert.Equal(t, "", req.Arg("missing"))
	assert.Equal(t, "", Request{}.Arg("chain"), "nil args map")
}

func TestRequest_IntArg(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    int
		wantOK  bool
		wantErr bool
	}{
		{name: "absent", args: nil},
		{name: "json number", args: map[string]any{"limit": float64(25)}, want: 25, wantOK: true},
		{name: "fraction truncated", args: map[string]any{"limit": float64(2.9)}, want: 2, wantOK: true},
		{name: "string", args: map[string]any{"limit": " 12 "}, want: 12, wantOK: true},
		{name: "string float", args: map[string]any{"limit": "7.5"}, want: 7, wantOK: true},
		{name: "blank string", args: map[string]any{"limit": ""}},
		{name: "garbage", args: map[string]any{"limit": "lots"}, wantErr: true},
		{name: "wrong type", args: map[string]any{"limit": []any{1}}, wantErr: true},
		{name: "negative kept", args: map[string]any{"limit": float64(-3)}, want: -3, wantOK: true},
		{name: "int32 bound", args: map[string]any{"limit": float64(math.MaxInt32)}, want: math.MaxInt32, wantOK: true},
		{name: "huge number", args: map[string]any{"limit": 1e300}, wantErr: true},
		{name: "huge negative", args: map[string]any{"limit": -1e300}, wantErr: true},
		{name: "infinity", args: map[string]any{"limit": math.Inf(1)}, wantErr: true},
		{name: "nan", args: map[string]any{"limit": math.NaN()}, wantErr: true},
		{name: "huge string", args: map[string]any{"limit": "99999999999999999999"}, wantErr: true},
		{name: "huge int", args: map[string]any{"limit": math.MaxInt32 + 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Request{Args: tt.args}.IntArg("limit")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrInvalidRequest))
				assert.Equal(t, "Invalid --limit parameter.", err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequest_JSON(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"command":"gallery","args":{"min_score":60,"chain":"ordinals"},"requesterId":"peer-1"}`), &req))

	assert.Equal(t, "gallery", req.Name())
	assert.Equal(t, "peer-1", req.RequesterID)
	n, ok, err := req.IntArg("min_score")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 60, n)
}
