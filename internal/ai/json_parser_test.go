package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracgallery/gallery/internal/types"
)

const sampleAnalysis = `{
  "description": "A pixelated fox sitting under a neon moon.",
  "style": "pixel_art",
  "dimensions": {"quality": 90, "originality": 80, "technique": 80, "appeal": 70},
  "tags": ["fox", "neon", "night"],
  "curatorNote": "A confident piece of small-canvas storytelling."
}`

func TestParseAnalysis_Equivalence(t *testing.T) {
	inputs := map[string]string{
		"plain":          sampleAnalysis,
		"fenced json":    "```json\n" + sampleAnalysis + "\n```",
		"fenced bare":    "```\n" + sampleAnalysis + "\n```",
		"fence no break": "```json" + sampleAnalysis + "```",
		"prose wrapped":  "Here is my analysis of the artwork:\n\n" + sampleAnalysis + "\n\nLet me know if you need more.",
		"trailing comma": `{"description": "A pixelated fox sitting under a neon moon.", "style": "pixel_art", "dimensions": {"quality": 90, "originality": 80, "technique": 80, "appeal": 70,}, "tags": ["fox", "neon", "night",], "curatorNote": "A confident piece of small-canvas storytelling."}`,
	}

	want := &types.AnalysisResult{
		Description:  "A pixelated fox sitting under a neon moon.",
		Style:        types.StylePixelArt,
		Dimensions:   types.Dimensions{Quality: 90, Originality: 80, Technique: 80, Appeal: 70},
		Tags:         []string{"fox", "neon", "night"},
		CuratorNote:  "A confident piece of small-canvas storytelling.",
		OverallScore: 81,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := ParseAnalysis(input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseAnalysis_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", "   "},
		{"refusal", "I'm sorry, I cannot evaluate this image."},
		{"unbalanced", `{"description": "half`},
		{"missing dimensions", `{"description": "d", "style": "abstract"}`},
		{"missing style", `{"description": "d", "dimensions": {"quality": 50}}`},
		{"missing description", `{"style": "abstract", "dimensions": {"quality": 50}}`},
		{"array", `[1, 2, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnalysis(tt.input)
			assert.Nil(t, got)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrMalformedResponse))
		})
	}
}

func TestParseAnalysis_Normalizes(t *testing.T) {
	input := `Sure! {"description": "Shapes like {this} and a \"quoted\" brace }",
		"style": "Watercolor",
		"dimensions": {"quality": 0, "originality": 150, "technique": 49.6, "appeal": -3},
		"tags": ["a", "b", "", "c", 7, "d", "e", "f"]} trailing {"noise": true}`

	got, err := ParseAnalysis(input)
	require.NoError(t, err)

	assert.Equal(t, `Shapes like {this} and a "quoted" brace }`, got.Description)
	assert.Equal(t, types.StyleMixed, got.Style, "unknown styles collapse to mixed")
	assert.Equal(t, types.Dimensions{Quality: 1, Originality: 100, Technique: 50, Appeal: 1}, got.Dimensions)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got.Tags)
	assert.Empty(t, got.CuratorNote)
}

func TestNormalizeStyle(t *testing.T) {
	tests := map[string]types.Style{
		"pixel_art":  types.StylePixelArt,
		"Pixel Art":  types.StylePixelArt,
		" 3D ":       types.Style3D,
		"generative": types.StyleGenerative,
		"collage":    types.StyleCollage,
		"cubism":     types.StyleMixed,
		"":           types.StyleMixed,
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeStyle(in), "input %q", in)
	}
}

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"none", "no json here", ""},
		{"simple", `x {"a": 1} y`, `{"a": 1}`},
		{"nested", `{"a": {"b": {"c": 1}}} and {"d": 2}`, `{"a": {"b": {"c": 1}}}`},
		{"brace in string", `{"a": "}"}`, `{"a": "}"}`},
		{"escaped quote", `{"a": "\"}\""}`, `{"a": "\"}\""}`},
		{"unterminated", `{"a": 1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractObject(tt.input))
		})
	}
}

func TestRemoveCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, removeCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, removeCodeFences("text before ```{\"a\":1}``` after"))
	assert.Equal(t, "no fences", removeCodeFences("no fences"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
	// never splits a multi-byte rune
	assert.Equal(t, "ab...", truncate("abé", 3))
}
