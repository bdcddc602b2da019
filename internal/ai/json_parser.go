package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/tracgallery/gallery/internal/types"
)

// Pre-compiled patterns; models are inconsistent about fences and newlines.
var (
	// Matches ```json\n{...}\n```, ```{...}```, ``` json{...}``` anywhere in the text
	codeFenceRegex = regexp.MustCompile("(?s)`{3}(?:json|javascript|js)?\\s*\\n?(.*?)\\n?`{3}")

	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
)

// rawAnalysis mirrors the object the model is asked to return. Pointers
// distinguish "absent" from zero values for the required fields.
type rawAnalysis struct {
	Description *string        `json:"description"`
	Style       *string        `json:"style"`
	Dimensions  *rawDimensions `json:"dimensions"`
	Tags        []any          `json:"tags"`
	CuratorNote string         `json:"curatorNote"`
}

type rawDimensions struct {
	Quality     float64 `json:"quality"`
	Originality float64 `json:"originality"`
	Technique   float64 `json:"technique"`
	Appeal      float64 `json:"appeal"`
}

// ParseAnalysis extracts a structured analysis from free-form model output.
//
// A fenced code block is unwrapped if present; otherwise the first balanced
// top-level {...} span is used. Missing description, style or dimensions is
// an error wrapping types.ErrMalformedResponse. The returned result carries
// its computed OverallScore.
func ParseAnalysis(text string) (*types.AnalysisResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", types.ErrMalformedResponse)
	}

	candidate := removeCodeFences(trimmed)
	if obj := extractObject(candidate); obj != "" {
		candidate = obj
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		cleaned := cleanupJSON(candidate)
		if err2 := json.Unmarshal([]byte(cleaned), &raw); err2 != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
		}
	}

	switch {
	case raw.Description == nil:
		return nil, fmt.Errorf("%w: missing description", types.ErrMalformedResponse)
	case raw.Style == nil:
		return nil, fmt.Errorf("%w: missing style", types.ErrMalformedResponse)
	case raw.Dimensions == nil:
		return nil, fmt.Errorf("%w: missing dimensions", types.ErrMalformedResponse)
	}

	result := &types.AnalysisResult{
		Description: strings.TrimSpace(*raw.Description),
		Style:       normalizeStyle(*raw.Style),
		Dimensions: types.Dimensions{
			Quality:     clampDimension(raw.Dimensions.Quality),
			Originality: clampDimension(raw.Dimensions.Originality),
			Technique:   clampDimension(raw.Dimensions.Technique),
			Appeal:      clampDimension(raw.Dimensions.Appeal),
		},
		Tags:        normalizeTags(raw.Tags),
		CuratorNote: strings.TrimSpace(raw.CuratorNote),
	}
	if score := ComputeOverallScore(&result.Dimensions); score != nil {
		result.OverallScore = *score
	}
	return result, nil
}

// removeCodeFences returns the body of the first fenced block, or the text unchanged
func removeCodeFences(text string) string {
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// cleanupJSON removes trailing commas before closing braces/brackets
func cleanupJSON(text string) string {
	return strings.TrimSpace(trailingCommaRegex.ReplaceAllString(text, "$1"))
}

// extractObject returns the first balanced top-level {...} span. Braces
// inside string literals (including escaped quotes) are ignored. Returns ""
// when no balanced object exists.
func extractObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func normalizeStyle(s string) types.Style {
	style := types.Style(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_"))
	if style == "3d_render" || style == "3-d" {
		style = types.Style3D
	}
	if !style.IsValid() {
		return types.StyleMixed
	}
	return style
}

func clampDimension(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}

func normalizeTags(raw []any) []string {
	tags := make([]string, 0, types.MaxTags)
	for _, t := range raw {
		s, ok := t.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		tags = append(tags, s)
		if len(tags) == types.MaxTags {
			break
		}
	}
	return tags
}

// truncate shortens s to at most maxLen bytes on a rune boundary
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
