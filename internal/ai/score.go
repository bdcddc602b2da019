package ai

import (
	"math"
	"regexp"
	"strings"

	"github.com/tracgallery/gallery/internal/types"
)

// Dimension weights for the overall score; they sum to 1.
const (
	WeightQuality     = 0.30
	WeightOriginality = 0.25
	WeightTechnique   = 0.25
	WeightAppeal      = 0.20
)

// ComputeOverallScore folds the four dimensions into a single 0-100 score.
// Returns nil when dimensions are absent.
func ComputeOverallScore(d *types.Dimensions) *int {
	if d == nil {
		return nil
	}
	sum := float64(d.Quality)*WeightQuality +
		float64(d.Originality)*WeightOriginality +
		float64(d.Technique)*WeightTechnique +
		float64(d.Appeal)*WeightAppeal
	score := int(math.Round(sum))
	return &score
}

const maxThemeLength = 100

var themeDisallowed = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)

// SanitizeTheme truncates a curation theme, strips everything but ASCII
// letters, digits, whitespace, hyphen and underscore, and trims. The second
// return is false when nothing usable remains.
func SanitizeTheme(theme string) (string, bool) {
	runes := []rune(theme)
	if len(runes) > maxThemeLength {
		runes = runes[:maxThemeLength]
	}
	cleaned := strings.TrimSpace(themeDisallowed.ReplaceAllString(string(runes), ""))
	return cleaned, cleaned != ""
}
