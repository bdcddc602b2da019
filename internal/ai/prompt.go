package ai

import (
	"strconv"
	"strings"

	"github.com/tracgallery/gallery/internal/types"
)

const curationPrompt = `You are an expert NFT art curator and critic analyzing Bitcoin Ordinals inscriptions.

METADATA:
- Inscription ID: {id}
- Inscription #: {number}
- Sat Rarity: {satRarity}
- Content Type: {contentType}

Analyze this artwork and return ONLY a JSON object (no markdown, no explanation):
{
  "description": "2-3 sentence visual description of what you see",
  "style": "one of: pixel_art, generative, photography, illustration, 3d, abstract, typography, collage, mixed",
  "dimensions": {
    "quality": <1-100 score for technical quality>,
    "originality": <1-100 score for creativity and originality>,
    "technique": <1-100 score for artistic technique>,
    "appeal": <1-100 score for visual appeal and collector interest>
  },
  "tags": ["up to 5 descriptive tags"],
  "curatorNote": "1 sentence curatorial opinion"
}`

const unknownValue = "unknown"

// BuildPrompt renders the curation prompt for an item. Missing metadata
// renders as "unknown"; the output is deterministic for a given item.
func BuildPrompt(item *types.CuratedItem) string {
	id, number, rarity, contentType := unknownValue, unknownValue, unknownValue, unknownValue
	if item != nil {
		if item.ID != "" {
			id = item.ID
		}
		if item.NumericIndex != nil {
			number = strconv.FormatInt(*item.NumericIndex, 10)
		}
		if item.Rarity != nil && *item.Rarity != "" {
			rarity = *item.Rarity
		}
		if item.ContentType != "" {
			contentType = item.ContentType
		}
	}

	r := strings.NewReplacer(
		"{id}", id,
		"{number}", number,
		"{satRarity}", rarity,
		"{contentType}", contentType,
	)
	return r.Replace(curationPrompt)
}
