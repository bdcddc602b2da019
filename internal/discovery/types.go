package discovery

import (
	"context"

	"github.com/tracgallery/gallery/internal/types"
)

// VisualTypes is the content-type allow-list for primary discovery
var VisualTypes = []string{
	"image/png",
	"image/jpeg",
	"image/webp",
	"image/gif",
	"image/svg+xml",
}

// IsVisualType reports whether a content type is on the allow-list
func IsVisualType(contentType string) bool {
	for _, t := range VisualTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

// RawCandidate is an indexer record before normalization. Ordinals
// inscriptions fill ID/Number/ContentType/SatRarity; Pipe deployments fill
// InscriptionID/Ticker/Name and possibly ID/ContentType.
type RawCandidate struct {
	Chain         types.Chain `json:"-"`
	ID            string      `json:"id"`
	Number        *int64      `json:"number"`
	ContentType   string      `json:"content_type"`
	SatRarity     string      `json:"sat_rarity"`
	InscriptionID string      `json:"inscription_id,omitempty"`
	Ticker        string      `json:"ticker,omitempty"`
	Name          string      `json:"name,omitempty"`
}

// Key returns the id the candidate will be stored under
func (c RawCandidate) Key() string {
	if c.Chain == types.ChainPipe && c.InscriptionID != "" {
		return c.InscriptionID
	}
	return c.ID
}

// Source is the discovery contract consumed by the orchestrator.
// Implementations never return errors; failures surface as empty or
// not-found results.
type Source interface {
	// FetchRecent returns the most recent visual candidates from the primary indexer
	FetchRecent(ctx context.Context, limit, offset int) []RawCandidate
	// FetchByID looks up one primary candidate
	FetchByID(ctx context.Context, id string) (*RawCandidate, bool)
	// FetchContent returns the raw content bytes of an inscription
	FetchContent(ctx context.Context, id string) ([]byte, bool)
	// FetchSecondary returns best-effort candidates from the secondary indexer
	FetchSecondary(ctx context.Context, limit int) []RawCandidate
	// Normalize maps a candidate onto an unanalyzed curated item; nil if it has no id
	Normalize(c RawCandidate) *types.CuratedItem
}
