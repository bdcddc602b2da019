package discovery

import (
	"fmt"
	"net/url"
	"time"

	"github.com/tracgallery/gallery/internal/types"
)

const (
	ordinalsExplorer = "https://ordinals.com"
	defaultRarity    = "common"
	unknownType      = "unknown"
	pipeFallbackName = "Pipe Token"
)

// Normalize maps a raw candidate onto an unanalyzed curated item.
// Returns nil when the candidate carries no usable id.
func (c *Client) Normalize(raw RawCandidate) *types.CuratedItem {
	now := c.now().UTC()
	if raw.Chain == types.ChainPipe {
		return normalizePipe(raw, now)
	}
	return normalizeOrdinals(raw, c.cfg.HiroBaseURL, now)
}

func normalizeOrdinals(raw RawCandidate, hiroBase string, now time.Time) *types.CuratedItem {
	if raw.ID == "" {
		return nil
	}

	title := "Inscription"
	if raw.Number != nil {
		title = fmt.Sprintf("Inscription #%d", *raw.Number)
	}
	rarity := raw.SatRarity
	if rarity == "" {
		rarity = defaultRarity
	}
	escaped := url.PathEscape(raw.ID)

	item := &types.CuratedItem{
		ID:           raw.ID,
		Chain:        types.ChainOrdinals,
		ContentType:  raw.ContentType,
		ContentURL:   types.Ptr(fmt.Sprintf("%s/inscriptions/%s/content", hiroBase, escaped)),
		Title:        title,
		Rarity:       types.Ptr(rarity),
		MarketURL:    types.Ptr(fmt.Sprintf("%s/inscription/%s", ordinalsExplorer, escaped)),
		DiscoveredAt: now,
	}
	if raw.Number != nil {
		item.NumericIndex = types.Ptr(*raw.Number)
	}
	return item
}

func normalizePipe(raw RawCandidate, now time.Time) *types.CuratedItem {
	id := raw.Key()
	if id == "" {
		return nil
	}

	contentType := raw.ContentType
	if contentType == "" {
		contentType = unknownType
	}
	title := raw.Ticker
	if title == "" {
		title = raw.Name
	}
	if title == "" {
		title = pipeFallbackName
	}

	item := &types.CuratedItem{
		ID:           id,
		Chain:        types.ChainPipe,
		ContentType:  contentType,
		Title:        title,
		DiscoveredAt: now,
	}
	if raw.Ticker != "" {
		item.Collection = types.Ptr(raw.Ticker)
	}
	if raw.InscriptionID != "" {
		escaped := url.PathEscape(raw.InscriptionID)
		item.ContentURL = types.Ptr(fmt.Sprintf("%s/content/%s", ordinalsExplorer, escaped))
		item.MarketURL = types.Ptr(fmt.Sprintf("%s/inscription/%s", ordinalsExplorer, escaped))
	}
	return item
}
