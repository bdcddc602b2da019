package types

import (
	"fmt"
	"strings"
	"time"
)

// Chain identifies the external chain an item was discovered on
type Chain string

const (
	ChainOrdinals Chain = "ordinals"
	ChainPipe     Chain = "pipe"
)

// IsValid checks if the chain value is known
func (c Chain) IsValid() bool {
	switch c {
	case ChainOrdinals, ChainPipe:
		return true
	}
	return false
}

// Style is the visual style vocabulary the curator rates against
type Style string

const (
	StylePixelArt     Style = "pixel_art"
	StyleGenerative   Style = "generative"
	StylePhotography  Style = "photography"
	StyleIllustration Style = "illustration"
	Style3D           Style = "3d"
	StyleAbstract     Style = "abstract"
	StyleTypography   Style = "typography"
	StyleCollage      Style = "collage"
	StyleMixed        Style = "mixed"
)

// Styles lists the full vocabulary in prompt order
var Styles = []Style{
	StylePixelArt, StyleGenerative, StylePhotography, StyleIllustration,
	Style3D, StyleAbstract, StyleTypography, StyleCollage, StyleMixed,
}

// IsValid checks if the style value belongs to the vocabulary
func (s Style) IsValid() bool {
	for _, known := range Styles {
		if s == known {
			return true
		}
	}
	return false
}

// MaxTags is the maximum number of tags kept on an analysis
const MaxTags = 5

// Dimensions holds the four sub-scores returned by the vision model (each 1-100)
type Dimensions struct {
	Quality     int `json:"quality"`
	Originality int `json:"originality"`
	Technique   int `json:"technique"`
	Appeal      int `json:"appeal"`
}

// AnalysisResult is the structured rating of one item
type AnalysisResult struct {
	Description  string     `json:"description"`
	Style        Style      `json:"style"`
	Dimensions   Dimensions `json:"dimensions"`
	Tags         []string   `json:"tags"`
	CuratorNote  string     `json:"curatorNote"`
	OverallScore int        `json:"overallScore"`
}

// CuratedItem is a discovered inscription, optionally enriched with an analysis.
//
// JSON names match the wire shape the dashboard consumes.
type CuratedItem struct {
	ID           string          `json:"id"`
	Chain        Chain           `json:"chain"`
	NumericIndex *int64          `json:"inscriptionNumber"`
	ContentType  string          `json:"contentType"`
	ContentURL   *string         `json:"contentUrl"`
	Title        string          `json:"title"`
	Collection   *string         `json:"collection"`
	Rarity       *string         `json:"satRarity"`
	Score        *int            `json:"aiScore"`
	Analysis     *AnalysisResult `json:"aiAnalysis"`
	MarketURL    *string         `json:"marketplaceUrl"`
	DiscoveredAt time.Time       `json:"discoveredAt"`
	AnalyzedAt   *time.Time      `json:"analyzedAt"`
}

// IsScored reports whether the item carries an analysis
func (i *CuratedItem) IsScored() bool {
	return i != nil && i.Score != nil
}

// ApplyAnalysis attaches an analysis and its overall score together so that
// Score and Analysis are always set or unset as a pair.
func (i *CuratedItem) ApplyAnalysis(a *AnalysisResult, at time.Time) {
	if a == nil {
		i.ClearAnalysis()
		return
	}
	score := a.OverallScore
	analyzedAt := at
	i.Analysis = a
	i.Score = &score
	i.AnalyzedAt = &analyzedAt
}

// ClearAnalysis marks the item as unanalyzed
func (i *CuratedItem) ClearAnalysis() {
	i.Analysis = nil
	i.Score = nil
	i.AnalyzedAt = nil
}

// Validate checks the item invariants
func (i *CuratedItem) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if (i.Score == nil) != (i.Analysis == nil) {
		return fmt.Errorf("score and analysis must be set together (item %s)", i.ID)
	}
	if i.Score != nil && (*i.Score < 0 || *i.Score > 100) {
		return fmt.Errorf("score must be between 0 and 100 (got %d)", *i.Score)
	}
	return nil
}

// Clone returns a deep copy of the item
func (i *CuratedItem) Clone() *CuratedItem {
	if i == nil {
		return nil
	}
	c := *i
	c.NumericIndex = clonePtr(i.NumericIndex)
	c.ContentURL = clonePtr(i.ContentURL)
	c.Collection = clonePtr(i.Collection)
	c.Rarity = clonePtr(i.Rarity)
	c.Score = clonePtr(i.Score)
	c.MarketURL = clonePtr(i.MarketURL)
	c.AnalyzedAt = clonePtr(i.AnalyzedAt)
	if i.Analysis != nil {
		a := *i.Analysis
		a.Tags = append([]string(nil), i.Analysis.Tags...)
		c.Analysis = &a
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// SortKey selects the ordering of query results
type SortKey string

const (
	SortNewest SortKey = "newest"
	SortOldest SortKey = "oldest"
	SortScore  SortKey = "score"
)

// IsValid checks if the sort key is known
func (s SortKey) IsValid() bool {
	switch s {
	case SortNewest, SortOldest, SortScore:
		return true
	}
	return false
}

// DefaultQueryLimit is applied when a filter carries no positive limit
const DefaultQueryLimit = 50

// QueryFilter narrows and orders a store query. Zero values mean "no filter".
type QueryFilter struct {
	Chain    Chain
	MinScore *int
	Style    Style
	Sort     SortKey
	Limit    int
}

// Stats summarizes the curated collection
type Stats struct {
	Total    int     `json:"total"`
	Analyzed int     `json:"analyzed"`
	AvgScore int     `json:"avgScore"`
	Chains   []Chain `json:"chains"`
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
