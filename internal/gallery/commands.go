package gallery

import (
	"context"
	"errors"
	"strings"

	"github.com/tracgallery/gallery/internal/ai"
	"github.com/tracgallery/gallery/internal/events"
	"github.com/tracgallery/gallery/internal/types"
)

// Client-facing command failures
var (
	ErrRateLimited  = &types.RequestError{Kind: types.ErrRateLimited, Message: "Rate limited. Try again later."}
	ErrMissingID    = types.NewInvalidRequest("Missing --id parameter.")
	ErrNotFound     = &types.RequestError{Kind: types.ErrNotFound, Message: "Inscription not found."}
	ErrInvalidTheme = types.NewInvalidRequest("Missing or invalid --theme parameter.")
)

// HandleCommand dispatches one request and always returns an envelope.
// Command names are case-insensitive. Only rate and curate are metered.
func (o *Orchestrator) HandleCommand(ctx context.Context, req events.Request) (msg *events.Message) {
	name := req.Name()
	log := o.log.With().Str("command", name).Str("requester", req.RequesterID).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("command handler panicked")
			msg = events.NewError("Internal error.", o.now())
		}
	}()

	var err error
	switch name {
	case events.CommandGallery:
		msg, err = o.handleGallery(req)
	case events.CommandTrending:
		msg, err = o.handleTrending(req)
	case events.CommandRate:
		msg, err = o.handleRate(ctx, req)
	case events.CommandCurate:
		msg, err = o.handleCurate(ctx, req)
	case events.CommandStatus:
		msg = o.handleStatus()
	default:
		err = types.NewInvalidRequest("Unknown command: %s", name)
	}

	if err != nil {
		var reqErr *types.RequestError
		if errors.As(err, &reqErr) {
			log.Debug().Str("error", reqErr.Message).Msg("command rejected")
		} else {
			log.Error().Err(err).Msg("command failed")
		}
		return events.NewErrorFrom(err, o.now())
	}
	return msg
}

func (o *Orchestrator) handleGallery(req events.Request) (*events.Message, error) {
	filter := types.QueryFilter{
		Chain: types.Chain(strings.ToLower(req.Arg("chain"))),
		Style: types.Style(strings.ToLower(req.Arg("style"))),
		Sort:  types.SortKey(strings.ToLower(req.Arg("sort"))),
	}
	if filter.Sort == "" {
		filter.Sort = types.SortNewest
	}
	if !filter.Sort.IsValid() {
		return nil, types.NewInvalidRequest("Invalid --sort parameter. Use newest, oldest or score.")
	}

	minScore, ok, err := req.IntArg("min_score", "minScore")
	if err != nil {
		return nil, err
	}
	if ok {
		filter.MinScore = &minScore
	}
	limit, _, err := req.IntArg("limit")
	if err != nil {
		return nil, err
	}
	filter.Limit = limit

	return events.NewItemsResponse(events.CommandGallery, o.store.Filtered(filter), o.now()), nil
}

func (o *Orchestrator) handleTrending(req events.Request) (*events.Message, error) {
	limit, _, err := req.IntArg("limit")
	if err != nil {
		return nil, err
	}
	return events.NewItemsResponse(events.CommandTrending, o.store.Trending(limit), o.now()), nil
}

func (o *Orchestrator) handleRate(ctx context.Context, req events.Request) (*events.Message, error) {
	id := req.Arg("id")
	if id == "" {
		return nil, ErrMissingID
	}
	if !o.cooldown.Allow(req.RequesterID, o.now()) {
		return nil, ErrRateLimited
	}

	existing, found := o.store.Get(id)
	if found && existing.IsScored() {
		return events.NewItemResponse(events.CommandRate, existing, o.now()), nil
	}

	raw, ok := o.source.FetchByID(ctx, id)
	if !ok {
		return nil, ErrNotFound
	}
	item := o.enrich(ctx, *raw)
	if item == nil {
		return nil, ErrNotFound
	}
	if found {
		item.DiscoveredAt = existing.DiscoveredAt
	}
	if err := o.store.Add(ctx, item); err != nil {
		o.log.Warn().Err(err).Str("id", item.ID).Msg("failed to persist store")
	}
	return events.NewItemResponse(events.CommandRate, item, o.now()), nil
}

func (o *Orchestrator) handleCurate(ctx context.Context, req events.Request) (*events.Message, error) {
	theme, ok := ai.SanitizeTheme(req.Arg("theme"))
	if !ok {
		return nil, ErrInvalidTheme
	}
	if !o.cooldown.Allow(req.RequesterID, o.now()) {
		return nil, ErrRateLimited
	}

	o.log.Info().Str("theme", theme).Msg("on-demand curation")
	curated := o.curateRecent(ctx)

	if len(curated) > 0 && o.broadcaster != nil {
		o.broadcaster.Broadcast(events.NewCurateResponse(theme, curated, o.now()))
	}
	return events.NewCurateResponse(theme, curated, o.now()), nil
}

func (o *Orchestrator) curateRecent(ctx context.Context) []*types.CuratedItem {
	var curated []*types.CuratedItem
	for _, raw := range o.source.FetchRecent(ctx, o.cfg.CurateBatchSize, 0) {
		if ctx.Err() != nil {
			break
		}
		if o.store.Has(raw.Key()) {
			continue
		}
		item := o.enrich(ctx, raw)
		if item == nil {
			continue
		}
		if err := o.store.Add(ctx, item); err != nil {
			o.log.Warn().Err(err).Str("id", item.ID).Msg("failed to persist store")
		}
		curated = append(curated, item)
	}
	return curated
}

func (o *Orchestrator) handleStatus() *events.Message {
	return events.NewStatusResponse(o.Status(), o.now())
}

// Status returns the status payload reported by the status command
func (o *Orchestrator) Status() events.StatusData {
	return events.StatusData{
		Stats:               o.store.Stats(),
		Running:             o.IsRunning(),
		Provider:            o.analyzer.ProviderName(),
		ProviderHealthy:     o.analyzer.Healthy(),
		GalleryChannel:      o.cfg.Channel,
		DiscoveryIntervalMs: o.cfg.Interval.Milliseconds(),
	}
}

