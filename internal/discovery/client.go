package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tracgallery/gallery/internal/logging"
	"github.com/tracgallery/gallery/internal/types"
)

// Config holds indexer client configuration
type Config struct {
	HiroBaseURL       string
	HiroAPIKey        string
	PipeBaseURL       string
	RequestsPerSecond float64       // Proactive throttle per indexer (default: 5)
	Burst             int           // Token bucket burst (default: 5)
	MaxRetries        int           // Retries on HTTP 429 (default: 3)
	RetryDelay        time.Duration // Base backoff delay (default: 1s)
	MaxContentBytes   int64         // Content body cap (default: 5 MiB)
	HTTPClient        *http.Client
	Now               func() time.Time
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		HiroBaseURL:       "https://api.hiro.so/ordinals/v1",
		PipeBaseURL:       "https://pipe.trac.network/api/v1",
		RequestsPerSecond: 5,
		Burst:             5,
		MaxRetries:        3,
		RetryDelay:        time.Second,
		MaxContentBytes:   5 << 20,
	}
}

// Client implements Source against the Hiro and Pipe/TAP HTTP APIs
type Client struct {
	cfg         Config
	http        *http.Client
	hiroLimiter *rate.Limiter
	pipeLimiter *rate.Limiter
	now         func() time.Time
	log         *zerolog.Logger
}

var _ Source = (*Client)(nil)

// NewClient creates an indexer client. Zero-valued fields fall back to DefaultConfig.
func NewClient(cfg Config, logger *zerolog.Logger) *Client {
	def := DefaultConfig()
	if cfg.HiroBaseURL == "" {
		cfg.HiroBaseURL = def.HiroBaseURL
	}
	if cfg.PipeBaseURL == "" {
		cfg.PipeBaseURL = def.PipeBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = def.MaxContentBytes
	}
	cfg.HiroBaseURL = strings.TrimRight(cfg.HiroBaseURL, "/")
	cfg.PipeBaseURL = strings.TrimRight(cfg.PipeBaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		cfg:         cfg,
		http:        httpClient,
		hiroLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		pipeLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		now:         now,
		log:         logging.Component(logger, "discovery"),
	}
}

func (c *Client) hiroHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if c.cfg.HiroAPIKey != "" {
		h.Set("x-api-key", c.cfg.HiroAPIKey)
	}
	return h
}

// fetchWithRetry performs a GET and returns the body of a 2xx response.
// A 429 is retried with exponential backoff up to MaxRetries; anything else
// that is not a success returns ok=false after logging.
func (c *Client) fetchWithRetry(ctx context.Context, limiter *rate.Limiter, rawURL string, headers http.Header, maxBytes int64) ([]byte, bool) {
	for attempt := 0; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			c.log.Debug().Err(err).Str("url", rawURL).Msg("throttle wait aborted")
			return nil, false
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			c.log.Error().Err(err).Str("url", rawURL).Msg("failed to build request")
			return nil, false
		}
		for k, v := range headers {
			req.Header[k] = v
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Error().Err(err).Str("url", rawURL).Msg("fetch error")
			return nil, false
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			drain(resp)
			if attempt >= c.cfg.MaxRetries {
				c.log.Warn().Str("url", rawURL).Int("attempts", attempt+1).Msg("rate limited, retry ceiling reached")
				return nil, false
			}
			delay := c.cfg.RetryDelay * time.Duration(1<<attempt)
			c.log.Info().Dur("delay", delay).Int("attempt", attempt+1).Msg("rate limited, retrying")
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil, false
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			drain(resp)
			c.log.Error().Int("status", resp.StatusCode).Str("url", rawURL).Msg("unexpected HTTP status")
			return nil, false
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
		resp.Body.Close()
		if err != nil {
			c.log.Error().Err(err).Str("url", rawURL).Msg("failed to read body")
			return nil, false
		}
		if int64(len(body)) > maxBytes {
			c.log.Warn().Str("url", rawURL).Int64("limit", maxBytes).Msg("response body exceeds limit")
			return nil, false
		}
		return body, true
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

const maxJSONBytes = 8 << 20

// FetchRecent queries the primary indexer for recent visual inscriptions
func (c *Client) FetchRecent(ctx context.Context, limit, offset int) []RawCandidate {
	q := url.Values{}
	for _, t := range VisualTypes {
		q.Add("mime_type", t)
	}
	q.Set("order", "desc")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	rawURL := c.cfg.HiroBaseURL + "/inscriptions?" + q.Encode()

	body, ok := c.fetchWithRetry(ctx, c.hiroLimiter, rawURL, c.hiroHeaders(), maxJSONBytes)
	if !ok {
		return []RawCandidate{}
	}

	var page struct {
		Results []RawCandidate `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		c.log.Error().Err(err).Msg("failed to parse inscriptions page")
		return []RawCandidate{}
	}

	out := make([]RawCandidate, 0, len(page.Results))
	for _, r := range page.Results {
		if !IsVisualType(r.ContentType) || r.ID == "" {
			continue
		}
		r.Chain = types.ChainOrdinals
		out = append(out, r)
	}
	return out
}

// FetchByID looks up a single inscription on the primary indexer
func (c *Client) FetchByID(ctx context.Context, id string) (*RawCandidate, bool) {
	rawURL := fmt.Sprintf("%s/inscriptions/%s", c.cfg.HiroBaseURL, url.PathEscape(id))
	body, ok := c.fetchWithRetry(ctx, c.hiroLimiter, rawURL, c.hiroHeaders(), maxJSONBytes)
	if !ok {
		return nil, false
	}
	var r RawCandidate
	if err := json.Unmarshal(body, &r); err != nil || r.ID == "" {
		c.log.Error().Err(err).Str("id", id).Msg("failed to parse inscription")
		return nil, false
	}
	r.Chain = types.ChainOrdinals
	return &r, true
}

// FetchContent downloads the raw content bytes of an inscription
func (c *Client) FetchContent(ctx context.Context, id string) ([]byte, bool) {
	rawURL := c.contentURL(id)
	body, ok := c.fetchWithRetry(ctx, c.hiroLimiter, rawURL, c.hiroHeaders(), c.cfg.MaxContentBytes)
	if !ok || len(body) == 0 {
		return nil, false
	}
	return body, true
}

func (c *Client) contentURL(id string) string {
	return fmt.Sprintf("%s/inscriptions/%s/content", c.cfg.HiroBaseURL, url.PathEscape(id))
}

// FetchSecondary lists Pipe/TAP deployments. Failures of any kind yield an empty slice.
func (c *Client) FetchSecondary(ctx context.Context, limit int) (out []RawCandidate) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn().Interface("panic", r).Msg("pipe/TAP source panicked")
			out = []RawCandidate{}
		}
	}()

	rawURL := fmt.Sprintf("%s/pipe/deployments?limit=%d&offset=0", c.cfg.PipeBaseURL, limit)
	h := http.Header{}
	h.Set("Accept", "application/json")
	body, ok := c.fetchWithRetry(ctx, c.pipeLimiter, rawURL, h, maxJSONBytes)
	if !ok {
		c.log.Warn().Msg("pipe/TAP API unavailable")
		return []RawCandidate{}
	}

	var page struct {
		Deployments []map[string]any `json:"deployments"`
		Results     []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		c.log.Warn().Err(err).Msg("failed to parse pipe/TAP deployments")
		return []RawCandidate{}
	}
	rows := page.Deployments
	if len(rows) == 0 {
		rows = page.Results
	}

	out = make([]RawCandidate, 0, len(rows))
	for _, row := range rows {
		cand := RawCandidate{
			Chain:         types.ChainPipe,
			ID:            stringField(row, "id"),
			InscriptionID: stringField(row, "inscription_id"),
			ContentType:   stringField(row, "content_type"),
			Ticker:        stringField(row, "ticker"),
			Name:          stringField(row, "name"),
		}
		if cand.Key() == "" {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// stringField reads a string or number field from a loosely typed record
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}
