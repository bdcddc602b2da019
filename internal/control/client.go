package control

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/tracgallery/gallery/internal/events"
	"github.com/tracgallery/gallery/internal/types"
)

// DefaultTimeout covers a curate run of several sequential analyses
const DefaultTimeout = 5 * time.Minute

// Response is a decoded envelope whose data is kept raw until the caller
// knows its shape
type Response struct {
	events.Message
	Data json.RawMessage `json:"data,omitempty"`
}

// Items decodes list data (gallery, trending, rate, curate)
func (r *Response) Items() ([]*types.CuratedItem, error) {
	var items []*types.CuratedItem
	if len(r.Data) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(r.Data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

// Status decodes status data
func (r *Response) Status() (*events.StatusData, error) {
	var status events.StatusData
	if err := json.Unmarshal(r.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

// Client sends commands to a running gallery daemon
type Client struct {
	socketPath  string
	requesterID string
	timeout     time.Duration
}

// NewClient creates a client. Requests are attributed to the local user so
// metered commands share one cooldown per account.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath:  socketPath,
		requesterID: fmt.Sprintf("local:%d", os.Getuid()),
		timeout:     DefaultTimeout,
	}
}

// SetTimeout sets the client timeout for commands
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// RequesterID returns the id attached to outgoing requests
func (c *Client) RequesterID() string {
	return c.requesterID
}

// Send delivers one request and waits for the envelope. Error envelopes are
// returned as a Response, not as a Go error.
func (c *Client) Send(req events.Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gallery daemon (is it running?): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if req.RequesterID == "" {
		req.RequesterID = c.requesterID
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

// Status requests the daemon status
func (c *Client) Status() (*Response, error) {
	return c.Send(events.Request{Command: events.CommandStatus})
}

// Gallery queries the curated collection
func (c *Client) Gallery(args map[string]any) (*Response, error) {
	return c.Send(events.Request{Command: events.CommandGallery, Args: args})
}

// Trending requests the top-scored items
func (c *Client) Trending(limit int) (*Response, error) {
	var args map[string]any
	if limit > 0 {
		args = map[string]any{"limit": limit}
	}
	return c.Send(events.Request{Command: events.CommandTrending, Args: args})
}

// Rate requests an analysis of one inscription
func (c *Client) Rate(id string) (*Response, error) {
	return c.Send(events.Request{Command: events.CommandRate, Args: map[string]any{"id": id}})
}

// Curate requests a themed curation run
func (c *Client) Curate(theme string) (*Response, error) {
	return c.Send(events.Request{Command: events.CommandCurate, Args: map[string]any{"theme": theme}})
}
