// Package events defines the wire envelopes exchanged with gallery clients:
// command requests, command responses, errors and curated broadcasts.
package events

import (
	"time"

	"github.com/tracgallery/gallery/internal/types"
)

// MessageType tags an outbound envelope
type MessageType string

const (
	// TypeResponse answers a command (and also carries curate broadcasts)
	TypeResponse MessageType = "response"
	// TypeError reports a failed command
	TypeError MessageType = "error"
	// TypeCurated announces items added by a discovery cycle
	TypeCurated MessageType = "curated"
)

// Command names understood by the dispatcher
const (
	CommandGallery  = "gallery"
	CommandTrending = "trending"
	CommandRate     = "rate"
	CommandCurate   = "curate"
	CommandStatus   = "status"
)

// Commands lists every command in help order
var Commands = []string{CommandGallery, CommandTrending, CommandRate, CommandCurate, CommandStatus}

// Request is an inbound command. RequesterID identifies the caller for
// cooldown accounting; empty means an unmetered local operator.
type Request struct {
	Command     string         `json:"command"`
	Args        map[string]any `json:"args,omitempty"`
	RequesterID string         `json:"requesterId,omitempty"`
}

// Message is the envelope for responses, errors and broadcasts
type Message struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Command   string      `json:"command,omitempty"`
	Theme     string      `json:"theme,omitempty"`
	Data      any         `json:"data,omitempty"`
	Count     *int        `json:"count,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// IsError reports whether the message is an error envelope
func (m *Message) IsError() bool {
	return m != nil && m.Type == TypeError
}

// StatusData is the payload of a status response
type StatusData struct {
	types.Stats
	Running             bool   `json:"running"`
	Provider            string `json:"provider"`
	ProviderHealthy     bool   `json:"providerHealthy"`
	GalleryChannel      string `json:"galleryChannel"`
	DiscoveryIntervalMs int64  `json:"discoveryIntervalMs"`
}
