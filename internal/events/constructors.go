package events

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tracgallery/gallery/internal/types"
)

// NewItemsResponse answers a command that returns a list of items. The count
// is always set, even for an empty list.
func NewItemsResponse(command string, items []*types.CuratedItem, at time.Time) *Message {
	if items == nil {
		items = []*types.CuratedItem{}
	}
	n := len(items)
	return &Message{
		ID:        uuid.New().String(),
		Type:      TypeResponse,
		Command:   command,
		Data:      items,
		Count:     &n,
		Timestamp: at.UTC(),
	}
}

// NewItemResponse answers a command that returns a single item (rate)
func NewItemResponse(command string, item *types.CuratedItem, at time.Time) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      TypeResponse,
		Command:   command,
		Data:      []*types.CuratedItem{item},
		Timestamp: at.UTC(),
	}
}

// NewCurateResponse answers a themed curation request
func NewCurateResponse(theme string, items []*types.CuratedItem, at time.Time) *Message {
	msg := NewItemsResponse(CommandCurate, items, at)
	msg.Theme = theme
	return msg
}

// NewStatusResponse answers a status request
func NewStatusResponse(data StatusData, at time.Time) *Message {
	if data.Chains == nil {
		data.Chains = []types.Chain{}
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      TypeResponse,
		Command:   CommandStatus,
		Data:      data,
		Timestamp: at.UTC(),
	}
}

// NewCurated announces a batch of items added by a discovery cycle
func NewCurated(items []*types.CuratedItem, at time.Time) *Message {
	n := len(items)
	return &Message{
		ID:        uuid.New().String(),
		Type:      TypeCurated,
		Data:      items,
		Count:     &n,
		Timestamp: at.UTC(),
	}
}

// NewError builds an error envelope with a client-facing message
func NewError(message string, at time.Time) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      TypeError,
		Error:     message,
		Timestamp: at.UTC(),
	}
}

// NewErrorFrom converts err into an error envelope. RequestErrors expose
// their message; anything else is reported generically.
func NewErrorFrom(err error, at time.Time) *Message {
	var reqErr *types.RequestError
	if errors.As(err, &reqErr) {
		return NewError(reqErr.Message, at)
	}
	return NewError("Internal error.", at)
}
