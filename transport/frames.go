package transport

import (
	"encoding/json"

	"github.com/goliatone/go-peerlink/core"
)

// Relay wire frames. Every frame is one JSON text message.
const (
	frameJoin      = "join"
	frameWelcome   = "welcome"
	frameError     = "error"
	frameOccupants = "occupants"
	frameOpen      = "open"
	frameClose     = "close"
	frameData      = "data"
	frameBroadcast = "broadcast"
)

type frame struct {
	Type       string                `json:"type"`
	ID         core.PeerID           `json:"id,omitempty"`
	From       core.PeerID           `json:"from,omitempty"`
	To         core.PeerID           `json:"to,omitempty"`
	App        string                `json:"app,omitempty"`
	Room       string                `json:"room,omitempty"`
	Tag        string                `json:"tag,omitempty"`
	Payload    []byte                `json:"payload,omitempty"`
	Guaranteed bool                  `json:"guaranteed,omitempty"`
	Priority   int64                 `json:"priority,omitempty"`
	Occupants  map[core.PeerID]int64 `json:"occupants,omitempty"`
	Code       int                   `json:"code,omitempty"`
	Message    string                `json:"message,omitempty"`
}

func encodeFrame(f frame) ([]byte, error) {
	return json.Marshal(f)
}

func (f frame) snapshot() core.OccupantSnapshot {
	out := make(core.OccupantSnapshot, len(f.Occupants))
	for id, priority := range f.Occupants {
		out[id] = core.OccupantInfo{Priority: priority}
	}
	return out
}
