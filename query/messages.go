package query

import (
	"strings"

	"github.com/goliatone/go-peerlink/core"
)

const (
	TypeConnectedClients = "peerlink.query.connected_clients"
	TypeConnectionStatus = "peerlink.query.connection_status"
	TypeChannelStatus    = "peerlink.query.channel_status"
	TypeListPresence     = "peerlink.query.presence.list"
)

type ConnectedClientsMessage struct{}

func (ConnectedClientsMessage) Type() string { return TypeConnectedClients }

func (ConnectedClientsMessage) Validate() error { return nil }

type ConnectionStatusMessage struct{}

func (ConnectionStatusMessage) Type() string { return TypeConnectionStatus }

func (ConnectionStatusMessage) Validate() error { return nil }

type ChannelStatusMessage struct {
	PeerID core.PeerID
}

func (ChannelStatusMessage) Type() string { return TypeChannelStatus }

func (m ChannelStatusMessage) Validate() error {
	if strings.TrimSpace(string(m.PeerID)) == "" {
		return queryValidationError("peer_id", "peer id is required")
	}
	return nil
}

// ChannelStatus describes the local view of one remote peer.
type ChannelStatus struct {
	PeerID   core.PeerID
	Occupant bool
	Active   bool
	Self     bool
}

type ListPresenceMessage struct {
	Filter core.PresenceFilter
}

func (ListPresenceMessage) Type() string { return TypeListPresence }

func (m ListPresenceMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return queryValidationError("to", "to must not be before from")
	}
	return nil
}
