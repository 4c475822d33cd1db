package query

import (
	"context"

	"github.com/goliatone/go-peerlink/core"
)

// SessionReader is the read surface of a core.Session.
type SessionReader interface {
	ConnectedClients() core.OccupantSnapshot
	Status() core.ConnectionStatus
	IsActive(id core.PeerID) bool
	IsSelf(id core.PeerID) bool
}

type ConnectedClientsQuery struct {
	reader SessionReader
}

func NewConnectedClientsQuery(reader SessionReader) *ConnectedClientsQuery {
	return &ConnectedClientsQuery{reader: reader}
}

func (q *ConnectedClientsQuery) Query(context.Context, ConnectedClientsMessage) (core.OccupantSnapshot, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: session reader is required")
	}
	return q.reader.ConnectedClients(), nil
}

type ConnectionStatusQuery struct {
	reader SessionReader
}

func NewConnectionStatusQuery(reader SessionReader) *ConnectionStatusQuery {
	return &ConnectionStatusQuery{reader: reader}
}

func (q *ConnectionStatusQuery) Query(context.Context, ConnectionStatusMessage) (core.ConnectionStatus, error) {
	if q == nil || q.reader == nil {
		return core.ConnectionStatus{}, queryDependencyError("query: session reader is required")
	}
	return q.reader.Status(), nil
}

type ChannelStatusQuery struct {
	reader SessionReader
}

func NewChannelStatusQuery(reader SessionReader) *ChannelStatusQuery {
	return &ChannelStatusQuery{reader: reader}
}

func (q *ChannelStatusQuery) Query(_ context.Context, msg ChannelStatusMessage) (ChannelStatus, error) {
	if q == nil || q.reader == nil {
		return ChannelStatus{}, queryDependencyError("query: session reader is required")
	}
	if err := msg.Validate(); err != nil {
		return ChannelStatus{}, err
	}
	return ChannelStatus{
		PeerID:   msg.PeerID,
		Occupant: q.reader.ConnectedClients().Has(msg.PeerID),
		Active:   q.reader.IsActive(msg.PeerID),
		Self:     q.reader.IsSelf(msg.PeerID),
	}, nil
}

type ListPresenceQuery struct {
	reader core.PresenceReader
}

func NewListPresenceQuery(reader core.PresenceReader) *ListPresenceQuery {
	return &ListPresenceQuery{reader: reader}
}

func (q *ListPresenceQuery) Query(ctx context.Context, msg ListPresenceMessage) (core.PresencePage, error) {
	if q == nil || q.reader == nil {
		return core.PresencePage{}, queryDependencyError("query: presence reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.PresencePage{}, err
	}
	return q.reader.List(ctx, core.NormalizePresenceFilter(msg.Filter))
}
