package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-peerlink/core"
)

var (
	_ gocmd.Querier[ConnectedClientsMessage, core.OccupantSnapshot] = (*ConnectedClientsQuery)(nil)
	_ gocmd.Querier[ConnectionStatusMessage, core.ConnectionStatus] = (*ConnectionStatusQuery)(nil)
	_ gocmd.Querier[ChannelStatusMessage, ChannelStatus]            = (*ChannelStatusQuery)(nil)
	_ gocmd.Querier[ListPresenceMessage, core.PresencePage]         = (*ListPresenceQuery)(nil)

	_ SessionReader = (*core.Session)(nil)
)
