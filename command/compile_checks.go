package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-peerlink/core"
)

var (
	_ gocmd.Commander[ConnectMessage]     = (*ConnectCommand)(nil)
	_ gocmd.Commander[SendMessage]        = (*SendCommand)(nil)
	_ gocmd.Commander[BroadcastMessage]   = (*BroadcastCommand)(nil)
	_ gocmd.Commander[SubscribeMessage]   = (*SubscribeCommand)(nil)
	_ gocmd.Commander[UnsubscribeMessage] = (*UnsubscribeCommand)(nil)
	_ gocmd.Commander[CloseMessage]       = (*CloseCommand)(nil)

	_ SessionService = (*core.Session)(nil)
)
