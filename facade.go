package peerlink

import (
	"fmt"

	peerlinkcommand "github.com/goliatone/go-peerlink/command"
	"github.com/goliatone/go-peerlink/core"
	peerlinkquery "github.com/goliatone/go-peerlink/query"
)

type CommandQueryService interface {
	peerlinkcommand.SessionService
	peerlinkquery.SessionReader
}

type Commands struct {
	Connect     *peerlinkcommand.ConnectCommand
	Send        *peerlinkcommand.SendCommand
	Broadcast   *peerlinkcommand.BroadcastCommand
	Subscribe   *peerlinkcommand.SubscribeCommand
	Unsubscribe *peerlinkcommand.UnsubscribeCommand
	Close       *peerlinkcommand.CloseCommand
}

type Queries struct {
	ConnectedClients *peerlinkquery.ConnectedClientsQuery
	ConnectionStatus *peerlinkquery.ConnectionStatusQuery
	ChannelStatus    *peerlinkquery.ChannelStatusQuery
	ListPresence     *peerlinkquery.ListPresenceQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	presenceReader core.PresenceReader
}

func WithPresenceReader(reader core.PresenceReader) FacadeOption {
	return func(options *facadeOptions) {
		options.presenceReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("peerlink: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.presenceReader
	if reader == nil {
		reader = resolvePresenceReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Connect:     peerlinkcommand.NewConnectCommand(service),
		Send:        peerlinkcommand.NewSendCommand(service),
		Broadcast:   peerlinkcommand.NewBroadcastCommand(service),
		Subscribe:   peerlinkcommand.NewSubscribeCommand(service),
		Unsubscribe: peerlinkcommand.NewUnsubscribeCommand(service),
		Close:       peerlinkcommand.NewCloseCommand(service),
	}
	facade.queries = Queries{
		ConnectedClients: peerlinkquery.NewConnectedClientsQuery(service),
		ConnectionStatus: peerlinkquery.NewConnectionStatusQuery(service),
		ChannelStatus:    peerlinkquery.NewChannelStatusQuery(service),
		ListPresence:     peerlinkquery.NewListPresenceQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolvePresenceReader falls back to the session's journal when it can
// also be read back.
func resolvePresenceReader(service CommandQueryService) core.PresenceReader {
	if reader, ok := service.(core.PresenceReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.SessionDependencies
	})
	if !ok {
		return nil
	}
	reader, _ := provider.Dependencies().PresenceJournal.(core.PresenceReader)
	return reader
}
