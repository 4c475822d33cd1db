package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-peerlink/core"
)

// SessionService is the mutating surface of a core.Session.
type SessionService interface {
	Connect(ctx context.Context, req core.ConnectRequest) error
	Send(ctx context.Context, to core.PeerID, tag string, payload []byte) error
	SendGuaranteed(ctx context.Context, to core.PeerID, tag string, payload []byte) error
	Broadcast(ctx context.Context, tag string, payload []byte) error
	BroadcastGuaranteed(ctx context.Context, tag string, payload []byte) error
	Subscribe(tag string, handler core.MessageHandler) error
	Unsubscribe(tag string) error
	Close() error
	Status() core.ConnectionStatus
}

type ConnectCommand struct {
	service SessionService
}

func NewConnectCommand(service SessionService) *ConnectCommand {
	return &ConnectCommand{service: service}
}

// Execute starts the connection and stores the resulting status. The status
// is usually still connecting since success arrives asynchronously.
func (c *ConnectCommand) Execute(ctx context.Context, msg ConnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if err := c.service.Connect(ctx, msg.Request); err != nil {
		return err
	}
	storeResult(ctx, c.service.Status())
	return nil
}

type SendCommand struct {
	service SessionService
}

func NewSendCommand(service SessionService) *SendCommand {
	return &SendCommand{service: service}
}

func (c *SendCommand) Execute(ctx context.Context, msg SendMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if msg.Guaranteed {
		return c.service.SendGuaranteed(ctx, msg.To, msg.Tag, msg.Payload)
	}
	return c.service.Send(ctx, msg.To, msg.Tag, msg.Payload)
}

type BroadcastCommand struct {
	service SessionService
}

func NewBroadcastCommand(service SessionService) *BroadcastCommand {
	return &BroadcastCommand{service: service}
}

func (c *BroadcastCommand) Execute(ctx context.Context, msg BroadcastMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if msg.Guaranteed {
		return c.service.BroadcastGuaranteed(ctx, msg.Tag, msg.Payload)
	}
	return c.service.Broadcast(ctx, msg.Tag, msg.Payload)
}

type SubscribeCommand struct {
	service SessionService
}

func NewSubscribeCommand(service SessionService) *SubscribeCommand {
	return &SubscribeCommand{service: service}
}

func (c *SubscribeCommand) Execute(_ context.Context, msg SubscribeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.Subscribe(msg.Tag, msg.Handler)
}

type UnsubscribeCommand struct {
	service SessionService
}

func NewUnsubscribeCommand(service SessionService) *UnsubscribeCommand {
	return &UnsubscribeCommand{service: service}
}

func (c *UnsubscribeCommand) Execute(_ context.Context, msg UnsubscribeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.Unsubscribe(msg.Tag)
}

type CloseCommand struct {
	service SessionService
}

func NewCloseCommand(service SessionService) *CloseCommand {
	return &CloseCommand{service: service}
}

func (c *CloseCommand) Execute(ctx context.Context, _ CloseMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if err := c.service.Close(); err != nil {
		return err
	}
	storeResult(ctx, c.service.Status())
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
