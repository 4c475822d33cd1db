package command

import (
	"strings"

	"github.com/goliatone/go-peerlink/core"
)

const (
	TypeConnect     = "peerlink.command.connect"
	TypeSend        = "peerlink.command.send"
	TypeBroadcast   = "peerlink.command.broadcast"
	TypeSubscribe   = "peerlink.command.subscribe"
	TypeUnsubscribe = "peerlink.command.unsubscribe"
	TypeClose       = "peerlink.command.close"
)

type ConnectMessage struct {
	Request core.ConnectRequest
}

func (ConnectMessage) Type() string { return TypeConnect }

// Validate accepts empty fields; the session falls back to its configuration.
func (m ConnectMessage) Validate() error {
	if m.Request.App != "" && strings.TrimSpace(m.Request.App) == "" {
		return commandValidationError("app", "app must not be blank")
	}
	if m.Request.Room != "" && strings.TrimSpace(m.Request.Room) == "" {
		return commandValidationError("room", "room must not be blank")
	}
	return nil
}

type SendMessage struct {
	To         core.PeerID
	Tag        string
	Payload    []byte
	Guaranteed bool
}

func (SendMessage) Type() string { return TypeSend }

func (m SendMessage) Validate() error {
	if strings.TrimSpace(string(m.To)) == "" {
		return commandValidationError("to", "recipient is required")
	}
	return validateTag(m.Tag)
}

type BroadcastMessage struct {
	Tag        string
	Payload    []byte
	Guaranteed bool
}

func (BroadcastMessage) Type() string { return TypeBroadcast }

func (m BroadcastMessage) Validate() error {
	return validateTag(m.Tag)
}

type SubscribeMessage struct {
	Tag     string
	Handler core.MessageHandler
}

func (SubscribeMessage) Type() string { return TypeSubscribe }

func (m SubscribeMessage) Validate() error {
	if err := validateTag(m.Tag); err != nil {
		return err
	}
	if core.IsReservedTag(m.Tag) {
		return commandReservedTagError(m.Tag)
	}
	if m.Handler == nil {
		return commandValidationError("handler", "handler is required")
	}
	return nil
}

type UnsubscribeMessage struct {
	Tag string
}

func (UnsubscribeMessage) Type() string { return TypeUnsubscribe }

func (m UnsubscribeMessage) Validate() error {
	if err := validateTag(m.Tag); err != nil {
		return err
	}
	if core.IsReservedTag(m.Tag) {
		return commandReservedTagError(m.Tag)
	}
	return nil
}

type CloseMessage struct{}

func (CloseMessage) Type() string { return TypeClose }

func (CloseMessage) Validate() error { return nil }

func validateTag(tag string) error {
	if strings.TrimSpace(tag) == "" {
		return commandValidationError("tag", "tag is required")
	}
	return nil
}
