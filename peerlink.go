package peerlink

import (
	"context"
	"time"

	"github.com/goliatone/go-peerlink/core"
	"github.com/goliatone/go-peerlink/transport"
)

type Config = core.Config

type Option = core.Option

type Session = core.Session

type SessionDependencies = core.SessionDependencies

type PeerID = core.PeerID
type Adapter = core.Adapter
type AdapterResolver = core.AdapterResolver
type EntitySink = core.EntitySink
type MessageHandler = core.MessageHandler
type Listener = core.Listener
type ListenerFunc = core.ListenerFunc
type Event = core.Event
type EventType = core.EventType
type OccupantSnapshot = core.OccupantSnapshot
type OccupantInfo = core.OccupantInfo
type ConnectionStatus = core.ConnectionStatus
type PresenceJournal = core.PresenceJournal
type PresenceReader = core.PresenceReader

type ConnectRequest = core.ConnectRequest

type Hub = transport.Hub

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorFactory    = core.WithErrorFactory
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithAdapter         = core.WithAdapter
	WithAdapterResolver = core.WithAdapterResolver
	WithEntitySink      = core.WithEntitySink
	WithListener        = core.WithListener
	WithPresenceJournal = core.WithPresenceJournal
	WithClock           = core.WithClock
)

const awaitPollInterval = 10 * time.Millisecond

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewHub() *Hub {
	return transport.NewHub()
}

// WithHub resolves transports against a default registry whose loopback
// transport joins hub. Sessions sharing a hub see each other.
func WithHub(hub *Hub) Option {
	return core.WithAdapterResolver(transport.NewDefaultRegistry(hub))
}

// NewSession builds a session that resolves cfg.Transport against a default
// transport registry of its own unless WithHub, an adapter or a resolver is
// supplied.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	return core.NewSession(cfg, withDefaultTransports(opts)...)
}

func Setup(cfg Config, opts ...Option) (*Session, error) {
	return core.Setup(cfg, withDefaultTransports(opts)...)
}

func withDefaultTransports(opts []Option) []Option {
	out := make([]Option, 0, len(opts)+1)
	out = append(out, core.WithAdapterResolver(transport.NewDefaultRegistry(nil)))
	return append(out, opts...)
}

// AwaitConnected blocks until session reports connected, a connect failure
// is recorded, the session is closed, or ctx ends.
func AwaitConnected(ctx context.Context, session *Session) error {
	if session == nil {
		return core.ConnectFailure(0, "peerlink: session is nil")
	}

	ticker := time.NewTicker(awaitPollInterval)
	defer ticker.Stop()
	for {
		switch session.State() {
		case core.StateConnected:
			return nil
		case core.StateClosed:
			return core.SessionClosedError("await connected")
		}
		if err := session.LastConnectError(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			if err := session.LastConnectError(); err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
