package transport

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-peerlink/core"
)

// UnsupportedCode is reported to the connect failure listener by adapters
// that cannot run in this process.
const UnsupportedCode = -1

// UnsupportedAdapter stands in for transports that need a browser media
// stack. Connect always reports failure through the listener.
type UnsupportedAdapter struct {
	listenerSet
	kind   string
	reason string
}

func NewUnsupportedAdapter(kind string, reason string) *UnsupportedAdapter {
	return &UnsupportedAdapter{
		kind:   normalizeKind(kind),
		reason: strings.TrimSpace(reason),
	}
}

func (a *UnsupportedAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *UnsupportedAdapter) message() string {
	if a.reason != "" {
		return "transport: " + a.kind + " adapter is not available: " + a.reason
	}
	return "transport: " + a.kind + " adapter is not available"
}

func (a *UnsupportedAdapter) Connect(context.Context) error {
	if a == nil {
		return nilAdapterError()
	}
	a.callbacks().failure(UnsupportedCode, a.message())
	return nil
}

func (a *UnsupportedAdapter) Disconnect() error { return nil }

func (a *UnsupportedAdapter) OpenChannel(core.PeerID) error { return a.unavailable() }

func (a *UnsupportedAdapter) CloseChannel(core.PeerID) error { return nil }

func (a *UnsupportedAdapter) ShouldInitiate(core.OccupantInfo) bool { return false }

func (a *UnsupportedAdapter) ConnectStatus(core.PeerID) core.ConnectStatus {
	return core.ConnectStatusNotConnected
}

func (a *UnsupportedAdapter) Send(core.PeerID, string, []byte) error { return a.unavailable() }

func (a *UnsupportedAdapter) SendGuaranteed(core.PeerID, string, []byte) error {
	return a.unavailable()
}

func (a *UnsupportedAdapter) Broadcast(string, []byte) error { return a.unavailable() }

func (a *UnsupportedAdapter) BroadcastGuaranteed(string, []byte) error { return a.unavailable() }

func (a *UnsupportedAdapter) unavailable() error {
	if a == nil {
		return nilAdapterError()
	}
	return transportError(
		a.message(),
		goerrors.CategoryOperation,
		http.StatusNotImplemented,
		map[string]any{"transport": a.kind},
	)
}

var _ core.Adapter = (*UnsupportedAdapter)(nil)
