package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-peerlink/core"
)

const (
	KindLoopback  = "loopback"
	KindWebsocket = "websocket"
	KindWebRTC    = "webrtc"
	KindEasyRTC   = "easyrtc"
)

// AdapterFactory builds a fresh adapter. Adapters hold per-session listener
// state so the registry never hands out shared instances.
type AdapterFactory func(config map[string]any) (core.Adapter, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]AdapterFactory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]AdapterFactory{},
	}
}

// NewDefaultRegistry registers the loopback transport on hub (a hub owned by
// the registry when nil), the websocket relay client and placeholders for the
// browser-only media transports.
func NewDefaultRegistry(hub *Hub) *Registry {
	registry := NewRegistry()
	_ = registry.RegisterFactory(KindLoopback, LoopbackFactory(hub))
	_ = registry.RegisterFactory(KindWebsocket, WebsocketFactory())
	for _, kind := range []string{KindWebRTC, KindEasyRTC} {
		_ = registry.RegisterFactory(kind, unsupportedFactory(kind))
	}
	return registry
}

func (r *Registry) RegisterFactory(kind string, factory AdapterFactory) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return fmt.Errorf("transport: adapter kind is required")
	}
	if factory == nil {
		return fmt.Errorf("transport: adapter factory is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("transport: adapter factory kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

func (r *Registry) Build(kind string, config map[string]any) (core.Adapter, error) {
	if r == nil {
		return nil, fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return nil, fmt.Errorf("transport: adapter kind is required")
	}

	r.mu.RLock()
	factory := r.factories[kind]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("transport: adapter kind %q not registered", kind)
	}
	built, err := factory(cloneMap(config))
	if err != nil {
		return nil, err
	}
	if built == nil {
		return nil, fmt.Errorf("transport: factory for %q returned nil adapter", kind)
	}
	return built, nil
}

func (r *Registry) Has(kind string) bool {
	if r == nil {
		return false
	}
	kind = normalizeKind(kind)
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

func (r *Registry) Kinds() []string {
	if r == nil {
		return []string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func normalizeKind(kind string) string {
	return strings.TrimSpace(strings.ToLower(kind))
}

func unsupportedFactory(kind string) AdapterFactory {
	return func(config map[string]any) (core.Adapter, error) {
		reason := ""
		if value, ok := config["reason"]; ok && value != nil {
			reason = strings.TrimSpace(fmt.Sprint(value))
		}
		return NewUnsupportedAdapter(kind, reason), nil
	}
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

var _ core.AdapterResolver = (*Registry)(nil)
