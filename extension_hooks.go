package peerlink

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-peerlink/core"
	"github.com/goliatone/go-peerlink/transport"
)

// TransportPack contributes adapter factories keyed by transport kind.
type TransportPack struct {
	Name      string
	Factories map[string]transport.AdapterFactory
}

// HandlerPack contributes message handlers keyed by tag.
type HandlerPack struct {
	Name     string
	Handlers map[string]core.MessageHandler
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type TagSubscriber interface {
	Subscribe(tag string, handler core.MessageHandler) error
}

type ExtensionHooks struct {
	mu sync.RWMutex

	transportPacks map[string]TransportPack
	handlerPacks   map[string]HandlerPack
	bundles        map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		transportPacks: map[string]TransportPack{},
		handlerPacks:   map[string]HandlerPack{},
		bundles:        map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterTransportPack(pack TransportPack) error {
	if h == nil {
		return fmt.Errorf("peerlink: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("peerlink: transport pack name is required")
	}
	if len(pack.Factories) == 0 {
		return fmt.Errorf("peerlink: transport pack %q has no factories", name)
	}

	normalized := TransportPack{Name: name, Factories: make(map[string]transport.AdapterFactory, len(pack.Factories))}
	for kind, factory := range pack.Factories {
		if factory == nil {
			return fmt.Errorf("peerlink: transport pack %q has nil factory for %q", name, kind)
		}
		normalized.Factories[kind] = factory
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.transportPacks[name]; exists {
		return fmt.Errorf("peerlink: transport pack %q already registered", name)
	}
	h.transportPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterHandlerPack(pack HandlerPack) error {
	if h == nil {
		return fmt.Errorf("peerlink: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("peerlink: handler pack name is required")
	}
	if len(pack.Handlers) == 0 {
		return fmt.Errorf("peerlink: handler pack %q has no handlers", name)
	}

	normalized := HandlerPack{Name: name, Handlers: make(map[string]core.MessageHandler, len(pack.Handlers))}
	for tag, handler := range pack.Handlers {
		if core.IsReservedTag(tag) {
			return core.ReservedTagError("register handler pack", tag)
		}
		if handler == nil {
			return fmt.Errorf("peerlink: handler pack %q has nil handler for %q", name, tag)
		}
		normalized.Handlers[tag] = handler
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlerPacks[name]; exists {
		return fmt.Errorf("peerlink: handler pack %q already registered", name)
	}
	h.handlerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("peerlink: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("peerlink: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("peerlink: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("peerlink: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyTransportPacks registers every pack factory, in pack name order.
func (h *ExtensionHooks) ApplyTransportPacks(registry *transport.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("peerlink: transport registry is required")
	}
	for _, pack := range h.TransportPacks() {
		kinds := make([]string, 0, len(pack.Factories))
		for kind := range pack.Factories {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			if err := registry.RegisterFactory(kind, pack.Factories[kind]); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyHandlerPacks subscribes every pack handler. A tag present in several
// packs ends up bound to the handler from the last pack by name.
func (h *ExtensionHooks) ApplyHandlerPacks(subscriber TagSubscriber) error {
	if h == nil {
		return nil
	}
	if subscriber == nil {
		return fmt.Errorf("peerlink: tag subscriber is required")
	}
	for _, pack := range h.HandlerPacks() {
		tags := make([]string, 0, len(pack.Handlers))
		for tag := range pack.Handlers {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			if err := subscriber.Subscribe(tag, pack.Handlers[tag]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("peerlink: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) TransportPacks() []TransportPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.transportPacks))
	for name := range h.transportPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]TransportPack, 0, len(names))
	for _, name := range names {
		pack := h.transportPacks[name]
		factories := make(map[string]transport.AdapterFactory, len(pack.Factories))
		for kind, factory := range pack.Factories {
			factories[kind] = factory
		}
		out = append(out, TransportPack{Name: pack.Name, Factories: factories})
	}
	return out
}

func (h *ExtensionHooks) HandlerPacks() []HandlerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.handlerPacks))
	for name := range h.handlerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]HandlerPack, 0, len(names))
	for _, name := range names {
		pack := h.handlerPacks[name]
		handlers := make(map[string]core.MessageHandler, len(pack.Handlers))
		for tag, handler := range pack.Handlers {
			handlers[tag] = handler
		}
		out = append(out, HandlerPack{Name: pack.Name, Handlers: handlers})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
