package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	TagUpdate = "update"
	TagRemove = "remove"
)

func IsReservedTag(tag string) bool {
	return tag == TagUpdate || tag == TagRemove
}

// SubscriptionRegistry maps message tags to handlers. The reserved tags are
// bound once at construction and can never be replaced or removed.
type SubscriptionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]MessageHandler
}

func NewSubscriptionRegistry(sink EntitySink) *SubscriptionRegistry {
	if sink == nil {
		sink = NopEntitySink{}
	}
	return &SubscriptionRegistry{
		handlers: map[string]MessageHandler{
			TagUpdate: func(from PeerID, _ string, payload []byte) {
				sink.ApplyRemoteUpdate(from, payload)
			},
			TagRemove: func(from PeerID, _ string, payload []byte) {
				sink.RemoveRemoteEntity(from, payload)
			},
		},
	}
}

func (r *SubscriptionRegistry) Subscribe(tag string, handler MessageHandler) error {
	if r == nil {
		return notConfiguredError("core: subscription registry is nil")
	}
	if IsReservedTag(tag) {
		return ReservedTagError("subscribe", tag)
	}
	if strings.TrimSpace(tag) == "" {
		return badInputError("core: message tag is required")
	}
	if handler == nil {
		return badInputError("core: message handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[tag] = handler
	return nil
}

func (r *SubscriptionRegistry) Unsubscribe(tag string) error {
	if r == nil {
		return notConfiguredError("core: subscription registry is nil")
	}
	if IsReservedTag(tag) {
		return ReservedTagError("unsubscribe", tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, tag)
	return nil
}

func (r *SubscriptionRegistry) Handler(tag string) (MessageHandler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[tag]
	return handler, ok
}

// Dispatch invokes the handler bound to tag exactly once, on the calling
// goroutine. A handler panic is recovered and returned as an operation error.
func (r *SubscriptionRegistry) Dispatch(from PeerID, tag string, payload []byte) (err error) {
	handler, ok := r.Handler(tag)
	if !ok {
		return UnknownTagError(from, tag)
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = operationError(
				fmt.Errorf("%v", recovered),
				fmt.Sprintf("core: handler for tag %q panicked", tag),
			)
		}
	}()
	handler(from, tag, payload)
	return nil
}

// Tags lists registered tags, reserved ones included, in sorted order.
func (r *SubscriptionRegistry) Tags() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for tag := range r.handlers {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

type NopEntitySink struct{}

func (NopEntitySink) ApplyRemoteUpdate(PeerID, []byte) {}

func (NopEntitySink) RemoveRemoteEntity(PeerID, []byte) {}

func (NopEntitySink) RequestFullSync() {}

func (NopEntitySink) RemoveEntitiesFromPeer(PeerID) {}
