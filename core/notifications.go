package core

import (
	"context"
	"fmt"
	"sync"
)

// NotificationHub fans session events out to registered listeners in
// registration order, on the goroutine that produced the event.
type NotificationHub struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewNotificationHub(listeners ...Listener) *NotificationHub {
	hub := &NotificationHub{listeners: make([]Listener, 0, len(listeners))}
	for _, listener := range listeners {
		hub.Register(listener)
	}
	return hub
}

func (h *NotificationHub) Register(listener Listener) {
	if h == nil || listener == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, listener)
}

func (h *NotificationHub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Publish delivers event to every listener. A panicking listener does not
// prevent delivery to the rest; the recovered failures are returned.
func (h *NotificationHub) Publish(ctx context.Context, event Event) []error {
	var failures []error
	for index, listener := range h.snapshot() {
		if err := deliver(ctx, listener, event); err != nil {
			failures = append(failures, fmt.Errorf("core: listener %d failed on %s: %w", index, event.Type, err))
		}
	}
	return failures
}

func deliver(ctx context.Context, listener Listener, event Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	listener.OnEvent(ctx, event)
	return nil
}

func (h *NotificationHub) snapshot() []Listener {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Listener, len(h.listeners))
	copy(out, h.listeners)
	return out
}
