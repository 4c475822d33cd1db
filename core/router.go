package core

import (
	"context"
	"strings"
)

// MessageRouter gates outbound sends on channel state and dispatches inbound
// messages through the subscription registry.
type MessageRouter struct {
	adapter       Adapter
	channels      *ChannelStateTracker
	subscriptions *SubscriptionRegistry
	logger        Logger
	metrics       MetricsRecorder
}

func NewMessageRouter(
	adapter Adapter,
	channels *ChannelStateTracker,
	subscriptions *SubscriptionRegistry,
	logger Logger,
	metrics MetricsRecorder,
) *MessageRouter {
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return &MessageRouter{
		adapter:       adapter,
		channels:      channels,
		subscriptions: subscriptions,
		logger:        logger,
		metrics:       metrics,
	}
}

// Send hands the payload to the adapter only when the channel to the peer is
// active. Otherwise the message is dropped and nil is returned.
func (r *MessageRouter) Send(ctx context.Context, to PeerID, tag string, payload []byte, guaranteed bool) error {
	if r == nil || r.adapter == nil {
		return notConfiguredError("core: message router adapter is required")
	}
	if strings.TrimSpace(string(to)) == "" {
		return badInputError("core: recipient peer id is required")
	}
	if !r.channels.IsActive(to) {
		r.metrics.IncCounter(ctx, metricSendSuppressed, 1, map[string]string{
			"tag":  tag,
			"mode": deliveryMode(guaranteed),
		})
		if r.logger != nil {
			r.logger.Debug("send suppressed, channel not active", "peer_id", string(to), "tag", tag)
		}
		return nil
	}
	if guaranteed {
		return r.adapter.SendGuaranteed(to, tag, payload)
	}
	return r.adapter.Send(to, tag, payload)
}

func (r *MessageRouter) Broadcast(_ context.Context, tag string, payload []byte, guaranteed bool) error {
	if r == nil || r.adapter == nil {
		return notConfiguredError("core: message router adapter is required")
	}
	if guaranteed {
		return r.adapter.BroadcastGuaranteed(tag, payload)
	}
	return r.adapter.Broadcast(tag, payload)
}

// Receive dispatches an inbound message. Failures are logged, counted and
// returned; the message itself is dropped.
func (r *MessageRouter) Receive(ctx context.Context, from PeerID, tag string, payload []byte) error {
	if r == nil {
		return nil
	}
	err := r.subscriptions.Dispatch(from, tag, payload)
	if err == nil {
		return nil
	}
	metric := metricHandlerFailure
	if IsUnknownTagError(err) {
		metric = metricUnknownTag
	}
	r.metrics.IncCounter(ctx, metric, 1, map[string]string{"tag": tag})
	if r.logger != nil {
		r.logger.Error("inbound message dropped", "peer_id", string(from), "tag", tag, "error", err.Error())
	}
	return err
}

func deliveryMode(guaranteed bool) string {
	if guaranteed {
		return "guaranteed"
	}
	return "best_effort"
}
