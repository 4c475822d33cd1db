package core

import (
	"context"
	"strings"
)

const metricNamespace = "peerlink"

const (
	metricSendSuppressed = metricNamespace + ".send.suppressed"
	metricUnknownTag     = metricNamespace + ".receive.unknown_tag"
	metricHandlerFailure = metricNamespace + ".receive.handler_failure"
	metricConnectFailure = metricNamespace + ".connect_failure.total"
)

// operationMetric names the per-operation series, e.g. peerlink.send.total.
func operationMetric(operation string, suffix string) string {
	return metricNamespace + "." + strings.Trim(operation, ".") + "." + suffix
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
