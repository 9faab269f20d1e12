package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 桥接全局计数器 direction 取值 qq_to_tg / tg_to_qq
var (
	MessagesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qtbridge",
		Name:      "messages_forwarded_total",
		Help:      "Messages successfully forwarded per direction.",
	}, []string{"direction"})

	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qtbridge",
		Name:      "messages_dropped_total",
		Help:      "Messages dropped by a pipeline gate, labelled by stage.",
	}, []string{"direction", "stage"})

	MediaFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qtbridge",
		Name:      "media_fallbacks_total",
		Help:      "Media conversions that fell back to a degraded form.",
	}, []string{"kind"})

	QueueOverflow = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qtbridge",
		Name:      "queue_overflow_total",
		Help:      "Items rejected by a full batch queue.",
	})

	RecallsPropagated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qtbridge",
		Name:      "recalls_propagated_total",
		Help:      "Recalls propagated to the opposite platform.",
	}, []string{"direction"})
)
