package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "events_pipeline",
		Name:      "items_processed_total",
		Help:      "Items processed per pipeline stage.",
	}, []string{"bot"})

	ItemErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "events_pipeline",
		Name:      "item_errors_total",
		Help:      "Per-item soft failures per pipeline stage.",
	}, []string{"bot", "kind"})

	DedupDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "events_pipeline",
		Name:      "dedup_decisions_total",
		Help:      "Dedup decisions by outcome.",
	}, []string{"decision"})

	AIEscalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "events_pipeline",
		Name:      "ai_escalations_total",
		Help:      "AI pairwise escalations by result.",
	}, []string{"result"})
)
