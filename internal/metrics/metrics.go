package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_outbox_published_total",
		Help: "Outbox rows successfully published to the bus.",
	}, []string{"shard"})

	OutboxPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed and were scheduled for retry.",
	}, []string{"shard"})

	OutboxBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stockflow_outbox_batch_size",
		Help: "Rows claimed in the most recent poll cycle.",
	}, []string{"shard"})

	CommandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_commands_executed_total",
		Help: "Commands executed, by type and outcome.",
	}, []string{"type", "outcome"})

	IdempotentShortCircuits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_idempotent_short_circuits_total",
		Help: "Commands skipped because their correlation id was already in the ledger.",
	}, []string{"type"})

	RetriesScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_retries_scheduled_total",
		Help: "Durable delayed retries handed to the scheduler.",
	}, []string{"type"})

	TerminalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_terminal_failures_total",
		Help: "Commands abandoned after exhausting retries or failing a domain rule.",
	}, []string{"type"})
)
