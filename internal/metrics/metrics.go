// Package metrics defines the Prometheus instruments exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command dispatch metrics
var (
	// CommandsTotal tracks dispatched commands by platform and command name
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total dispatched commands by platform and command",
		},
		[]string{"platform", "command"},
	)

	// CommandErrorsTotal tracks parse failures that produced a usage reply
	CommandErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_command_errors_total",
			Help: "Total command parse failures by platform",
		},
		[]string{"platform"},
	)

	// ScriptExecutionsTotal tracks sandboxed script runs by outcome
	ScriptExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_script_executions_total",
			Help: "Total script executions by outcome (ok/error/budget)",
		},
		[]string{"outcome"},
	)
)

// Antispam metrics
var (
	// SpamDetectedTotal tracks messages flagged as spam by platform
	SpamDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_spam_detected_total",
			Help: "Total messages flagged as spam by platform",
		},
		[]string{"platform"},
	)

	// SpamPenaltiesTotal tracks chatters that crossed the strike threshold
	SpamPenaltiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_spam_penalties_total",
			Help: "Total platform-level penalties applied to spamming chatters",
		},
		[]string{"platform"},
	)
)

// Bus and supervisor metrics
var (
	// BusEventsTotal tracks events published on the central bus by type
	BusEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_bus_events_total",
			Help: "Total central bus events by type",
		},
		[]string{"type"},
	)

	// BusLagTotal tracks lag signals observed by slow subscribers
	BusLagTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_bus_lag_total",
			Help: "Total lag signals delivered to slow bus subscribers",
		},
		[]string{"subscriber"},
	)

	// AdapterRestartsTotal tracks supervisor-driven adapter restarts
	AdapterRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_adapter_restarts_total",
			Help: "Total adapter restarts by adapter name",
		},
		[]string{"adapter"},
	)

	// ConfigReloadsTotal tracks config document applications by status
	ConfigReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_config_reloads_total",
			Help: "Total config document reloads by status (applied/rejected)",
		},
		[]string{"status"},
	)

	// NotificationsTotal tracks cross-platform notifications by outcome
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_notifications_total",
			Help: "Total cross-platform notifications by outcome (sent/suppressed/dropped)",
		},
		[]string{"outcome"},
	)
)

// HTTP entry point metrics
var (
	// HTTPRejectionsTotal tracks rejected HTTP callers by reason
	HTTPRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_http_rejections_total",
			Help: "Total rejected HTTP requests by reason (missing_key/wrong_key/ignored)",
		},
		[]string{"reason"},
	)
)
