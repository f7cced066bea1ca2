// Package metrics exposes the bot's Prometheus collectors. Collectors are
// package-level and registered on the default registry, served by the admin
// HTTP server under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_commands_total",
		Help: "Commands received, by command name and outcome.",
	}, []string{"command", "outcome"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bot_command_duration_seconds",
		Help:    "Command handling duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_registrations_total",
		Help: "Registration flows finished, by final state.",
	}, []string{"state"})

	ModerationActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_moderation_actions_total",
		Help: "Moderation actions committed, by action.",
	}, []string{"action"})

	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_captures_total",
		Help: "Capture queue transitions, by resulting status.",
	}, []string{"status"})

	GeocodeLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_geocode_lookups_total",
		Help: "Geocode lookups, by result (hit, miss, not_found, error).",
	}, []string{"result"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_rate_limited_total",
		Help: "Commands rejected by the rate limiter.",
	})

	MapPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_map_publish_total",
		Help: "Member map publications, by outcome.",
	}, []string{"outcome"})
)
