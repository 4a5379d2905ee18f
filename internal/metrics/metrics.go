package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rightblock/internal/models"
	"rightblock/internal/queue"
)

var (
	// AttemptsTotal counts block attempts per mode and outcome
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rightblock_attempts_total",
			Help: "Total number of block attempts",
		},
		[]string{"mode", "outcome"},
	)

	// MarkersInjected counts checkboxes added next to posts
	MarkersInjected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rightblock_markers_injected_total",
			Help: "Total number of selection markers injected",
		},
	)

	// CooldownsTotal counts detected account restrictions
	CooldownsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rightblock_cooldowns_total",
			Help: "Total number of restrictions that started a cooldown",
		},
	)

	// ListSize tracks the length of each stored list
	ListSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rightblock_list_size",
			Help: "Number of usernames in each list",
		},
		[]string{"list"},
	)

	// CooldownUntil is the unix time the current cooldown ends, 0 when none
	CooldownUntil = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rightblock_cooldown_until_seconds",
			Help: "Unix time the current cooldown ends",
		},
	)
)

// Recorder feeds attempt outcomes into AttemptsTotal
type Recorder struct{}

// Outcome records one attempt
func (Recorder) Outcome(mode string, o models.Outcome) {
	AttemptsTotal.WithLabelValues(mode, string(o)).Inc()
	if o == models.OutcomeCooldown {
		CooldownsTotal.Inc()
	}
}

// ObserveState copies list sizes and the cooldown into the gauges
func ObserveState(ctx context.Context, st *queue.State) {
	ListSize.WithLabelValues("pending").Set(float64(len(st.Pending(ctx))))
	ListSize.WithLabelValues("queue").Set(float64(len(st.Queue(ctx))))
	ListSize.WithLabelValues("failed").Set(float64(len(st.Failed(ctx))))
	ListSize.WithLabelValues("history").Set(float64(len(st.History(ctx))))

	if until := st.CooldownUntil(ctx); st.InCooldown(ctx) {
		CooldownUntil.Set(float64(until.Unix()))
	} else {
		CooldownUntil.Set(0)
	}
}
