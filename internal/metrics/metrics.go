// Package metrics records process metrics with VictoriaMetrics/metrics.
// Labels are encoded in the metric name, the way the library expects.
package metrics

import (
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

const prefix = "wirdbot_"

// MessageHandled counts inbound messages by outcome ("ok", "error", "panic", "timeout").
func MessageHandled(outcome string, took time.Duration) {
	metrics.GetOrCreateCounter(prefix + `messages_total{outcome="` + outcome + `"}`).Inc()
	metrics.GetOrCreateHistogram(prefix + `message_duration_seconds`).Update(took.Seconds())
}

// Transition counts state machine transitions into state.
func Transition(state string) {
	metrics.GetOrCreateCounter(prefix + `transitions_total{state="` + state + `"}`).Inc()
}

// Delivery records one scheduled run.
func Delivery(kind, outcome string, pages int, took time.Duration) {
	metrics.GetOrCreateCounter(prefix + `deliveries_total{kind="` + kind + `",outcome="` + outcome + `"}`).Inc()
	if pages > 0 {
		metrics.GetOrCreateCounter(prefix + `pages_sent_total{kind="` + kind + `"}`).Add(pages)
	}
	metrics.GetOrCreateHistogram(prefix + `delivery_duration_seconds`).Update(took.Seconds())
}

// Reload records a trigger rebuild and the resulting trigger count.
func Reload(ok bool, triggers int) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	metrics.GetOrCreateCounter(prefix + `reloads_total{outcome="` + outcome + `"}`).Inc()
	if ok {
		metrics.GetOrCreateGauge(prefix+`triggers_registered`, nil).Set(float64(triggers))
	}
}

// Send counts outbound transport calls.
func Send(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.GetOrCreateCounter(prefix + `sends_total{kind="` + kind + `",outcome="` + outcome + `"}`).Inc()
}

// SessionStats is read lazily on every scrape.
type SessionStats func() (sessions, withState, processing, queued int)

// RegisterSessions exposes session gauges. Safe to call more than once;
// the first registered source wins.
func RegisterSessions(f SessionStats) {
	if f == nil {
		return
	}
	metrics.GetOrCreateGauge(prefix+`sessions`, func() float64 { s, _, _, _ := f(); return float64(s) })
	metrics.GetOrCreateGauge(prefix+`sessions_with_state`, func() float64 { _, s, _, _ := f(); return float64(s) })
	metrics.GetOrCreateGauge(prefix+`sessions_processing`, func() float64 { _, _, p, _ := f(); return float64(p) })
	metrics.GetOrCreateGauge(prefix+`sessions_queued_messages`, func() float64 { _, _, _, q := f(); return float64(q) })
}

// Write emits every metric in Prometheus text format, process metrics included.
func Write(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
