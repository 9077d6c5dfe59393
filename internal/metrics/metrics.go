// Package metrics exposes Prometheus collectors for the coach bot.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesTotal     *prometheus.CounterVec
	llmRequestsTotal  *prometheus.CounterVec
	recordResetsTotal *prometheus.CounterVec
	remindersTotal    *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		messagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_messages_total",
				Help: "Messages evaluated by the progress engine, labeled by transition.",
			},
			[]string{"transition"},
		)

		llmRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_llm_requests_total",
				Help: "Chat completion requests, labeled by outcome.",
			},
			[]string{"status"},
		)

		recordResetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_record_resets_total",
				Help: "Progress records reinitialised to defaults, labeled by reason.",
			},
			[]string{"reason"},
		)

		remindersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_reminders_total",
				Help: "Reminder messages, labeled by outcome.",
			},
			[]string{"status"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

func ObserveTransition(transition string) {
	Init()
	messagesTotal.WithLabelValues(transition).Inc()
}

func ObserveLLMRequest(status string) {
	Init()
	llmRequestsTotal.WithLabelValues(status).Inc()
}

func ObserveRecordReset(reason string) {
	Init()
	recordResetsTotal.WithLabelValues(reason).Inc()
}

func ObserveReminder(status string) {
	Init()
	remindersTotal.WithLabelValues(status).Inc()
}
