package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessflow_pipelines_total",
			Help: "Report pipelines finished, by terminal status",
		},
		[]string{"status"},
	)

	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assessflow_phase_duration_seconds",
			Help:    "Wall time per pipeline phase",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)

	ModelAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessflow_model_attempts_total",
			Help: "Model invocation attempts, by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	TokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessflow_llm_tokens_used",
			Help: "Total LLM tokens consumed",
		},
		[]string{"model", "type"},
	)

	CostMicroUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessflow_llm_cost_micro_usd",
			Help: "Metered LLM spend in micro-USD",
		},
		[]string{"model"},
	)

	ActiveReports = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "assessflow_reports_active",
			Help: "Reports currently running",
		},
	)
)

func Init() {
	prometheus.MustRegister(PipelinesTotal)
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(ModelAttemptsTotal)
	prometheus.MustRegister(TokensUsed)
	prometheus.MustRegister(CostMicroUSD)
	prometheus.MustRegister(ActiveReports)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
