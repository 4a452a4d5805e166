// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuestionsAnswered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybot_questions_total",
			Help: "Questions answered, by terminal outcome",
		},
		[]string{"outcome"},
	)

	QuestionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querybot_question_duration_seconds",
			Help:    "End to end duration of Ask by terminal outcome",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	FallbacksFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybot_fallbacks_total",
			Help: "Internal fallbacks by error code",
		},
		[]string{"error_code"},
	)

	ReportExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybot_report_executions_total",
			Help: "Deterministic report executions",
		},
		[]string{"report_id", "status"},
	)

	SQLStatementsCaptured = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "querybot_reasoning_sql_statements_total",
			Help: "SQL statements issued by the reasoning engine",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "querybot_sessions_active",
			Help: "Sessions currently held in the store",
		},
	)
)
