package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// llmAttempts counts calls to the model transport.
	// Labels: result (success, error)
	llmAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uipilot",
		Subsystem: "llm",
		Name:      "attempts_total",
		Help:      "Total LLM call attempts by result",
	}, []string{"result"})

	llmLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "uipilot",
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "LLM call latency in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	})

	// toolExecutions counts executed primitive tools.
	// Labels: tool, result (success, error, denied)
	toolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uipilot",
		Subsystem: "tools",
		Name:      "executions_total",
		Help:      "Total primitive tool executions by tool and result",
	}, []string{"tool", "result"})

	// objectiveOutcomes counts finished objectives.
	// Labels: kind (direction, verification), outcome
	objectiveOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uipilot",
		Subsystem: "agent",
		Name:      "objective_outcomes_total",
		Help:      "Total finished objectives by kind and outcome",
	}, []string{"kind", "outcome"})

	objectiveSteps = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "uipilot",
		Subsystem: "agent",
		Name:      "objective_steps",
		Help:      "Number of loop steps an objective took",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
	}, []string{"kind"})
)

func RecordLLMAttempt(err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	llmAttempts.WithLabelValues(result).Inc()
	llmLatency.Observe(elapsed.Seconds())
}

func RecordToolExecution(tool, result string) {
	toolExecutions.WithLabelValues(tool, result).Inc()
}

func RecordObjective(kind, outcome string, steps int) {
	objectiveOutcomes.WithLabelValues(kind, outcome).Inc()
	objectiveSteps.WithLabelValues(kind).Observe(float64(steps))
}
