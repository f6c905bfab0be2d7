package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/ShayCichocki/gala/internal/errors"
)

// Metrics exposes Prometheus collectors that report orchestrator activity.
type Metrics struct {
	modelCalls    *prometheus.CounterVec
	modelDuration prometheus.Histogram
	tokens        *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	taskOutcomes  *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	runsActive    prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the metrics registered with the global Prometheus
// registry. The collectors are created once so several orchestrators in one
// process share them.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs Metrics on reg. Collectors that are already
// registered are reused; any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gala",
			Subsystem: "orchestrator",
			Name:      "model_calls_total",
			Help:      "Model gateway calls by result (ok, transient, permanent).",
		}, []string{"result"}),
		modelDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gala",
			Subsystem: "orchestrator",
			Name:      "model_call_duration_seconds",
			Help:      "Latency of model gateway calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gala",
			Subsystem: "orchestrator",
			Name:      "tokens_total",
			Help:      "Tokens consumed by model calls.",
		}, []string{"direction"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gala",
			Subsystem: "orchestrator",
			Name:      "tool_calls_total",
			Help:      "Tool calls executed, by tool and outcome.",
		}, []string{"tool", "status"}),
		taskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gala",
			Subsystem: "orchestrator",
			Name:      "task_steps_total",
			Help:      "Task executor invocations by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gala",
			Subsystem: "orchestrator",
			Name:      "state_transitions_total",
			Help:      "Orchestrator state transitions by target state.",
		}, []string{"state"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gala",
			Subsystem: "orchestrator",
			Name:      "runs_active",
			Help:      "Task loops currently executing.",
		}),
	}

	m.modelCalls = register(reg, m.modelCalls)
	m.modelDuration = register(reg, m.modelDuration)
	m.tokens = register(reg, m.tokens)
	m.toolCalls = register(reg, m.toolCalls)
	m.taskOutcomes = register(reg, m.taskOutcomes)
	m.transitions = register(reg, m.transitions)
	m.runsActive = register(reg, m.runsActive)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveModelCall records one gateway call.
func (m *Metrics) ObserveModelCall(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(apperrors.Label(err)).Inc()
	m.modelDuration.Observe(d.Seconds())
}

// AddTokens records token usage.
func (m *Metrics) AddTokens(input, output int64) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues("input").Add(float64(input))
	m.tokens.WithLabelValues("output").Add(float64(output))
}

// IncToolCall records one executed tool call.
func (m *Metrics) IncToolCall(tool string, ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

// IncTaskOutcome records one executor invocation.
func (m *Metrics) IncTaskOutcome(o Outcome) {
	if m == nil {
		return
	}
	m.taskOutcomes.WithLabelValues(string(o)).Inc()
}

// IncTransition records a state transition.
func (m *Metrics) IncTransition(s State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(s)).Inc()
}

// RunStarted increments the active loop gauge.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
}

// RunFinished decrements the active loop gauge.
func (m *Metrics) RunFinished() {
	if m == nil {
		return
	}
	m.runsActive.Dec()
}
