package orchestrator

import (
	"time"

	"github.com/ShayCichocki/gala/internal/conversation"
	"github.com/ShayCichocki/gala/internal/files"
)

// DefaultMaxRounds bounds the model rounds spent on a task per selection.
const DefaultMaxRounds = 20

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	dispatcher  Dispatcher
	files       files.Writer
	observer    Observer
	metrics     *Metrics
	weights     Weights
	maxRounds   int
	callTimeout time.Duration
	cache       *conversation.Cache
	cacheSize   int
	now         func() time.Time
}

func defaultOptions() orchestratorOptions {
	return orchestratorOptions{
		observer:  NopObserver{},
		weights:   DefaultWeights(),
		maxRounds: DefaultMaxRounds,
		cacheSize: conversation.DefaultCacheSize,
		now:       time.Now,
	}
}

// WithDispatcher sets the connector dispatcher for non-built-in tools.
// Without one only the built-ins are offered to the model.
func WithDispatcher(d Dispatcher) Option {
	return func(o *orchestratorOptions) { o.dispatcher = d }
}

// WithFiles sets the writer behind write_event_file.
func WithFiles(w files.Writer) Option {
	return func(o *orchestratorOptions) { o.files = w }
}

// WithObserver sets the observer. Use MultiObserver for several.
func WithObserver(obs Observer) Option {
	return func(o *orchestratorOptions) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(o *orchestratorOptions) { o.metrics = m }
}

// WithWeights sets the selector scoring constants.
func WithWeights(w Weights) Option {
	return func(o *orchestratorOptions) { o.weights = w }
}

// WithMaxRounds sets the per-task round bound.
func WithMaxRounds(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithCallTimeout bounds each model call independently of cancellation.
func WithCallTimeout(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.callTimeout = d }
}

// WithHistoryCache shares a history cache, e.g. across a Manager.
func WithHistoryCache(c *conversation.Cache) Option {
	return func(o *orchestratorOptions) { o.cache = c }
}

// WithHistoryCacheSize sets the size of a private history cache.
func WithHistoryCacheSize(n int) Option {
	return func(o *orchestratorOptions) { o.cacheSize = n }
}

// WithClock overrides the time source (mainly for testing).
func WithClock(now func() time.Time) Option {
	return func(o *orchestratorOptions) {
		if now != nil {
			o.now = now
		}
	}
}
