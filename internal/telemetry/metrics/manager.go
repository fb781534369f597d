package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests           *prometheus.CounterVec
	CounterHandleRequestPanic prometheus.Counter
	CounterTemplatesLoaded    prometheus.Counter
	CounterTemplatesRejected  prometheus.Counter
	CounterCatalogReloads     *prometheus.CounterVec
	CounterMatches            *prometheus.CounterVec
	CounterSubstitutions      prometheus.Counter
	CounterSubstitutionWarns  *prometheus.CounterVec
	CounterPlansMaterialized  *prometheus.CounterVec

	// gauges
	GaugeCatalogTemplates prometheus.Gauge
	GaugeLifeSignal       prometheus.Gauge

	// histograms
	HistMaterializeDuration  prometheus.Histogram
	HistogramRequestDuration *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("fitplan", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("fitplan", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming ops requests",
	}, []string{"method", "status"})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})
	counterTemplatesLoaded := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "templates_loaded",
		Help:      "The total number of template documents accepted by catalog loads",
	})
	counterTemplatesRejected := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "templates_rejected",
		Help:      "The total number of template documents excluded by validation",
	})
	counterCatalogReloads := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "catalog_reloads",
		Help:      "The total number of catalog reloads",
	}, []string{"outcome"})
	counterMatches := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "template_matches",
		Help:      "The total number of template match attempts",
	}, []string{"type", "outcome"})
	counterSubstitutions := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "substitutions",
		Help:      "The total number of injury substitutions applied",
	})
	counterSubstitutionWarns := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "substitution_warnings",
		Help:      "The total number of substitution warnings",
	}, []string{"kind"})
	counterPlansMaterialized := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "plans_materialized",
		Help:      "The total number of plan materializations",
	}, []string{"outcome"})

	gaugeCatalogTemplates := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "catalog_templates",
		Help:      "Number of templates in the active catalog index",
	})
	gaugeLifeSignal := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "life_signal",
		Help:      "Shows whether the service is alive",
	})

	histMaterializeDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			Name:      "materialize_duration_seconds",
			Help:      "Duration of a single plan materialization transaction in seconds",
		},
	)

	histogramRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Histogram of response time for ops requests in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method"})

	return &Manager{
		CounterRequests:           counterRequests,
		CounterHandleRequestPanic: counterHandleRequestPanic,
		CounterTemplatesLoaded:    counterTemplatesLoaded,
		CounterTemplatesRejected:  counterTemplatesRejected,
		CounterCatalogReloads:     counterCatalogReloads,
		CounterMatches:            counterMatches,
		CounterSubstitutions:      counterSubstitutions,
		CounterSubstitutionWarns:  counterSubstitutionWarns,
		CounterPlansMaterialized:  counterPlansMaterialized,
		GaugeCatalogTemplates:     gaugeCatalogTemplates,
		GaugeLifeSignal:           gaugeLifeSignal,
		HistMaterializeDuration:   histMaterializeDuration,
		HistogramRequestDuration:  histogramRequestDuration,
	}
}
