package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests            *prometheus.CounterVec
	CounterSessionsEvaluated   prometheus.Counter
	CounterRecordsCreated      prometheus.Counter
	CounterRecordsEvicted      prometheus.Counter
	CounterEvaluationFailures  prometheus.Counter
	CounterRebuilds            prometheus.Counter
	CounterSessionsBackedUp    prometheus.Counter
	CounterHandleRequestPanic  prometheus.Counter
	CounterRateLimitedRequests prometheus.Counter

	// gauges
	GaugeRequests   prometheus.Gauge
	GaugeLifeSignal prometheus.Gauge

	// histograms
	HistRebuildDuration        prometheus.Histogram
	HistSessionsBackupDuration prometheus.Histogram
	HistRequestDuration        *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("liftlog", "test_server", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("liftlog", "test_server", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterSessionsEvaluated := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sessions_evaluated",
		Help:      "The total number of completed sessions run through evaluation",
	})
	counterRecordsCreated := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "records_created",
		Help:      "The total number of personal records created",
	})
	counterRecordsEvicted := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "records_evicted",
		Help:      "The total number of records pushed off a podium",
	})
	counterEvaluationFailures := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "evaluation_failures",
		Help:      "The total number of session evaluations that could not be stored",
	})
	counterRebuilds := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rebuilds",
		Help:      "The total number of full record rebuilds",
	})
	counterSessionsBackedUp := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sessions_backed_up",
		Help:      "Number of sessions backed up",
	})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})
	counterRateLimitedRequests := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rate_limited_requests",
		Help:      "The total number of rate limited requests",
	})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})
	gaugeLifeSignal := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "life_signal",
		Help:      "Shows whether the service is alive",
	})

	histRebuildDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets: []float64{
				0.001, 0.01, 0.1, 1, 10,
				60, 120, 240, 480, 1000, 2000,
			},
			Name: "rebuild_duration_seconds",
			Help: "Total duration of a single records rebuild in seconds",
		},
	)

	histSessionsBackupDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets: []float64{
				0.001, 0.01, 0.1, 1, 10,
				60, 120, 240, 480, 1000, 2000,
			},
			Name: "sessions_backup_duration_seconds",
			Help: "Total duration of a single sessions backup in seconds",
		},
	)

	histRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Histogram of response time for requests in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method", "status"})

	return &Manager{
		CounterRequests:            counterRequests,
		CounterSessionsEvaluated:   counterSessionsEvaluated,
		CounterRecordsCreated:      counterRecordsCreated,
		CounterRecordsEvicted:      counterRecordsEvicted,
		CounterEvaluationFailures:  counterEvaluationFailures,
		CounterRebuilds:            counterRebuilds,
		CounterSessionsBackedUp:    counterSessionsBackedUp,
		CounterHandleRequestPanic:  counterHandleRequestPanic,
		CounterRateLimitedRequests: counterRateLimitedRequests,
		GaugeRequests:              gaugeRequests,
		GaugeLifeSignal:            gaugeLifeSignal,
		HistRebuildDuration:        histRebuildDuration,
		HistSessionsBackupDuration: histSessionsBackupDuration,
		HistRequestDuration:        histRequestDuration,
	}
}
