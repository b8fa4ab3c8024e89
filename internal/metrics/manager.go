package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alcyxob/setpad/internal/autosave"
	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/syncstatus"
)

type Manager struct {
	// counters
	CounterRequests           *prometheus.CounterVec
	CounterHandleRequestPanic prometheus.Counter
	CounterAutoSaves          *prometheus.CounterVec

	// histograms
	HistRequestDuration *prometheus.HistogramVec

	namespace string
	subsystem string
	factory   promauto.Factory
	gatherer  prometheus.Gatherer
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("setpad", "test_server", reg, reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "route", "status"})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})
	counterAutoSaves := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "autosave",
		Help:      "The total number of background log saves",
	}, []string{"result"})

	histReqDuration := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			Name:      "request_duration_seconds",
			Help:      "Total duration of requests in seconds",
		},
		[]string{"route"},
	)

	return &Manager{
		CounterRequests:           counterRequests,
		CounterHandleRequestPanic: counterHandleRequestPanic,
		CounterAutoSaves:          counterAutoSaves,
		HistRequestDuration:       histReqDuration,
		namespace:                 namespace,
		subsystem:                 subsystem,
		factory:                   factory,
		gatherer:                  gatherer,
	}
}

// WatchSyncStatus exports the reporter's state as gauges read at scrape time.
func (m *Manager) WatchSyncStatus(reporter syncstatus.Reporter) {
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "remote_store_online",
		Help:      "1 when the last probe of the remote store succeeded",
	}, func() float64 {
		if reporter.Status().Online {
			return 1
		}
		return 0
	})
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_syncs",
		Help:      "Open logs with edits not yet written to the remote store",
	}, func() float64 {
		return float64(reporter.Status().PendingSyncs)
	})
}

// AutoSaveHooks counts auto-save outcomes, then calls the hooks already set
// on opts.
func (m *Manager) AutoSaveHooks(opts autosave.Options) autosave.Options {
	onSaved, onError := opts.OnSaved, opts.OnError
	opts.OnSaved = func(rec domain.LogRecord) {
		m.CounterAutoSaves.WithLabelValues("ok").Inc()
		if onSaved != nil {
			onSaved(rec)
		}
	}
	opts.OnError = func(err error) {
		m.CounterAutoSaves.WithLabelValues("error").Inc()
		if onError != nil {
			onError(err)
		}
	}
	return opts
}

func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
