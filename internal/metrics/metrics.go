package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	syncRunsTotal       *prometheus.CounterVec
	syncRunDuration     prometheus.Histogram
	skippedDevices      prometheus.Counter
	mapDevices          prometheus.Gauge
	mapLinks            prometheus.Gauge
}

// New creates a fresh Metrics registry with HTTP and sync metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapsync",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by the admin API",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapsync",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the admin API",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	syncRunsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapsync",
		Name:      "sync_runs_total",
		Help:      "Total number of map synchronization runs by mode and outcome",
	}, []string{"mode", "status"})

	syncRunDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mapsync",
		Name:      "sync_run_duration_seconds",
		Help:      "Duration of map synchronization runs from start to finish",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	skippedDevices := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapsync",
		Name:      "skipped_devices_total",
		Help:      "Devices left off the map because the registry does not know them",
	})

	mapDevices := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Name:      "map_devices",
		Help:      "Devices on the map after the last successful run",
	})

	mapLinks := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Name:      "map_links",
		Help:      "Links on the map after the last successful run",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		syncRunsTotal,
		syncRunDuration,
		skippedDevices,
		mapDevices,
		mapLinks,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		syncRunsTotal:       syncRunsTotal,
		syncRunDuration:     syncRunDuration,
		skippedDevices:      skippedDevices,
		mapDevices:          mapDevices,
		mapLinks:            mapLinks,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncSyncRun counts a finished run. mode is create, update or preview.
func (m *Metrics) IncSyncRun(mode, status string) {
	if m == nil {
		return
	}
	m.syncRunsTotal.With(prometheus.Labels{"mode": mode, "status": status}).Inc()
}

func (m *Metrics) ObserveSyncRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.syncRunDuration.Observe(duration.Seconds())
}

func (m *Metrics) AddSkippedDevices(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skippedDevices.Add(float64(n))
}

// SetMapSize records the size of the last pushed map.
func (m *Metrics) SetMapSize(devices, links int) {
	if m == nil {
		return
	}
	m.mapDevices.Set(float64(devices))
	m.mapLinks.Set(float64(links))
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
