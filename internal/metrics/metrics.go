// Package metrics provides Prometheus metrics for the syncer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flysto_sync_cycles_total",
			Help: "Total number of sync cycles started",
		},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flysto_sync_cycle_duration_seconds",
			Help:    "Full sync cycle duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	cycleErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flysto_sync_cycle_errors_total",
			Help: "Total phase errors by error code",
		},
		[]string{"code"},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flysto_sync_downloads_total",
			Help: "Total log file downloads from the FlashAir card",
		},
		[]string{"status"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flysto_sync_uploads_total",
			Help: "Total log file uploads to the archive service",
		},
		[]string{"status"},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flysto_sync_bytes_downloaded_total",
			Help: "Total bytes downloaded from the FlashAir card",
		},
	)

	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flysto_sync_bytes_uploaded_total",
			Help: "Total bytes uploaded to the archive service",
		},
	)

	wifiConnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flysto_sync_wifi_connects_total",
			Help: "Total Wi-Fi association attempts",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCycle records a completed sync cycle.
func RecordCycle(duration time.Duration) {
	cyclesTotal.Inc()
	cycleDuration.Observe(duration.Seconds())
}

// RecordCycleError records a phase error by code.
func RecordCycleError(code string) {
	cycleErrorsTotal.WithLabelValues(code).Inc()
}

// RecordDownload records a log download attempt.
func RecordDownload(bytes int64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	downloadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		bytesDownloaded.Add(float64(bytes))
	}
}

// RecordUpload records a log upload attempt.
func RecordUpload(bytes int64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	uploadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		bytesUploaded.Add(float64(bytes))
	}
}

// RecordWifiConnect records a Wi-Fi association attempt.
func RecordWifiConnect(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	wifiConnectsTotal.WithLabelValues(result).Inc()
}
