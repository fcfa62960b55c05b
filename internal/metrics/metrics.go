// Package metrics provides Prometheus metrics for the Uniray asset core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pak archive metrics
	pakBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "uniray_pak_build_duration_seconds",
			Help:    "Time to build a pak archive",
			Buckets: prometheus.DefBuckets,
		},
	)

	pakBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniray_pak_builds_total",
			Help: "Total number of pak archive builds",
		},
		[]string{"status"},
	)

	pakEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uniray_pak_entries_total",
			Help: "Total number of entries packed into pak archives",
		},
	)

	pakBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniray_pak_bytes_total",
			Help: "Bytes packed into pak archives, before and after compression",
		},
		[]string{"stage"},
	)

	pakReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniray_pak_reads_total",
			Help: "Total number of pak entry reads",
		},
		[]string{"status"},
	)

	// Scene DAT metrics
	datOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uniray_dat_operation_duration_seconds",
			Help:    "Scene DAT encode/decode duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	datOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniray_dat_operations_total",
			Help: "Total number of scene DAT operations",
		},
		[]string{"operation", "status"},
	)

	// Storage tree metrics
	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniray_storage_operations_total",
			Help: "Total number of storage tree mutations",
		},
		[]string{"operation", "status"},
	)

	storageTreeSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "uniray_storage_tree_size",
			Help: "Number of units in each asset category tree",
		},
		[]string{"category"},
	)

	storageLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "uniray_storage_load_duration_seconds",
			Help:    "Time to load a category tree from disk",
			Buckets: prometheus.DefBuckets,
		},
	)

	watcherReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniray_watcher_reloads_total",
			Help: "Category reloads triggered by external filesystem changes",
		},
		[]string{"category"},
	)

	// Resource cache metrics
	resourceCacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "uniray_resource_cache_entries",
			Help: "Number of loaded assets in the resource cache",
		},
		[]string{"kind"},
	)

	resourceLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniray_resource_loads_total",
			Help: "Total number of asset loads into the resource cache",
		},
		[]string{"kind", "status"},
	)

	// Publish metrics
	publishOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uniray_publish_operation_duration_seconds",
			Help:    "Publish backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	publishOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniray_publish_operations_total",
			Help: "Total number of publish backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	publishBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uniray_publish_bytes_total",
			Help: "Total bytes uploaded to publish backends",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordPakBuild records a finished pak build.
func RecordPakBuild(duration time.Duration, entries int, originalBytes, compressedBytes int64, success bool) {
	pakBuildDuration.Observe(duration.Seconds())
	pakBuildsTotal.WithLabelValues(statusLabel(success)).Inc()
	if !success {
		return
	}
	pakEntriesTotal.Add(float64(entries))
	pakBytesTotal.WithLabelValues("original").Add(float64(originalBytes))
	pakBytesTotal.WithLabelValues("compressed").Add(float64(compressedBytes))
}

// RecordPakRead records a pak entry read ("success", "not_found" or "error").
func RecordPakRead(status string) {
	pakReadsTotal.WithLabelValues(status).Inc()
}

// RecordDatOperation records a scene DAT encode or decode.
func RecordDatOperation(operation string, duration time.Duration, success bool) {
	datOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	datOperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
}

// RecordStorageOperation records a storage tree mutation.
func RecordStorageOperation(operation string, success bool) {
	storageOperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
}

// SetStorageTreeSize sets the unit count of a category tree.
func SetStorageTreeSize(category string, size int) {
	storageTreeSize.WithLabelValues(category).Set(float64(size))
}

// RecordStorageLoad records the time to load a category tree.
func RecordStorageLoad(duration time.Duration) {
	storageLoadDuration.Observe(duration.Seconds())
}

// RecordWatcherReload records a reload triggered by the watcher.
func RecordWatcherReload(category string) {
	watcherReloadsTotal.WithLabelValues(category).Inc()
}

// SetResourceCacheEntries sets the number of cached assets of a kind.
func SetResourceCacheEntries(kind string, count int) {
	resourceCacheEntries.WithLabelValues(kind).Set(float64(count))
}

// RecordResourceLoad records an asset load into the cache.
func RecordResourceLoad(kind string, success bool) {
	resourceLoadsTotal.WithLabelValues(kind, statusLabel(success)).Inc()
}

// RecordPublishOperation records a publish backend operation.
func RecordPublishOperation(backend, operation string, duration time.Duration, bytes int64, success bool) {
	publishOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	publishOperationsTotal.WithLabelValues(backend, operation, statusLabel(success)).Inc()
	if success && bytes > 0 {
		publishBytesTotal.Add(float64(bytes))
	}
}
