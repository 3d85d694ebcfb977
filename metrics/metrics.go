// Package metrics registers the Prometheus counters and gauges zenfs
// exposes via the rc server's /metrics endpoint, in the naming style
// rclone's fs/rc/rcserver uses for its own counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// OpsTotal counts every fs.FileSystem operation attempted, labeled by
	// operation name and mount prefix.
	OpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zenfs_fs_ops_total",
		Help: "Total filesystem operations attempted, by op and mount.",
	}, []string{"op", "mount"})

	// ErrorsTotal counts failed operations, labeled by operation name and
	// the errno they failed with.
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zenfs_fs_errors_total",
		Help: "Total filesystem operation failures, by op and errno.",
	}, []string{"op", "errno"})

	// BridgeQueueDepth reports the number of pending async write-back
	// operations for a bridge mount.
	BridgeQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zenfs_bridge_queue_depth",
		Help: "Pending async write-back operations queued by a bridge mount.",
	}, []string{"mount"})

	// OverlayDeletedTotal reports the number of names recorded in an
	// overlay's deletion log.
	OverlayDeletedTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zenfs_overlay_deleted_total",
		Help: "Names currently recorded in an overlay's deletion log.",
	}, []string{"mount"})
)

func init() {
	prometheus.MustRegister(OpsTotal, ErrorsTotal, BridgeQueueDepth, OverlayDeletedTotal)
}

// Observe records the outcome of a single filesystem operation against the
// given mount prefix. errno is the empty string on success.
func Observe(op, mountPrefix, errno string) {
	OpsTotal.WithLabelValues(op, mountPrefix).Inc()
	if errno != "" {
		ErrorsTotal.WithLabelValues(op, errno).Inc()
	}
}
