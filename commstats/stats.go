// Package commstats exports Prometheus metrics for a comm.Communicator:
// connected endpoints, pending query-channel announcements, and bytes
// sent/received per rank. The wiring pattern — a dedicated stats package
// registering Prometheus collectors in front of a socket-level transport —
// is grounded in the retrieval pack's go-tcpinfo style metrics exporter,
// which reads raw per-socket counters and republishes them as gauges.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package commstats

import (
	"net/http"
	"strconv"

	"github.com/coupling-rt/commsock/cmn/cos"
	"github.com/coupling-rt/commsock/cmn/nlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracker wraps a dedicated Prometheus registry (not the global default
// registry, so embedding this module doesn't collide with a host
// application's own metrics) for one Communicator.
type Tracker struct {
	RunID string

	registry *prometheus.Registry

	endpointsConnected prometheus.Gauge
	pendingQueries     prometheus.Gauge
	bytesSent          *prometheus.CounterVec
	bytesRecv          *prometheus.CounterVec
	handshakeSeconds   prometheus.Histogram
}

func NewTracker(role, acceptorName, requesterName string) *Tracker {
	runID := cos.GenRunID()
	reg := prometheus.NewRegistry()

	labels := prometheus.Labels{
		"role":      role,
		"acceptor":  acceptorName,
		"requester": requesterName,
		"run_id":    runID,
	}
	factory := prometheus.WrapRegistererWith(labels, reg)

	t := &Tracker{
		RunID:    runID,
		registry: reg,
		endpointsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coupling",
			Subsystem: "comm",
			Name:      "endpoints_connected",
			Help:      "Number of remote-rank endpoints currently connected.",
		}),
		pendingQueries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coupling",
			Subsystem: "comm",
			Name:      "pending_queries",
			Help:      "Number of unconsumed sender-intent announcements on the query channel.",
		}),
		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coupling",
			Subsystem: "comm",
			Name:      "bytes_sent_total",
			Help:      "Bytes written by user-level sends, by remote rank (includes any query announcement prefix and frame checksum).",
		}, []string{"rank"}),
		bytesRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coupling",
			Subsystem: "comm",
			Name:      "bytes_received_total",
			Help:      "Bytes read by user-level receives, by remote rank (includes any frame checksum; query announcements are not counted).",
		}, []string{"rank"}),
		handshakeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coupling",
			Subsystem: "comm",
			Name:      "handshake_seconds",
			Help:      "Wall-clock time spent in AcceptConnection/RequestConnection.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	factory.MustRegister(t.endpointsConnected, t.pendingQueries, t.bytesSent, t.bytesRecv, t.handshakeSeconds)
	return t
}

func (t *Tracker) SetEndpointsConnected(n int) { t.endpointsConnected.Set(float64(n)) }
func (t *Tracker) SetPendingQueries(n int)     { t.pendingQueries.Set(float64(n)) }

func (t *Tracker) AddBytesSent(rank int, n int64) {
	t.bytesSent.WithLabelValues(rankLabel(rank)).Add(float64(n))
}

func (t *Tracker) AddBytesRecv(rank int, n int64) {
	t.bytesRecv.WithLabelValues(rankLabel(rank)).Add(float64(n))
}

func (t *Tracker) ObserveHandshakeSeconds(s float64) { t.handshakeSeconds.Observe(s) }

// Serve starts an HTTP server exposing this tracker's registry at /metrics
// and blocks until it exits (intended to run in its own goroutine).
func (t *Tracker) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))
	nlog.Infof("commstats: serving metrics on %s/metrics (run_id=%s)", addr, t.RunID)
	return http.ListenAndServe(addr, mux)
}

func rankLabel(rank int) string {
	if rank < 0 {
		return "any"
	}
	return strconv.Itoa(rank)
}
