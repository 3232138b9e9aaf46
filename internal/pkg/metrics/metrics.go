// Package metrics collects prometheus metrics about capture sessions and PDF assemblies.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/fredbi/docsnap/internal/pkg/capture"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docsnap"

// Session results.
const (
	ResultCompleted      = "completed"
	ResultNoPages        = "no_pages"
	ResultRenderNotReady = "render_not_ready"
	ResultTimeout        = "timeout"
	ResultCancelled      = "cancelled"
	ResultFailed         = "failed"
)

// Recorder holds the collectors of a run, registered on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	sessions        *prometheus.CounterVec
	sessionDuration prometheus.Histogram
	pages           *prometheus.CounterVec
	retries         prometheus.Counter
	encodeFailures  prometheus.Counter
	assemblies      *prometheus.CounterVec
	assembledPages  prometheus.Counter
}

// New builds a [Recorder].
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capture_sessions_total",
				Help:      "Total capture sessions by result",
			},
			[]string{"result"},
		),
		sessionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "capture_session_duration_seconds",
				Help:      "Duration of capture sessions",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		pages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_total",
				Help:      "Total visited pages by outcome (accepted, blank, duplicate, snapshot_failed)",
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_retries_total",
				Help:      "Total snapshot retries",
			},
		),
		encodeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fingerprint_encode_failures_total",
				Help:      "Total pages fingerprinted with the sentinel value after an encoding failure",
			},
		),
		assemblies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pdf_assemblies_total",
				Help:      "Total PDF assemblies by result (success, failed)",
			},
			[]string{"result"},
		),
		assembledPages: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pdf_pages_total",
				Help:      "Total pages written to PDF documents",
			},
		),
	}

	r.registry.MustRegister(
		r.sessions,
		r.sessionDuration,
		r.pages,
		r.retries,
		r.encodeFailures,
		r.assemblies,
		r.assembledPages,
	)

	return r
}

// Registry exposes the private registry, e.g. to serve or gather metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveSession records the outcome of a capture session.
func (r *Recorder) ObserveSession(stats capture.Stats, err error, dur time.Duration) {
	r.sessions.WithLabelValues(SessionResult(err)).Inc()
	r.sessionDuration.Observe(dur.Seconds())

	r.pages.WithLabelValues("accepted").Add(float64(stats.Accepted))
	r.pages.WithLabelValues("blank").Add(float64(stats.Blank))
	r.pages.WithLabelValues("duplicate").Add(float64(stats.Duplicate))
	r.pages.WithLabelValues("snapshot_failed").Add(float64(stats.SnapshotFailures))
	r.retries.Add(float64(stats.Retries))
	r.encodeFailures.Add(float64(stats.EncodeFailures))
}

// ObserveAssembly records the outcome of writing a PDF document.
func (r *Recorder) ObserveAssembly(pages int, err error) {
	if err != nil {
		r.assemblies.WithLabelValues("failed").Inc()

		return
	}

	r.assemblies.WithLabelValues("success").Inc()
	r.assembledPages.Add(float64(pages))
}

// WriteTextfile writes the collected metrics in the text exposition format,
// e.g. for the node exporter textfile collector.
func (r *Recorder) WriteTextfile(pth string) error {
	return prometheus.WriteToTextfile(pth, r.registry)
}

// SessionResult classifies the error returned by a capture session.
func SessionResult(err error) string {
	switch {
	case err == nil:
		return ResultCompleted
	case errors.Is(err, capture.ErrNoPages):
		return ResultNoPages
	case errors.Is(err, capture.ErrCaptureTimeout):
		return ResultTimeout
	case errors.Is(err, context.Canceled):
		return ResultCancelled
	case errors.Is(err, capture.ErrRenderNotReady):
		return ResultRenderNotReady
	default:
		return ResultFailed
	}
}
