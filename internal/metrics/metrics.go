// Package metrics counts uploads and previews for one CLI run and pushes
// the counters to a Prometheus Pushgateway when one is configured.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"drive-go/internal/drive"
)

// Metrics holds the counters of one process. Each instance has its own
// registry so tests do not share state.
type Metrics struct {
	registry *prometheus.Registry

	uploadsTotal     *prometheus.CounterVec
	uploadBytesTotal prometheus.Counter
	previewOpens     *prometheus.CounterVec
	exportsTotal     *prometheus.CounterVec
}

// New creates and registers the counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		uploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drive_uploads_total",
			Help: "Upload tasks that reached a terminal status.",
		}, []string{"status"}),
		uploadBytesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "drive_upload_bytes_total",
			Help: "Bytes of successfully uploaded files.",
		}),
		previewOpens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drive_preview_opens_total",
			Help: "Preview opens by result (ready, failed, discarded).",
		}, []string{"result"}),
		exportsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drive_exports_total",
			Help: "Exports by sink and result.",
		}, []string{"sink", "result"}),
	}
}

// Registry exposes the registry for tests and custom gatherers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// UploadSucceeded counts a succeeded upload of size bytes.
func (m *Metrics) UploadSucceeded(size int64) {
	m.uploadsTotal.WithLabelValues(string(drive.UploadSucceeded)).Inc()
	if size > 0 {
		m.uploadBytesTotal.Add(float64(size))
	}
}

// UploadFailed counts a failed upload.
func (m *Metrics) UploadFailed() {
	m.uploadsTotal.WithLabelValues(string(drive.UploadFailed)).Inc()
}

// PreviewOpened has the signature of drive.PreviewOptions.OnOpen.
func (m *Metrics) PreviewOpened(result string) {
	m.previewOpens.WithLabelValues(result).Inc()
}

// Exported counts one export attempt.
func (m *Metrics) Exported(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.exportsTotal.WithLabelValues(sink, result).Inc()
}

// Push sends all counters to the Pushgateway at url under job, replacing
// the previous push of the same job and instance grouping.
func (m *Metrics) Push(ctx context.Context, url, job, instance string) error {
	p := push.New(url, job).Gatherer(m.registry)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
