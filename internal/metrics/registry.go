package metrics

import (
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/cotsynth/internal/errors"
)

// TextfileName is the metrics file written into the output directory
const TextfileName = "metrics.prom"

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	return reg, m
}

// WriteTextfile writes every metric of reg to dir/metrics.prom in the text
// exposition format, for node_exporter's textfile collector
func WriteTextfile(reg prometheus.Gatherer, dir string) (string, error) {
	path := filepath.Join(dir, TextfileName)
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return "", errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write metrics", err)
	}
	return path, nil
}
