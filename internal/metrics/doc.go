// Package metrics exposes Prometheus counters and histograms for syncs,
// retrievals, answer outcomes, and generation calls.
//
// Collectors register on a caller-supplied prometheus.Registerer so tests
// and embedded uses can keep their own registry.
package metrics
