// Package metrics exposes Prometheus counters for alarm transitions,
// incidents and monitoring station requests.
package metrics
