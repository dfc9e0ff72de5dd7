// Package metrics defines the Prometheus counters exported by flashgate and
// the handler that serves them.
package metrics
