// Package prometheus renders Engine counters and the Authenticate latency
// histogram in the Prometheus text exposition format.
//
// The exporter never registers anything globally; callers mount Handler
// wherever they serve metrics.
package prometheus
