// Package otel publishes Engine metrics through an OpenTelemetry meter.
//
// Counters become Int64ObservableCounters under their Prometheus names. The
// latency histogram is published as a cumulative "_bucket" counter carrying
// an "le" attribute per bound plus a "_count" counter, so a Prometheus
// backend reconstructs the same series the text exporter writes. One
// callback reads a single snapshot per collection; the caller owns the
// MeterProvider and its readers.
package otel
