package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/estateauth"
	"github.com/MrEthical07/estateauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the callback reads. *estateauth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() estateauth.MetricsSnapshot
	AuditDropped() uint64
}

// observeFunc writes one instrument's value from a snapshot.
type observeFunc func(metric.Observer, estateauth.MetricsSnapshot)

// Exporter keeps the callback registered until Close.
type Exporter struct {
	source       Source
	observers    []observeFunc
	registration metric.Registration
}

// NewExporter publishes engine's metrics on meter.
func NewExporter(meter metric.Meter, engine *estateauth.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource publishes source's metrics on meter.
func NewExporterFromSource(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var instruments []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel: counter %s: %w", def.Name, err)
		}
		id := def.ID
		e.observers = append(e.observers, func(o metric.Observer, s estateauth.MetricsSnapshot) {
			o.ObserveInt64(c, int64(s.Counters[id]))
		})
		instruments = append(instruments, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		observe, insts, err := histogram(meter, def)
		if err != nil {
			return nil, err
		}
		e.observers = append(e.observers, observe)
		instruments = append(instruments, insts...)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events dropped on a full buffer."))
	if err != nil {
		return nil, fmt.Errorf("otel: counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	instruments = append(instruments, dropped)

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snap := e.source.MetricsSnapshot()
		for _, observe := range e.observers {
			observe(o, snap)
		}
		o.ObserveInt64(dropped, int64(e.source.AuditDropped()))
		return nil
	}, instruments...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func histogram(meter metric.Meter, def internaldefs.HistogramDef) (observeFunc, []metric.Observable, error) {
	buckets, err := meter.Int64ObservableCounter(def.Name+"_bucket",
		metric.WithDescription(def.Help+" Cumulative count per upper bound."))
	if err != nil {
		return nil, nil, fmt.Errorf("otel: counter %s_bucket: %w", def.Name, err)
	}
	count, err := meter.Int64ObservableCounter(def.Name+"_count",
		metric.WithDescription(def.Help+" Total samples."))
	if err != nil {
		return nil, nil, fmt.Errorf("otel: counter %s_count: %w", def.Name, err)
	}

	bounds := make([]metric.ObserveOption, len(internaldefs.HistogramBounds))
	for i, le := range internaldefs.HistogramBounds {
		bounds[i] = metric.WithAttributes(attribute.String("le", le))
	}

	id := def.ID
	observe := func(o metric.Observer, s estateauth.MetricsSnapshot) {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(s.Histograms[id]))
		for i, opt := range bounds {
			o.ObserveInt64(buckets, int64(cum[i]), opt)
		}
		o.ObserveInt64(count, int64(cum[len(cum)-1]))
	}
	return observe, []metric.Observable{buckets, count}, nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
