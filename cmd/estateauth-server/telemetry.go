package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrEthical07/estateauth"
	"github.com/MrEthical07/estateauth/internal/serverconfig"
	otelexport "github.com/MrEthical07/estateauth/metrics/export/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/MrEthical07/estateauth"

// telemetry is the OpenTelemetry pipeline: engine metrics are read by a
// periodic reader and written as JSON to w.
type telemetry struct {
	provider *sdkmetric.MeterProvider
	exporter *otelexport.Exporter
}

func startTelemetry(engine *estateauth.Engine, cfg serverconfig.OTelConfig, w io.Writer) (*telemetry, error) {
	out, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("otel stdout exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(out, sdkmetric.WithInterval(cfg.Interval))),
	)
	exp, err := otelexport.NewExporter(provider.Meter(meterName), engine)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return &telemetry{provider: provider, exporter: exp}, nil
}

// Flush exports the current values now.
func (t *telemetry) Flush(ctx context.Context) error {
	return t.provider.ForceFlush(ctx)
}

// Shutdown exports once more and stops the reader.
func (t *telemetry) Shutdown(ctx context.Context) error {
	flushErr := t.provider.ForceFlush(ctx)
	return errors.Join(flushErr, t.exporter.Close(), t.provider.Shutdown(ctx))
}
