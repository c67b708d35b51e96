// Package telemetry provides optional OpenTelemetry self-instrumentation for
// the SDK's own pipeline (events buffered, batches sent, rows trimmed).
//
// Disabled by default: unless BEACON_OTEL_ENABLED=true is set, Init installs
// nothing and every recording call is a no-op on a nil receiver. Hosts that
// already run an OTel pipeline can watch the SDK's delivery health without
// any extra wiring.
//
//	BEACON_OTEL_ENABLED=true   enable metrics (stdout exporter)
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const instrumentationScope = "github.com/gamesignals/beacon"

// Enabled reports whether self-instrumentation is active.
func Enabled() bool {
	return os.Getenv("BEACON_OTEL_ENABLED") == "true"
}

// Metrics records pipeline counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	eventsAdded   metric.Int64Counter
	eventsDropped metric.Int64Counter
	eventsSent    metric.Int64Counter
	batches       metric.Int64Counter
}

// Init builds a Metrics when enabled, nil otherwise.
func Init() (*Metrics, error) {
	if !Enabled() {
		return nil, nil
	}

	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("create stdout metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(time.Minute))),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter(instrumentationScope)
	m := &Metrics{provider: provider}

	var err2 error
	if m.eventsAdded, err2 = meter.Int64Counter("beacon.events.added"); err2 != nil {
		return nil, err2
	}
	if m.eventsDropped, err2 = meter.Int64Counter("beacon.events.dropped"); err2 != nil {
		return nil, err2
	}
	if m.eventsSent, err2 = meter.Int64Counter("beacon.events.sent"); err2 != nil {
		return nil, err2
	}
	if m.batches, err2 = meter.Int64Counter("beacon.batches"); err2 != nil {
		return nil, err2
	}
	return m, nil
}

// Shutdown flushes and stops the provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// EventAdded counts one event accepted into the outbox.
func (m *Metrics) EventAdded(category string) {
	if m == nil {
		return
	}
	m.eventsAdded.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("category", category)))
}

// EventDropped counts one event refused (validation, size ceiling, disabled).
func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// BatchSent counts one dispatch attempt and its outcome classification.
func (m *Metrics) BatchSent(size int, outcome string) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.batches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome == "Ok" {
		m.eventsSent.Add(ctx, int64(size))
	}
}
