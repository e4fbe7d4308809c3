// Package telemetry wires the global OpenTelemetry meter provider used
// by every other package's package-level instruments. Those instruments
// are registered against the global delegating provider at package init
// time, so they start as no-ops and begin forwarding to a real exporter
// the moment Init runs — callers never need to pass a provider around.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Config selects where metrics go. A nil Reader leaves the global
// provider registered but with nothing attached to export to, useful in
// tests that want real instruments without a real backend.
type Config struct {
	ServiceName string
	Reader      sdkmetric.Reader
}

var shutdown func(context.Context) error

// Init installs a global MeterProvider built from cfg. It is safe to
// call at most once per process; a second call replaces the provider
// and leaks the first one's background readers.
func Init(cfg Config) error {
	opts := []sdkmetric.Option{}
	if cfg.Reader != nil {
		opts = append(opts, sdkmetric.WithReader(cfg.Reader))
	}
	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)
	shutdown = provider.Shutdown
	return nil
}

// Shutdown flushes and stops the provider installed by Init. A no-op if
// Init was never called.
func Shutdown(ctx context.Context) error {
	if shutdown == nil {
		return nil
	}
	err := shutdown(ctx)
	shutdown = nil
	return err
}
