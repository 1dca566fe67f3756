// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the SDK tracer and meter providers.
type Provider struct {
	// tp is nil when tracing is disabled
	tp       *sdktrace.TracerProvider
	mp       *metric.MeterProvider
	gatherer prometheus.Gatherer
	metrics  *MetricsCollector
}

// New installs the global tracer provider (when tracing is enabled), the
// W3C propagator and a meter provider bridged to Prometheus. Extra tracer
// options are appended after the configured exporter.
func New(cfg Config, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "referral-agent"
	}

	// Empty schema URL avoids conflicts when merging with the default resource.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &Provider{}

	if cfg.TracingEnabled {
		tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
		switch cfg.Exporter {
		case ExporterStdout:
			exporter, err := newConsoleExporter(cfg.Writer)
			if err != nil {
				return nil, err
			}
			tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
		case ExporterNone, "":
		default:
			return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
		}
		p.tp = sdktrace.NewTracerProvider(append(tpOpts, opts...)...)
		otel.SetTracerProvider(p.tp)
	}
	otel.SetTextMapPropagator(W3CPropagator())

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	p.gatherer = prometheus.DefaultGatherer
	if cfg.Registry != nil {
		registerer = cfg.Registry
		p.gatherer = cfg.Registry
	}

	promExporter, err := otelprom.New(otelprom.WithRegisterer(registerer))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	p.mp = metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(promExporter),
	)
	otel.SetMeterProvider(p.mp)

	p.metrics, err = NewMetricsCollector(p.mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	return p, nil
}

func newConsoleExporter(w io.Writer) (sdktrace.SpanExporter, error) {
	if w == nil {
		w = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create console exporter: %w", err)
	}
	return exporter, nil
}

// Tracer returns a tracer for the given instrumentation scope.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tp == nil {
		return otel.Tracer(name)
	}
	return p.tp.Tracer(name)
}

// Metrics returns the collector for HTTP server metrics.
func (p *Provider) Metrics() *MetricsCollector {
	return p.metrics
}

// MetricsHandler serves the Prometheus registry, which holds both the
// promauto collectors and the bridged otel metrics.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// ForceFlush exports all pending spans synchronously.
func (p *Provider) ForceFlush(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		errs = append(errs, p.tp.ForceFlush(ctx))
	}
	errs = append(errs, p.mp.ForceFlush(ctx))
	return errors.Join(errs...)
}

// Shutdown flushes any pending spans and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
	}
	errs = append(errs, p.mp.Shutdown(ctx))
	return errors.Join(errs...)
}
