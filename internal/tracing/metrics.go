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
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector records HTTP API metrics through otel meters. A nil
// collector records nothing.
type MetricsCollector struct {
	requests      metric.Int64Counter
	duration      metric.Float64Histogram
	activeStreams metric.Int64UpDownCounter
}

// NewMetricsCollector creates the instruments on meterProvider.
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("github.com/tombee/referral-agent")

	mc := &MetricsCollector{}
	var err error

	mc.requests, err = meter.Int64Counter(
		"referral_http_server_requests",
		metric.WithDescription("Total number of HTTP API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	mc.duration, err = meter.Float64Histogram(
		"referral_http_server_duration",
		metric.WithDescription("HTTP API request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.activeStreams, err = meter.Int64UpDownCounter(
		"referral_active_streams",
		metric.WithDescription("Number of open status streams"),
		metric.WithUnit("{stream}"),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordRequest records one completed HTTP request. route is the route
// template, not the raw path.
func (mc *MetricsCollector) RecordRequest(ctx context.Context, route, method string, status int, d time.Duration) {
	if mc == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("method", method),
		attribute.String("status", strconv.Itoa(status)),
	)
	mc.requests.Add(ctx, 1, attrs)
	mc.duration.Record(ctx, d.Seconds(), attrs)
}

// StreamOpened records the start of a status stream.
func (mc *MetricsCollector) StreamOpened(ctx context.Context) {
	if mc == nil {
		return
	}
	mc.activeStreams.Add(ctx, 1)
}

// StreamClosed records the end of a status stream.
func (mc *MetricsCollector) StreamClosed(ctx context.Context) {
	if mc == nil {
		return
	}
	mc.activeStreams.Add(ctx, -1)
}
