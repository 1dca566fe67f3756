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
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// Trace exporters.
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config holds observability configuration.
type Config struct {
	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// TracingEnabled installs an SDK tracer provider as the global provider.
	TracingEnabled bool

	// Exporter is ExporterStdout or ExporterNone.
	Exporter string

	// Writer receives stdout spans (default: os.Stdout).
	Writer io.Writer

	// Registry receives the bridged otel metrics. Nil uses the default
	// Prometheus registry, which also holds the promauto collectors.
	Registry *prometheus.Registry
}
