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

/*
Package tracing wires OpenTelemetry for the referral agent.

The agent, the tool registry and the upstream HTTP clients open spans through
the global otel tracer, so they cost nothing until New installs an SDK tracer
provider. Metrics recorded through otel meters are bridged to the Prometheus
registry that also holds the promauto collectors, and served together from
/metrics.

	provider, err := tracing.New(tracing.Config{
	    ServiceName:    "referral-agent",
	    TracingEnabled: true,
	    Exporter:       tracing.ExporterStdout,
	})
	if err != nil {
	    return err
	}
	defer provider.Shutdown(ctx)

	handler = tracing.HTTPMiddleware(handler)
*/
package tracing
