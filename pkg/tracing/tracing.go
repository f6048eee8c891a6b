/*
Copyright 2022-2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package tracing puts one span around each Orchestrator phase. Like
// package metrics, it never gates a verdict: a span is started, the
// phase runs, the span ends with whatever error the phase produced
// recorded on it for visibility, not control flow.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
)

const tracerName = "github.com/eschercloudai/kubernetes-deploy"

// NewProvider builds a TracerProvider exporting to endpoint via OTLP/HTTP.
// An empty endpoint returns an SDK provider with no exporter attached, so
// spans go nowhere and callers never need to branch on whether tracing is
// configured.
func NewProvider(ctx context.Context, endpoint string) (*sdktrace.TracerProvider, error) {
	if endpoint == "" {
		return sdktrace.NewTracerProvider(), nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint))
	if err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", constants.Application),
		attribute.String("service.version", constants.VersionString()),
	)

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// Phase starts a span named for an Orchestrator state, runs fn, and
// records fn's error on the span without altering it.
func Phase(ctx context.Context, tp trace.TracerProvider, name string, fn func(ctx context.Context) error) error {
	if tp == nil {
		return fn(ctx)
	}

	ctx, span := tp.Tracer(tracerName).Start(ctx, name)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}
