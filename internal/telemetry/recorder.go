package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nupi-ai/plugin-tts-podcast"

// Recorder centralises telemetry (logs, metrics, traces) for the adapter. Logs
// go through slog; metrics and spans use the global otel providers, which are
// no-ops until the host process installs an SDK.
type Recorder struct {
	logger *slog.Logger
	tracer trace.Tracer

	turns     metric.Int64Counter
	podcasts  metric.Int64Counter
	synthTime metric.Float64Histogram
}

// NewRecorder constructs a telemetry recorder using the provided slog.Logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter(scopeName)
	r := &Recorder{
		logger: logger,
		tracer: otel.Tracer(scopeName),
	}

	var err error
	if r.turns, err = meter.Int64Counter("podcast.turns",
		metric.WithDescription("Dialogue turns processed, by outcome")); err != nil {
		logger.Warn("telemetry: create turns counter", "error", err)
	}
	if r.podcasts, err = meter.Int64Counter("podcast.assemblies",
		metric.WithDescription("Assembly runs, by outcome")); err != nil {
		logger.Warn("telemetry: create assemblies counter", "error", err)
	}
	if r.synthTime, err = meter.Float64Histogram("podcast.turn.synthesis_duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent synthesizing a single turn")); err != nil {
		logger.Warn("telemetry: create synthesis histogram", "error", err)
	}
	return r
}

// Logger returns the underlying slog.Logger for direct use.
func (r *Recorder) Logger() *slog.Logger {
	return r.logger
}

// StartSpan starts a span under the adapter's instrumentation scope.
func (r *Recorder) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordTurn counts one processed turn. outcome is "included" or "skipped".
func (r *Recorder) RecordTurn(ctx context.Context, speaker, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("speaker", speaker),
		attribute.String("outcome", outcome),
	)
	if r.turns != nil {
		r.turns.Add(ctx, 1, attrs)
	}
	if r.synthTime != nil {
		r.synthTime.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// RecordAssembly counts one finished assembly run.
func (r *Recorder) RecordAssembly(ctx context.Context, outcome string) {
	if r.podcasts != nil {
		r.podcasts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
