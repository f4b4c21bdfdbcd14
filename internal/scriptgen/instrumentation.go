package scriptgen

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/nupi-ai/plugin-tts-podcast/internal/scriptgen"

var (
	tracer    = otel.Tracer(scopeName)
	meter     = otel.Meter(scopeName)
	otelLog   = otelslog.NewLogger(scopeName)
	generated = newCounter(meter, "scriptgen.requests", "Script generation requests, by outcome")
)

// newCounter falls back to a noop counter when the meter refuses the
// instrument, so callers can always Add.
func newCounter(m metric.Meter, name, description string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(description))
	if err != nil || c == nil {
		otelLog.Warn("scriptgen: create counter", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return c
}
