package scriptgen

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// refusingMeter fails every counter it is asked for.
type refusingMeter struct {
	noop.Meter
}

func (refusingMeter) Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return nil, errors.New("instrument rejected")
}

func TestNewCounterFallsBackWhenMeterRefuses(t *testing.T) {
	c := newCounter(refusingMeter{}, "scriptgen.requests", "test")
	if c == nil {
		t.Fatal("newCounter returned nil")
	}
	c.Add(context.Background(), 1)
}
