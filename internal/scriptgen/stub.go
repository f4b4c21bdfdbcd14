package scriptgen

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StubGenerator writes a fixed three-turn dialogue mentioning the topic. It
// lets the adapter run without a text model.
type StubGenerator struct{}

// Generate implements podcast.ScriptGenerator.
func (StubGenerator) Generate(ctx context.Context, topic string) (string, error) {
	generated.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "stub")))
	return fmt.Sprintf("Host: Welcome to the show. Today we are talking about %s.\n"+
		"Guest: Thanks for having me. %s is a topic I love.\n"+
		"Host: Let's get into it.", topic, topic), nil
}
