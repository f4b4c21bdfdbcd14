package podcast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nupi-ai/plugin-tts-podcast/internal/script"
)

// ScriptGenerator produces a raw dialogue script for a topic.
type ScriptGenerator interface {
	Generate(ctx context.Context, topic string) (string, error)
}

// Pipeline wires the script generator, the segmenter and the assembler behind
// the request-level operations exposed by the transports.
type Pipeline struct {
	generator ScriptGenerator
	assembler *Assembler
	voices    VoiceAssignment
	log       *slog.Logger
}

// NewPipeline returns a Pipeline. generator may be nil when only segmentation
// and assembly are needed.
func NewPipeline(generator ScriptGenerator, assembler *Assembler, voices VoiceAssignment, logger *slog.Logger) *Pipeline {
	if assembler == nil {
		panic("podcast: assembler must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		generator: generator,
		assembler: assembler,
		voices:    voices,
		log:       logger.With("component", "pipeline"),
	}
}

// Voices returns the configured voice assignment.
func (p *Pipeline) Voices() VoiceAssignment { return p.voices }

// GenerateScript asks the generator for a dialogue about topic and segments it.
func (p *Pipeline) GenerateScript(ctx context.Context, topic string) (string, []script.Turn, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	if p.generator == nil {
		return "", nil, fmt.Errorf("%w: no script generator configured", ErrUpstreamTextGeneration)
	}

	raw, err := p.generator.Generate(ctx, topic)
	if err != nil {
		p.log.Error("script generation failed", "topic", topic, "error", err)
		return "", nil, fmt.Errorf("%w: %w", ErrUpstreamTextGeneration, err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", nil, fmt.Errorf("%w: generator returned an empty script", ErrUpstreamTextGeneration)
	}

	turns, err := p.Segment(raw)
	if err != nil {
		return raw, nil, err
	}
	p.log.Info("script generated", "topic", topic, "script_length", len(raw), "turns", len(turns))
	return raw, turns, nil
}

// Segment splits a raw script into turns. Blank input is ErrInvalidInput and
// a script without any speaker label is ErrNoSegments.
func (p *Pipeline) Segment(raw string) ([]script.Turn, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: script is empty", ErrInvalidInput)
	}
	turns := script.Segment(raw)
	if len(turns) == 0 {
		return nil, ErrNoSegments
	}
	return turns, nil
}

// Assemble renders turns with the configured voices.
func (p *Pipeline) Assemble(ctx context.Context, turns []script.Turn) (Result, error) {
	return p.AssembleWithVoices(ctx, turns, p.voices)
}

// AssembleWithVoices renders turns with an explicit voice assignment.
func (p *Pipeline) AssembleWithVoices(ctx context.Context, turns []script.Turn, voices VoiceAssignment) (Result, error) {
	if voices.Host == "" || voices.Guest == "" {
		return Result{}, fmt.Errorf("%w: host and guest voices are required", ErrInvalidInput)
	}
	return p.assembler.Assemble(ctx, turns, voices)
}

// Produce runs the whole topic → audio flow.
func (p *Pipeline) Produce(ctx context.Context, topic string) (string, Result, error) {
	raw, turns, err := p.GenerateScript(ctx, topic)
	if err != nil {
		return raw, Result{}, err
	}
	res, err := p.Assemble(ctx, turns)
	return raw, res, err
}
