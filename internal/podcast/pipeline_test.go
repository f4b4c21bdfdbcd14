package podcast

import (
	"context"
	"errors"
	"testing"

	"github.com/nupi-ai/plugin-tts-podcast/internal/script"
)

type fakeGenerator struct {
	script string
	err    error
	topic  string
}

func (g *fakeGenerator) Generate(_ context.Context, topic string) (string, error) {
	g.topic = topic
	return g.script, g.err
}

func newTestPipeline(gen ScriptGenerator) *Pipeline {
	return NewPipeline(gen, newTestAssembler(&fakeSynth{}, AssemblerOptions{}), testVoices, nil)
}

func TestPipelineGenerateScript(t *testing.T) {
	gen := &fakeGenerator{script: "Sure! Here's a script.\nHost: Hi\nGuest: Hello"}
	p := newTestPipeline(gen)

	raw, turns, err := p.GenerateScript(context.Background(), "  tide pools  ")
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if gen.topic != "tide pools" {
		t.Errorf("generator topic = %q, want trimmed topic", gen.topic)
	}
	if raw != gen.script {
		t.Errorf("raw script not returned unchanged")
	}
	if len(turns) != 2 || turns[0].Speaker != script.Host || turns[1].Speaker != script.Guest {
		t.Errorf("turns = %+v", turns)
	}
}

func TestPipelineGenerateScriptErrors(t *testing.T) {
	tests := []struct {
		name  string
		gen   ScriptGenerator
		topic string
		want  error
	}{
		{"blank topic", &fakeGenerator{script: "Host: hi"}, "   ", ErrInvalidInput},
		{"generator error", &fakeGenerator{err: errors.New("503")}, "x", ErrUpstreamTextGeneration},
		{"empty script", &fakeGenerator{script: "  \n"}, "x", ErrUpstreamTextGeneration},
		{"no generator", nil, "x", ErrUpstreamTextGeneration},
		{"unparseable script", &fakeGenerator{script: "I cannot help with that."}, "x", ErrNoSegments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(tt.gen)
			_, _, err := p.GenerateScript(context.Background(), tt.topic)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPipelineSegment(t *testing.T) {
	p := newTestPipeline(nil)

	if _, err := p.Segment(" \n\t"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank script err = %v, want ErrInvalidInput", err)
	}
	if _, err := p.Segment("Narrator: Hello"); !errors.Is(err, ErrNoSegments) {
		t.Errorf("unlabeled script err = %v, want ErrNoSegments", err)
	}
	turns, err := p.Segment("Guest: yes")
	if err != nil || len(turns) != 1 {
		t.Fatalf("Segment = %v, %v", turns, err)
	}
}

func TestPipelineProduce(t *testing.T) {
	p := newTestPipeline(&fakeGenerator{script: "Host: Welcome\nGuest: Thanks"})

	_, res, err := p.Produce(context.Background(), "bees")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if string(res.Audio) != "host-voice/Welcome|guest-voice/Thanks" {
		t.Errorf("Audio = %q", res.Audio)
	}
}

func TestPipelineAssembleRequiresVoices(t *testing.T) {
	p := newTestPipeline(nil)
	turns := []script.Turn{{Speaker: script.Host, Text: "hi"}}
	if _, err := p.AssembleWithVoices(context.Background(), turns, VoiceAssignment{Host: "h"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestVoiceAssignmentFor(t *testing.T) {
	v := VoiceAssignment{Host: "h", Guest: "g"}
	if v.For(script.Host) != "h" || v.For(script.Guest) != "g" || v.For(script.Unknown) != "h" {
		t.Errorf("unexpected voice resolution: host=%s guest=%s unknown=%s",
			v.For(script.Host), v.For(script.Guest), v.For(script.Unknown))
	}
}
