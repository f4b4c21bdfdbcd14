package elevenlabs

import (
	"context"
	"fmt"
	"io"

	"github.com/nupi-ai/plugin-tts-podcast/internal/audio"
	"github.com/nupi-ai/plugin-tts-podcast/internal/tts"
)

// Synthesizer abstracts the ElevenLabs TTS streaming API so that the adapter
// can be tested with a mock implementation.
type Synthesizer interface {
	SynthesizeStream(ctx context.Context, voiceID string, req SynthesizeRequest) (io.ReadCloser, error)
}

// Options carries the model and voice tuning applied to every request.
type Options struct {
	Model                    string
	LanguageCode             string
	Stability                *float64
	SimilarityBoost          *float64
	OptimizeStreamingLatency *int
}

// TTS renders whole turns through an ElevenLabs Synthesizer and returns them
// as WAV clips. It implements tts.Synthesizer and honours tts.Tuning found on
// the request context.
type TTS struct {
	client Synthesizer
	opts   Options
}

// NewTTS wraps client.
func NewTTS(client Synthesizer, opts Options) *TTS {
	if client == nil {
		panic("elevenlabs: client must not be nil")
	}
	return &TTS{client: client, opts: opts}
}

// Synthesize streams the turn audio to completion and wraps the PCM in a WAV
// container.
func (t *TTS) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	opts := t.opts
	if tuning, ok := tts.TuningFrom(ctx); ok {
		if tuning.Stability != nil {
			opts.Stability = tuning.Stability
		}
		if tuning.SimilarityBoost != nil {
			opts.SimilarityBoost = tuning.SimilarityBoost
		}
		if tuning.OptimizeStreamingLatency != nil {
			opts.OptimizeStreamingLatency = tuning.OptimizeStreamingLatency
		}
	}

	req := SynthesizeRequest{
		Text:         text,
		ModelID:      opts.Model,
		LanguageCode: opts.LanguageCode,
	}
	if opts.Stability != nil || opts.SimilarityBoost != nil {
		req.VoiceSettings = &VoiceSettings{
			Stability:       opts.Stability,
			SimilarityBoost: opts.SimilarityBoost,
		}
	}
	req.OptimizeStreamingLatency = opts.OptimizeStreamingLatency

	stream, err := t.client.SynthesizeStream(ctx, voiceID, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	pcm, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio stream: %w", err)
	}
	if len(pcm) == 0 {
		return nil, nil
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return audio.WrapPCM16(pcm, OutputSampleRate, 1)
}
