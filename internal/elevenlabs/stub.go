package elevenlabs

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
)

// StubSynthesizer implements the Synthesizer interface with deterministic
// PCM output. Each voice gets its own tone so a stub-rendered podcast still
// audibly alternates speakers. It is intended for CI and testing environments
// where the real ElevenLabs API is unavailable.
type StubSynthesizer struct {
	log *slog.Logger
}

// NewStubSynthesizer returns a stub that generates PCM proportional to the
// input text length.
func NewStubSynthesizer(logger *slog.Logger) *StubSynthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubSynthesizer{log: logger}
}

// stubBytesPerChar is 10 ms of 16 kHz mono PCM16.
const stubBytesPerChar = 320

// SynthesizeStream returns an io.ReadCloser streaming a deterministic tone of
// len(text) * 10 ms. The pitch is derived from voiceID.
func (s *StubSynthesizer) SynthesizeStream(_ context.Context, voiceID string, req SynthesizeRequest) (io.ReadCloser, error) {
	if voiceID == "" {
		return nil, fmt.Errorf("elevenlabs: voice_id is required")
	}
	if req.Text == "" {
		return nil, fmt.Errorf("elevenlabs: text is required")
	}

	pcm := stubTone(voiceID, len(req.Text)*stubBytesPerChar/2)

	s.log.Info("stub synthesis",
		"text_length", len(req.Text),
		"voice_id", voiceID,
		"bytes", len(pcm),
	)

	return io.NopCloser(bytes.NewReader(pcm)), nil
}

func stubTone(voiceID string, samples int) []byte {
	h := fnv.New32a()
	h.Write([]byte(voiceID))
	freq := 180 + float64(h.Sum32()%220)

	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(3000 * math.Sin(2*math.Pi*freq*float64(i)/OutputSampleRate))
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(v))
	}
	return pcm
}
