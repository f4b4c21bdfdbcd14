// Package nap renders turns through another NAP text-to-speech adapter, so any
// engine the host already runs can voice the podcast.
package nap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	napv1 "github.com/nupi-ai/nupi/api/nap/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/plugin-tts-podcast/internal/adapterinfo"
	"github.com/nupi-ai/plugin-tts-podcast/internal/audio"
	"github.com/nupi-ai/plugin-tts-podcast/internal/tts"
)

// Synthesizer calls StreamSynthesis on a remote adapter and collects the PCM16
// chunks it plays back.
type Synthesizer struct {
	client     napv1.TextToSpeechServiceClient
	sessionID  string
	sampleRate int
	log        *slog.Logger
}

// Dial connects to the adapter listening on addr.
func Dial(addr string, logger *slog.Logger, opts ...grpc.DialOption) (*Synthesizer, *grpc.ClientConn, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nap: connect %s: %w", addr, err)
	}
	return New(napv1.NewTextToSpeechServiceClient(conn), logger), conn, nil
}

// New wraps an existing client. Remote adapters are expected to emit 16 kHz
// mono PCM16.
func New(client napv1.TextToSpeechServiceClient, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	sessionID := uuid.NewString()
	return &Synthesizer{
		client:     client,
		sessionID:  sessionID,
		sampleRate: audio.DefaultSampleRate,
		log:        logger.With("component", "nap", "session_id", sessionID),
	}
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	// Releases the stream once FINISHED arrives, without waiting for EOF.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamID := uuid.NewString()
	stream, err := s.client.StreamSynthesis(ctx, &napv1.StreamSynthesisRequest{
		SessionId: s.sessionID,
		StreamId:  streamID,
		Text:      text,
		Metadata:  map[string]string{adapterinfo.MetaVoiceID: voiceID},
	})
	if err != nil {
		return nil, classify(err)
	}

	var pcm []byte
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
		switch resp.GetStatus() {
		case napv1.SynthesisStatus_SYNTHESIS_STATUS_ERROR:
			return nil, fmt.Errorf("nap: remote synthesis failed: %s", resp.GetErrorMessage())
		case napv1.SynthesisStatus_SYNTHESIS_STATUS_INTERRUPTED:
			return nil, fmt.Errorf("nap: remote synthesis interrupted: %s", resp.GetMetadata()["reason"])
		}
		if chunk := resp.GetChunk(); chunk != nil {
			pcm = append(pcm, chunk.GetData()...)
		}
		if resp.GetStatus() == napv1.SynthesisStatus_SYNTHESIS_STATUS_FINISHED {
			break
		}
	}

	s.log.Debug("turn synthesized", "stream_id", streamID, "voice_id", voiceID, "bytes", len(pcm))
	if len(pcm) == 0 {
		return nil, nil
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return audio.WrapPCM16(pcm, s.sampleRate, audio.DefaultChannels)
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("nap: %w: %w", tts.ErrAuthOrQuota, err)
	case codes.ResourceExhausted:
		return fmt.Errorf("nap: %w: %w", tts.ErrRateLimited, err)
	}
	return fmt.Errorf("nap: stream synthesis: %w", err)
}
