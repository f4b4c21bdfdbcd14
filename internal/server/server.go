package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	napv1 "github.com/nupi-ai/nupi/api/nap/v1"

	"github.com/nupi-ai/plugin-tts-podcast/internal/adapterinfo"
	"github.com/nupi-ai/plugin-tts-podcast/internal/audio"
	"github.com/nupi-ai/plugin-tts-podcast/internal/config"
	"github.com/nupi-ai/plugin-tts-podcast/internal/podcast"
	"github.com/nupi-ai/plugin-tts-podcast/internal/script"
	"github.com/nupi-ai/plugin-tts-podcast/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-podcast/internal/tts"
)

const chunkSize = 4096 // bytes per chunk (~128ms at 16kHz mono PCM16)

// Server implements the TextToSpeechService. Each request carries a whole
// dialogue script (or a topic) and is answered with one assembled podcast.
type Server struct {
	napv1.UnimplementedTextToSpeechServiceServer

	cfg      config.Config
	log      *slog.Logger
	pipeline *podcast.Pipeline
	metrics  *telemetry.Recorder
}

// New returns a new Server instance.
func New(cfg config.Config, logger *slog.Logger, pipeline *podcast.Pipeline, metrics *telemetry.Recorder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if pipeline == nil {
		panic("server: pipeline must not be nil")
	}
	if metrics == nil {
		metrics = telemetry.NewRecorder(logger)
	}
	return &Server{
		cfg: cfg,
		log: logger.With(
			"component", "server",
			"synthesizer", cfg.Synthesizer,
		),
		pipeline: pipeline,
		metrics:  metrics,
	}
}

// StreamSynthesis renders the request text as a podcast and streams the PCM16
// track back in chunks.
func (s *Server) StreamSynthesis(req *napv1.StreamSynthesisRequest, stream napv1.TextToSpeechService_StreamSynthesisServer) error {
	if req == nil {
		return fmt.Errorf("server: request is nil")
	}

	text := req.GetText()
	reqCfg, tuned, cfgErr := s.requestConfig(req.GetMetadata())
	voices := podcast.VoiceAssignment{Host: reqCfg.HostVoiceID, Guest: reqCfg.GuestVoiceID}
	logEntry := s.log.With(
		"session_id", req.GetSessionId(),
		"stream_id", req.GetStreamId(),
		"text_length", len(text),
		"host_voice", voices.Host,
		"guest_voice", voices.Guest,
	)

	if strings.TrimSpace(text) == "" {
		logEntry.Warn("empty text in synthesis request")
		return s.sendError(stream, "text is required", nil)
	}
	if cfgErr != nil {
		logEntry.Warn("invalid request overrides", "error", cfgErr)
		return s.sendError(stream, cfgErr.Error(), nil)
	}

	logEntry.Info("podcast request received")
	if err := s.sendStatus(stream, napv1.SynthesisStatus_SYNTHESIS_STATUS_STARTED, nil); err != nil {
		logEntry.Error("failed to send started status", "error", err)
		return err
	}

	ctx := stream.Context()
	if tuned {
		ctx = tts.WithTuning(ctx, tts.Tuning{
			Stability:                reqCfg.Stability,
			SimilarityBoost:          reqCfg.SimilarityBoost,
			OptimizeStreamingLatency: reqCfg.OptimizeStreamingLatency,
		})
	}
	start := time.Now()

	turns, err := s.turns(ctx, text, req.GetMetadata())
	if err != nil {
		logEntry.Warn("script rejected", "error", err)
		return s.sendError(stream, err.Error(), nil)
	}

	result, err := s.pipeline.AssembleWithVoices(ctx, turns, voices)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logEntry.Info("synthesis interrupted", "reason", ctxErr)
			return s.sendStatus(stream, napv1.SynthesisStatus_SYNTHESIS_STATUS_INTERRUPTED, map[string]string{
				"reason": ctxErr.Error(),
			})
		}
		var asmErr *podcast.AssemblyError
		if errors.As(err, &asmErr) {
			m := asmErr.Manifest
			logEntry.Error("assembly failed", "turns_total", m.Total, "turns_skipped", m.Skipped)
			return s.sendError(stream, err.Error(), adapterinfo.ManifestMetadata(m.Total, m.Included, m.Skipped))
		}
		if errors.Is(err, tts.ErrAuthOrQuota) {
			logEntry.Error("synthesis provider refused request", "error", err)
			return s.sendError(stream, "synthesis provider rejected credentials or quota exhausted: "+err.Error(), nil)
		}
		logEntry.Error("assembly failed", "error", err)
		return s.sendError(stream, fmt.Sprintf("synthesis failed: %v", err), nil)
	}

	clip, err := audio.Decode(result.Audio)
	if err != nil {
		logEntry.Error("assembled track unreadable", "error", err)
		return s.sendError(stream, fmt.Sprintf("decode assembled track: %v", err), nil)
	}

	if err := s.sendStatus(stream, napv1.SynthesisStatus_SYNTHESIS_STATUS_PLAYING, nil); err != nil {
		logEntry.Error("failed to send playing status", "error", err)
		return err
	}

	sent, err := s.streamPCM(ctx, stream, clip, voices)
	if err != nil {
		return err
	}
	if sent.interrupted != nil {
		logEntry.Info("playback interrupted", "reason", sent.interrupted)
		return s.sendStatus(stream, napv1.SynthesisStatus_SYNTHESIS_STATUS_INTERRUPTED, map[string]string{
			"reason": sent.interrupted.Error(),
		})
	}

	elapsed := time.Since(start)
	m := result.Manifest
	logEntry.Info("podcast streamed",
		"turns_total", m.Total,
		"turns_included", m.Included,
		"turns_skipped", m.Skipped,
		"total_bytes", sent.bytes,
		"chunks", sent.chunks,
		"duration_sec", elapsed.Seconds(),
	)

	metadata := adapterinfo.ManifestMetadata(m.Total, m.Included, m.Skipped)
	metadata["total_bytes"] = fmt.Sprintf("%d", sent.bytes)
	metadata["total_chunks"] = fmt.Sprintf("%d", sent.chunks)
	metadata["duration_sec"] = fmt.Sprintf("%.2f", elapsed.Seconds())
	metadata["audio_duration_sec"] = fmt.Sprintf("%.2f", clip.Duration().Seconds())
	return s.sendStatus(stream, napv1.SynthesisStatus_SYNTHESIS_STATUS_FINISHED, metadata)
}

// turns reads the request text as a script, or as a topic to write one about.
func (s *Server) turns(ctx context.Context, text string, metadata map[string]string) ([]script.Turn, error) {
	if strings.EqualFold(strings.TrimSpace(metadata[adapterinfo.MetaInput]), adapterinfo.InputTopic) {
		_, turns, err := s.pipeline.GenerateScript(ctx, text)
		return turns, err
	}
	return s.pipeline.Segment(text)
}

// requestConfig applies per-request metadata overrides to a deep copy of the
// configuration, writing tuning values through its pointer fields, and
// validates the result. tuned reports whether any tuning key was present.
func (s *Server) requestConfig(metadata map[string]string) (cfg config.Config, tuned bool, err error) {
	cfg = s.cfg.Clone()
	if v := strings.TrimSpace(metadata[adapterinfo.MetaVoiceHost]); v != "" {
		cfg.HostVoiceID = v
	}
	if v := strings.TrimSpace(metadata[adapterinfo.MetaVoiceGuest]); v != "" {
		cfg.GuestVoiceID = v
	}

	for key, dst := range map[string]**float64{
		adapterinfo.MetaStability:       &cfg.Stability,
		adapterinfo.MetaSimilarityBoost: &cfg.SimilarityBoost,
	} {
		raw := strings.TrimSpace(metadata[key])
		if raw == "" {
			continue
		}
		f, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			return cfg, false, fmt.Errorf("server: invalid %s %q", key, raw)
		}
		setFloat(dst, f)
		tuned = true
	}
	if raw := strings.TrimSpace(metadata[adapterinfo.MetaOptimizeStreamingLatency]); raw != "" {
		n, perr := strconv.Atoi(raw)
		if perr != nil {
			return cfg, false, fmt.Errorf("server: invalid %s %q", adapterinfo.MetaOptimizeStreamingLatency, raw)
		}
		if cfg.OptimizeStreamingLatency != nil {
			*cfg.OptimizeStreamingLatency = n
		} else {
			cfg.OptimizeStreamingLatency = &n
		}
		tuned = true
	}

	if tuned {
		if err := cfg.Validate(); err != nil {
			return cfg, false, fmt.Errorf("server: request overrides: %w", err)
		}
	}
	return cfg, tuned, nil
}

// setFloat writes v through *dst, allocating when the field is unset.
func setFloat(dst **float64, v float64) {
	if *dst != nil {
		**dst = v
		return
	}
	*dst = &v
}

type streamed struct {
	bytes       int
	chunks      uint64
	interrupted error
}

func (s *Server) streamPCM(ctx context.Context, stream napv1.TextToSpeechService_StreamSynthesisServer, clip *audio.Clip, voices podcast.VoiceAssignment) (streamed, error) {
	data := clip.PCM16()
	bytesPerSecond := clip.SampleRate() * clip.Channels() * 2
	chunkMeta := adapterinfo.ChunkMetadata(s.cfg.Synthesizer, voices.Host, voices.Guest)

	var out streamed
	for offset := 0; offset < len(data); offset += chunkSize {
		if err := ctx.Err(); err != nil {
			out.interrupted = err
			return out, nil
		}

		end := min(offset+chunkSize, len(data))
		n := end - offset
		out.chunks++

		chunk := &napv1.AudioChunk{
			Data:     data[offset:end],
			Sequence: out.chunks,
			First:    out.chunks == 1,
			Last:     end == len(data),
			Metadata: chunkMeta,
		}
		if bytesPerSecond > 0 {
			chunk.DurationMs = uint32(n * 1000 / bytesPerSecond)
		}

		resp := &napv1.SynthesisResponse{
			Status: napv1.SynthesisStatus_SYNTHESIS_STATUS_PLAYING,
			Chunk:  chunk,
		}
		if err := stream.Send(resp); err != nil {
			s.log.Error("failed to send audio chunk", "error", err, "sequence", out.chunks)
			return out, err
		}
		out.bytes += n
	}
	return out, nil
}

func (s *Server) sendStatus(stream napv1.TextToSpeechService_StreamSynthesisServer, status napv1.SynthesisStatus, metadata map[string]string) error {
	resp := &napv1.SynthesisResponse{
		Status:   status,
		Metadata: metadata,
	}
	return stream.Send(resp)
}

func (s *Server) sendError(stream napv1.TextToSpeechService_StreamSynthesisServer, message string, metadata map[string]string) error {
	resp := &napv1.SynthesisResponse{
		Status:       napv1.SynthesisStatus_SYNTHESIS_STATUS_ERROR,
		ErrorMessage: message,
		Metadata:     metadata,
	}
	if err := stream.Send(resp); err != nil {
		return err
	}
	return fmt.Errorf("synthesis error: %s", message)
}
