// Package app wires configuration into a ready podcast pipeline. Both the
// adapter and the CLI build their components here.
package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nupi-ai/plugin-tts-podcast/internal/cache"
	"github.com/nupi-ai/plugin-tts-podcast/internal/config"
	"github.com/nupi-ai/plugin-tts-podcast/internal/deepgram"
	"github.com/nupi-ai/plugin-tts-podcast/internal/elevenlabs"
	"github.com/nupi-ai/plugin-tts-podcast/internal/nap"
	"github.com/nupi-ai/plugin-tts-podcast/internal/podcast"
	"github.com/nupi-ai/plugin-tts-podcast/internal/scriptgen"
	"github.com/nupi-ai/plugin-tts-podcast/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-podcast/internal/tts"
)

// Components holds everything built from a Config.
type Components struct {
	Pipeline    *podcast.Pipeline
	Synthesizer tts.Synthesizer
	Cache       *cache.Cache // nil when caching is disabled

	closers []func() error
}

// Close releases backend connections.
func (c *Components) Close() error {
	var firstErr error
	for _, fn := range c.closers {
		if err := fn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build constructs the synthesizer backend, the optional cache, the script
// generator and the pipeline described by cfg.
func Build(cfg config.Config, logger *slog.Logger, recorder *telemetry.Recorder) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	comps := &Components{}

	synth, variant, err := comps.newSynthesizer(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.CacheEnabled() {
		audioCache, err := cache.New(cfg.CacheDir, int64(cfg.CacheMaxSizeMB)*1024*1024, logger)
		if err != nil {
			logger.Warn("failed to initialize cache, continuing without", "error", err)
		} else {
			comps.Cache = audioCache
			synth = cache.NewSynthesizer(synth, audioCache, variant)
			logger.Info("turn cache initialized", "dir", cfg.CacheDir, "max_size_mb", cfg.CacheMaxSizeMB)
		}
	}
	comps.Synthesizer = synth

	var generator podcast.ScriptGenerator
	if cfg.UseStubGenerator {
		generator = scriptgen.StubGenerator{}
		logger.Info("using STUB script generator")
	} else {
		generator = scriptgen.NewClient(cfg.TextAPIKey, cfg.TextBaseURL, cfg.TextModel, logger)
	}

	assembler := podcast.NewAssembler(synth, podcast.WAVCodec{}, podcast.AssemblerOptions{
		Concurrency: cfg.Concurrency,
		TurnTimeout: time.Duration(cfg.SynthesisTimeoutSec) * time.Second,
	}, logger, recorder)

	comps.Pipeline = podcast.NewPipeline(generator, assembler,
		podcast.VoiceAssignment{Host: cfg.HostVoiceID, Guest: cfg.GuestVoiceID}, logger)
	return comps, nil
}

// newSynthesizer returns the backend for cfg.Synthesizer and the cache
// variant that identifies its audio.
func (c *Components) newSynthesizer(cfg config.Config, logger *slog.Logger) (tts.Synthesizer, string, error) {
	switch cfg.Synthesizer {
	case config.BackendStub:
		logger.Info("using STUB synthesizer, audio is a deterministic tone per voice")
		return elevenlabs.NewTTS(elevenlabs.NewStubSynthesizer(logger), elevenlabs.Options{}), config.BackendStub, nil

	case config.BackendElevenLabs:
		opts := elevenlabs.Options{
			Model:                    cfg.Model,
			LanguageCode:             cfg.Language,
			Stability:                cfg.Stability,
			SimilarityBoost:          cfg.SimilarityBoost,
			OptimizeStreamingLatency: cfg.OptimizeStreamingLatency,
		}
		logger.Info("ElevenLabs client initialized", "model", cfg.Model)
		return elevenlabs.NewTTS(elevenlabs.NewClient(cfg.APIKey), opts), elevenLabsVariant(opts), nil

	case config.BackendDeepgram:
		logger.Info("Deepgram client initialized")
		return deepgram.NewClient(cfg.DeepgramAPIKey, deepgram.WithLogger(logger)), config.BackendDeepgram, nil

	case config.BackendNAP:
		synth, conn, err := nap.Dial(cfg.NAPAddr, logger)
		if err != nil {
			return nil, "", err
		}
		c.closers = append(c.closers, conn.Close)
		logger.Info("remote NAP synthesizer connected", "addr", cfg.NAPAddr)
		return synth, config.BackendNAP + "/" + cfg.NAPAddr, nil
	}
	return nil, "", fmt.Errorf("app: unknown synthesizer %q", cfg.Synthesizer)
}

func elevenLabsVariant(opts elevenlabs.Options) string {
	v := strings.Join([]string{config.BackendElevenLabs, opts.Model, opts.LanguageCode}, "/")
	tuning := tts.Tuning{
		Stability:                opts.Stability,
		SimilarityBoost:          opts.SimilarityBoost,
		OptimizeStreamingLatency: opts.OptimizeStreamingLatency,
	}
	if k := tuning.Key(); k != "" {
		v += "/" + k
	}
	return v
}
