package config

import (
	"fmt"
	"strings"

	"github.com/jinzhu/copier"
)

const (
	// DefaultListenAddr is used when the adapter runner does not inject an explicit address.
	DefaultListenAddr = "127.0.0.1:50051"
	DefaultHTTPAddr   = "127.0.0.1:8000"
	DefaultModel      = "eleven_turbo_v2_5"
	DefaultLogLevel   = "info"
	DefaultLanguage   = "en"

	DefaultTextBaseURL = "https://api.openai.com/v1"
	DefaultTextModel   = "gpt-4o-mini"

	DefaultConcurrency         = 3
	MaxConcurrency             = 16
	DefaultSynthesisTimeoutSec = 30
	DefaultCacheMaxSizeMB      = 100
	DefaultCORSOrigin          = "*"

	// HTTPDisabled as http_addr turns the HTTP API off.
	HTTPDisabled = "-"
)

// Synthesizer backends.
const (
	BackendElevenLabs = "elevenlabs"
	BackendDeepgram   = "deepgram"
	BackendNAP        = "nap"
	BackendStub       = "stub"
)

// Default voices per backend.
var defaultVoices = map[string][2]string{
	BackendElevenLabs: {"UgBBYS2sOqTuMpoF3BR0", "21m00Tcm4TlvDq8ikWAM"}, // Mark, Rachel
	BackendDeepgram:   {"aura-2-thalia-en", "aura-2-apollo-en"},
	BackendNAP:        {"host", "guest"},
	BackendStub:       {"stub-host", "stub-guest"},
}

// Config captures bootstrap configuration extracted from environment variables
// or injected JSON payload (`NUPI_ADAPTER_CONFIG`).
type Config struct {
	ListenAddr string
	HTTPAddr   string
	LogLevel   string

	Synthesizer        string
	UseStubSynthesizer bool

	APIKey         string
	DeepgramAPIKey string
	NAPAddr        string
	Model          string
	Language       string
	HostVoiceID    string
	GuestVoiceID   string

	// ElevenLabs voice settings (optional)
	Stability                *float64
	SimilarityBoost          *float64
	OptimizeStreamingLatency *int

	TextAPIKey       string
	TextBaseURL      string
	TextModel        string
	UseStubGenerator bool

	Concurrency         int
	SynthesisTimeoutSec int

	CacheDir       string
	CacheMaxSizeMB int

	CORSOrigin string
}

// Validate applies defaults and raises an error when required fields are missing.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = DefaultHTTPAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	c.Synthesizer = strings.ToLower(strings.TrimSpace(c.Synthesizer))
	if c.UseStubSynthesizer {
		c.Synthesizer = BackendStub
	}
	if c.Synthesizer == "" {
		c.Synthesizer = BackendElevenLabs
	}
	voices, ok := defaultVoices[c.Synthesizer]
	if !ok {
		return fmt.Errorf("config: unknown synthesizer %q", c.Synthesizer)
	}

	switch c.Synthesizer {
	case BackendElevenLabs:
		if c.APIKey == "" {
			return fmt.Errorf("config: api_key is required for the elevenlabs synthesizer")
		}
	case BackendDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("config: deepgram_api_key is required for the deepgram synthesizer")
		}
	case BackendNAP:
		if c.NAPAddr == "" {
			return fmt.Errorf("config: nap_addr is required for the nap synthesizer")
		}
	}

	if c.HostVoiceID == "" {
		c.HostVoiceID = voices[0]
	}
	if c.GuestVoiceID == "" {
		c.GuestVoiceID = voices[1]
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	c.Language = strings.ToLower(strings.TrimSpace(c.Language))
	if c.Language == "" {
		c.Language = DefaultLanguage
	}

	if !c.UseStubGenerator && c.TextAPIKey == "" {
		return fmt.Errorf("config: text_api_key is required unless use_stub_generator is set")
	}
	if c.TextBaseURL == "" {
		c.TextBaseURL = DefaultTextBaseURL
	}
	c.TextBaseURL = strings.TrimRight(c.TextBaseURL, "/")
	if c.TextModel == "" {
		c.TextModel = DefaultTextModel
	}

	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return fmt.Errorf("config: concurrency must be between 1 and %d, got %d", MaxConcurrency, c.Concurrency)
	}
	if c.SynthesisTimeoutSec == 0 {
		c.SynthesisTimeoutSec = DefaultSynthesisTimeoutSec
	}
	if c.SynthesisTimeoutSec < 0 {
		return fmt.Errorf("config: synthesis_timeout_sec must not be negative, got %d", c.SynthesisTimeoutSec)
	}
	if c.CacheMaxSizeMB < 0 {
		return fmt.Errorf("config: cache_max_size_mb must not be negative, got %d", c.CacheMaxSizeMB)
	}
	if c.CORSOrigin == "" {
		c.CORSOrigin = DefaultCORSOrigin
	}

	if c.Stability != nil {
		if *c.Stability < 0.0 || *c.Stability > 1.0 {
			return fmt.Errorf("config: stability must be between 0.0 and 1.0, got %f", *c.Stability)
		}
	}
	if c.SimilarityBoost != nil {
		if *c.SimilarityBoost < 0.0 || *c.SimilarityBoost > 1.0 {
			return fmt.Errorf("config: similarity_boost must be between 0.0 and 1.0, got %f", *c.SimilarityBoost)
		}
	}
	if c.OptimizeStreamingLatency != nil {
		if *c.OptimizeStreamingLatency < 0 || *c.OptimizeStreamingLatency > 4 {
			return fmt.Errorf("config: optimize_streaming_latency must be between 0 and 4, got %d", *c.OptimizeStreamingLatency)
		}
	}

	return nil
}

// HTTPEnabled reports whether the HTTP API should be served.
func (c Config) HTTPEnabled() bool {
	return c.HTTPAddr != "" && c.HTTPAddr != HTTPDisabled
}

// CacheEnabled reports whether synthesized turns should be cached on disk.
func (c Config) CacheEnabled() bool {
	return c.CacheDir != "" && c.CacheMaxSizeMB > 0
}

// Clone returns a deep copy, so per-request overrides never touch shared
// pointer fields.
func (c Config) Clone() Config {
	var out Config
	if err := copier.CopyWithOption(&out, &c, copier.Option{DeepCopy: true}); err != nil {
		return c
	}
	return out
}
