package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Loader loads configuration from environment variables. Tests can override
// Lookup to inject deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
}

// Load retrieves the adapter configuration from environment variables and validates it.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	cfg := Config{
		ListenAddr:     DefaultListenAddr,
		CacheMaxSizeMB: DefaultCacheMaxSizeMB,
	}

	if raw, ok := l.Lookup("NUPI_ADAPTER_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		if err := applyJSON(raw, &cfg); err != nil {
			return Config{}, err
		}
	}

	overrideString(l.Lookup, "NUPI_ADAPTER_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "NUPI_ADAPTER_HTTP_ADDR", &cfg.HTTPAddr)
	overrideString(l.Lookup, "NUPI_LOG_LEVEL", &cfg.LogLevel)
	if cfg.APIKey == "" {
		overrideString(l.Lookup, "ELEVENLABS_API_KEY", &cfg.APIKey)
	}
	if cfg.DeepgramAPIKey == "" {
		overrideString(l.Lookup, "DEEPGRAM_API_KEY", &cfg.DeepgramAPIKey)
	}
	if cfg.TextAPIKey == "" {
		overrideString(l.Lookup, "OPENAI_API_KEY", &cfg.TextAPIKey)
	}
	if err := overrideBool(l.Lookup, "NUPI_ADAPTER_USE_STUB_SYNTHESIZER", &cfg.UseStubSynthesizer); err != nil {
		return Config{}, err
	}
	if err := overrideBool(l.Lookup, "NUPI_ADAPTER_USE_STUB_GENERATOR", &cfg.UseStubGenerator); err != nil {
		return Config{}, err
	}

	// Default cache directory
	if cfg.CacheDir == "" {
		if dataDir, ok := l.Lookup("NUPI_ADAPTER_DATA_DIR"); ok && dataDir != "" {
			cfg.CacheDir = filepath.Join(dataDir, "cache")
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyJSON(raw string, cfg *Config) error {
	type jsonConfig struct {
		ListenAddr               string   `json:"listen_addr"`
		HTTPAddr                 string   `json:"http_addr"`
		LogLevel                 string   `json:"log_level"`
		Synthesizer              string   `json:"synthesizer"`
		UseStubSynthesizer       bool     `json:"use_stub_synthesizer"`
		APIKey                   string   `json:"api_key"`
		DeepgramAPIKey           string   `json:"deepgram_api_key"`
		NAPAddr                  string   `json:"nap_addr"`
		Model                    string   `json:"model"`
		Language                 string   `json:"language"`
		HostVoiceID              string   `json:"host_voice_id"`
		GuestVoiceID             string   `json:"guest_voice_id"`
		Stability                *float64 `json:"stability"`
		SimilarityBoost          *float64 `json:"similarity_boost"`
		OptimizeStreamingLatency *int     `json:"optimize_streaming_latency"`
		TextAPIKey               string   `json:"text_api_key"`
		TextBaseURL              string   `json:"text_base_url"`
		TextModel                string   `json:"text_model"`
		UseStubGenerator         bool     `json:"use_stub_generator"`
		Concurrency              *int     `json:"concurrency"`
		SynthesisTimeoutSec      *int     `json:"synthesis_timeout_sec"`
		CacheDir                 string   `json:"cache_dir"`
		CacheMaxSizeMB           *int     `json:"cache_max_size_mb"`
		CORSOrigin               string   `json:"cors_origin"`
	}
	var payload jsonConfig
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("config: decode NUPI_ADAPTER_CONFIG: %w", err)
	}

	assignString(&cfg.ListenAddr, payload.ListenAddr)
	assignString(&cfg.HTTPAddr, payload.HTTPAddr)
	assignString(&cfg.LogLevel, payload.LogLevel)
	assignString(&cfg.Synthesizer, payload.Synthesizer)
	assignString(&cfg.APIKey, payload.APIKey)
	assignString(&cfg.DeepgramAPIKey, payload.DeepgramAPIKey)
	assignString(&cfg.NAPAddr, payload.NAPAddr)
	assignString(&cfg.Model, payload.Model)
	assignString(&cfg.Language, payload.Language)
	assignString(&cfg.HostVoiceID, payload.HostVoiceID)
	assignString(&cfg.GuestVoiceID, payload.GuestVoiceID)
	assignString(&cfg.TextAPIKey, payload.TextAPIKey)
	assignString(&cfg.TextBaseURL, payload.TextBaseURL)
	assignString(&cfg.TextModel, payload.TextModel)
	assignString(&cfg.CacheDir, payload.CacheDir)
	assignString(&cfg.CORSOrigin, payload.CORSOrigin)

	cfg.UseStubSynthesizer = payload.UseStubSynthesizer
	cfg.UseStubGenerator = payload.UseStubGenerator

	if payload.Stability != nil {
		assignFloat64Ptr(&cfg.Stability, *payload.Stability)
	}
	if payload.SimilarityBoost != nil {
		assignFloat64Ptr(&cfg.SimilarityBoost, *payload.SimilarityBoost)
	}
	if payload.OptimizeStreamingLatency != nil {
		assignIntPtr(&cfg.OptimizeStreamingLatency, *payload.OptimizeStreamingLatency)
	}
	if payload.Concurrency != nil {
		cfg.Concurrency = *payload.Concurrency
	}
	if payload.SynthesisTimeoutSec != nil {
		cfg.SynthesisTimeoutSec = *payload.SynthesisTimeoutSec
	}
	if payload.CacheMaxSizeMB != nil {
		cfg.CacheMaxSizeMB = *payload.CacheMaxSizeMB
	}
	return nil
}

func assignString(target *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*target = v
	}
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = b
	return nil
}

func assignFloat64Ptr(target **float64, value float64) {
	v := value
	*target = &v
}

func assignIntPtr(target **int, value int) {
	v := value
	*target = &v
}
