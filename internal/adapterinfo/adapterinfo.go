// Package adapterinfo exposes the adapter identity declared in plugin.yaml and
// the metadata keys exchanged with NAP peers.
package adapterinfo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata keys understood or emitted by the adapter.
const (
	// MetaVoiceID carries the voice a remote adapter should use for one turn.
	MetaVoiceID = "voice_id"
	// MetaVoiceHost and MetaVoiceGuest override the configured voices for a
	// single StreamSynthesis request.
	MetaVoiceHost  = "podcast.voice.host"
	MetaVoiceGuest = "podcast.voice.guest"
	// MetaInput selects how StreamSynthesis reads its text: InputScript
	// (default) or InputTopic.
	MetaInput = "podcast.input"
	// Voice tuning overrides for a single request. Values use the same
	// ranges as the matching config keys.
	MetaStability                = "podcast.stability"
	MetaSimilarityBoost          = "podcast.similarity_boost"
	MetaOptimizeStreamingLatency = "podcast.optimize_streaming_latency"

	InputScript = "script"
	InputTopic  = "topic"

	MetaTurnsTotal    = "turns_total"
	MetaTurnsIncluded = "turns_included"
	MetaTurnsSkipped  = "turns_skipped"
)

// Metadata captures static identifiers for the adapter.
type Metadata struct {
	Name        string
	BinaryName  string
	Slug        string
	Description string
	GeneratorID string
	Version     string
	Slot        string
}

// Info describes the current adapter.
var Info = mustLoadMetadata()

// ChunkMetadata is attached to every emitted audio chunk.
func ChunkMetadata(backend string, hostVoice, guestVoice string) map[string]string {
	return map[string]string{
		"generator":    Info.GeneratorID,
		"synthesizer":  backend,
		MetaVoiceHost:  hostVoice,
		MetaVoiceGuest: guestVoice,
	}
}

// ManifestMetadata renders turn counts for the FINISHED status.
func ManifestMetadata(total, included, skipped int) map[string]string {
	return map[string]string{
		MetaTurnsTotal:    strconv.Itoa(total),
		MetaTurnsIncluded: strconv.Itoa(included),
		MetaTurnsSkipped:  strconv.Itoa(skipped),
	}
}

// Version returns the adapter semantic version.
func Version() string {
	return Info.Version
}

func mustLoadMetadata() Metadata {
	data, err := loadManifest()
	if err != nil {
		panic(err)
	}
	meta, err := parseManifest(data)
	if err != nil {
		panic(err)
	}
	return meta
}

// loadManifest looks for plugin.yaml next to the binary, in the working
// directory and at the source root, in that order.
func loadManifest() ([]byte, error) {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if _, file, _, ok := runtime.Caller(0); ok {
		dirs = append(dirs, filepath.Join(filepath.Dir(file), "..", ".."))
	}

	tried := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		path := filepath.Join(filepath.Clean(dir), "plugin.yaml")
		if tried[path] {
			continue
		}
		tried[path] = true
		if data, err := os.ReadFile(path); err == nil {
			return data, nil
		}
	}
	return nil, errors.New("adapterinfo: plugin.yaml not found next to binary or source tree")
}

type manifest struct {
	Metadata struct {
		Name        string `yaml:"name"`
		Slug        string `yaml:"slug"`
		Description string `yaml:"description"`
		Version     string `yaml:"version"`
		Generator   string `yaml:"generator"`
	} `yaml:"metadata"`
	Spec struct {
		Slot       string `yaml:"slot"`
		Entrypoint struct {
			Command string `yaml:"command"`
		} `yaml:"entrypoint"`
	} `yaml:"spec"`
}

func parseManifest(data []byte) (Metadata, error) {
	var doc manifest
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Metadata{}, fmt.Errorf("adapterinfo: decode manifest: %w", err)
	}

	meta := Metadata{
		Name:        strings.TrimSpace(doc.Metadata.Name),
		Slug:        strings.TrimSpace(doc.Metadata.Slug),
		Description: strings.TrimSpace(doc.Metadata.Description),
		Version:     strings.TrimSpace(doc.Metadata.Version),
		GeneratorID: strings.TrimSpace(doc.Metadata.Generator),
		Slot:        strings.TrimSpace(doc.Spec.Slot),
		BinaryName:  strings.TrimPrefix(strings.TrimSpace(doc.Spec.Entrypoint.Command), "./"),
	}

	switch {
	case meta.Version == "":
		return Metadata{}, fmt.Errorf("adapterinfo: metadata.version missing in manifest")
	case meta.Slug == "":
		return Metadata{}, fmt.Errorf("adapterinfo: metadata.slug missing in manifest")
	}
	meta.Name = firstNonEmpty(meta.Name, meta.Slug)
	meta.Description = firstNonEmpty(meta.Description, meta.Name)
	meta.BinaryName = firstNonEmpty(meta.BinaryName, meta.Slug)
	meta.GeneratorID = firstNonEmpty(meta.GeneratorID, meta.Slug)
	return meta, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
