// Package tts defines the speech synthesis capability shared by the provider
// backends and the podcast assembler.
package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Synthesizer renders text with the given voice and returns an encoded audio
// clip (a WAV container).
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, text, voiceID string) ([]byte, error)

// Synthesize calls f.
func (f SynthesizerFunc) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	return f(ctx, text, voiceID)
}

var (
	// ErrAuthOrQuota is wrapped by backends when the provider rejected the
	// credentials or the account ran out of quota. Retrying other turns will
	// not help.
	ErrAuthOrQuota = errors.New("tts: provider rejected credentials or quota exhausted")

	// ErrRateLimited is wrapped by backends when the provider throttled a
	// single request. Other turns may still succeed.
	ErrRateLimited = errors.New("tts: provider rate limited the request")
)

// StatusError maps an HTTP status code to ErrAuthOrQuota or ErrRateLimited,
// or nil for any other status.
func StatusError(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
		return ErrAuthOrQuota
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// Tuning overrides voice settings for the synthesis calls made under one
// context. Nil fields keep the backend's configured value. Backends without
// such settings ignore it.
type Tuning struct {
	Stability                *float64
	SimilarityBoost          *float64
	OptimizeStreamingLatency *int
}

// Key renders the set fields in a stable form for cache keys.
func (t Tuning) Key() string {
	var parts []string
	if t.Stability != nil {
		parts = append(parts, fmt.Sprintf("s%.3f", *t.Stability))
	}
	if t.SimilarityBoost != nil {
		parts = append(parts, fmt.Sprintf("b%.3f", *t.SimilarityBoost))
	}
	if t.OptimizeStreamingLatency != nil {
		parts = append(parts, fmt.Sprintf("l%d", *t.OptimizeStreamingLatency))
	}
	return strings.Join(parts, "/")
}

type tuningKey struct{}

// WithTuning returns a context carrying t.
func WithTuning(ctx context.Context, t Tuning) context.Context {
	return context.WithValue(ctx, tuningKey{}, t)
}

// TuningFrom returns the tuning attached by WithTuning.
func TuningFrom(ctx context.Context) (Tuning, bool) {
	t, ok := ctx.Value(tuningKey{}).(Tuning)
	return t, ok
}
