// Package api serves the podcast pipeline over HTTP/JSON.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nupi-ai/plugin-tts-podcast/internal/podcast"
	"github.com/nupi-ai/plugin-tts-podcast/internal/script"
	"github.com/nupi-ai/plugin-tts-podcast/internal/tts"
)

const maxBodyBytes = 1 << 20

// Segment is the wire form of a script turn.
type Segment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type generateScriptRequest struct {
	Topic string `json:"topic"`
}

type generateScriptResponse struct {
	Script   string    `json:"script"`
	Segments []Segment `json:"segments"`
}

type segmentRequest struct {
	Script string `json:"script"`
}

type segmentResponse struct {
	Segments []Segment `json:"segments"`
}

type generateAudioRequest struct {
	Segments   []Segment `json:"segments"`
	HostVoice  string    `json:"host_voice,omitempty"`
	GuestVoice string    `json:"guest_voice,omitempty"`
}

type errorResponse struct {
	Error    string            `json:"error"`
	Message  string            `json:"message"`
	Manifest *podcast.Manifest `json:"manifest,omitempty"`
}

// Handler routes API requests to a pipeline.
type Handler struct {
	pipeline   *podcast.Pipeline
	corsOrigin string
	log        *slog.Logger
	mux        *http.ServeMux
}

// New returns the API handler, instrumented with otelhttp. corsOrigin is sent
// as Access-Control-Allow-Origin; empty disables CORS headers.
func New(pipeline *podcast.Pipeline, corsOrigin string, logger *slog.Logger) http.Handler {
	if pipeline == nil {
		panic("api: pipeline must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		pipeline:   pipeline,
		corsOrigin: corsOrigin,
		log:        logger.With("component", "api"),
		mux:        http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /{$}", h.root)
	h.mux.HandleFunc("GET /api/health", h.health)
	h.mux.HandleFunc("POST /api/generate-script", h.generateScript)
	h.mux.HandleFunc("POST /api/segment", h.segment)
	h.mux.HandleFunc("POST /api/generate-audio", h.generateAudio)

	return otelhttp.NewHandler(h, "podcast-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// ServeHTTP applies CORS and dispatches to the routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.corsOrigin != "" {
		hdr := w.Header()
		hdr.Set("Access-Control-Allow-Origin", h.corsOrigin)
		hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		hdr.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		hdr.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Podcast-Id, X-Podcast-Turns-Total, X-Podcast-Turns-Included, X-Podcast-Turns-Skipped")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the AI Podcast Generator Backend!"})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Backend is running!"})
}

func (h *Handler) generateScript(w http.ResponseWriter, r *http.Request) {
	var req generateScriptRequest
	if !h.decode(w, r, &req) {
		return
	}
	raw, turns, err := h.pipeline.GenerateScript(r.Context(), req.Topic)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateScriptResponse{Script: raw, Segments: toSegments(turns)})
}

func (h *Handler) segment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	turns, err := h.pipeline.Segment(req.Script)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, segmentResponse{Segments: toSegments(turns)})
}

func (h *Handler) generateAudio(w http.ResponseWriter, r *http.Request) {
	var req generateAudioRequest
	if !h.decode(w, r, &req) {
		return
	}
	turns := fromSegments(req.Segments)
	if len(turns) == 0 {
		h.writeError(w, r, podcast.ErrNoSegments)
		return
	}

	voices := h.pipeline.Voices()
	if v := strings.TrimSpace(req.HostVoice); v != "" {
		voices.Host = v
	}
	if v := strings.TrimSpace(req.GuestVoice); v != "" {
		voices.Guest = v
	}

	id := uuid.NewString()
	res, err := h.pipeline.AssembleWithVoices(r.Context(), turns, voices)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.Info("podcast delivered",
		"podcast_id", id,
		"turns_total", res.Manifest.Total,
		"turns_included", res.Manifest.Included,
		"turns_skipped", res.Manifest.Skipped,
		"bytes", len(res.Audio),
	)

	hdr := w.Header()
	hdr.Set("Content-Type", "audio/wav")
	hdr.Set("Content-Disposition", `attachment; filename="podcast.wav"`)
	hdr.Set("Content-Length", strconv.Itoa(len(res.Audio)))
	hdr.Set("X-Podcast-Id", id)
	hdr.Set("X-Podcast-Turns-Total", strconv.Itoa(res.Manifest.Total))
	hdr.Set("X-Podcast-Turns-Included", strconv.Itoa(res.Manifest.Included))
	hdr.Set("X-Podcast-Turns-Skipped", strconv.Itoa(res.Manifest.Skipped))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Audio); err != nil {
		h.log.Warn("failed to write audio response", "podcast_id", id, "error", err)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: decode body: %w", podcast.ErrInvalidInput, err))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := errorResponse{Error: code, Message: err.Error()}

	var asmErr *podcast.AssemblyError
	if errors.As(err, &asmErr) {
		m := asmErr.Manifest
		resp.Manifest = &m
	}

	logEntry := h.log.With("path", r.URL.Path, "status", status, "error", err)
	if status >= http.StatusInternalServerError {
		logEntry.Error("request failed")
	} else {
		logEntry.Warn("request rejected")
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, podcast.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, podcast.ErrNoSegments):
		return http.StatusUnprocessableEntity, "no_segments"
	case errors.Is(err, podcast.ErrUpstreamTextGeneration):
		return http.StatusBadGateway, "upstream_text_generation"
	case errors.Is(err, tts.ErrAuthOrQuota):
		return http.StatusServiceUnavailable, "synthesis_auth_or_quota"
	case errors.Is(err, podcast.ErrAssemblyFailed):
		return http.StatusBadGateway, "assembly_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func toSegments(turns []script.Turn) []Segment {
	out := make([]Segment, len(turns))
	for i, t := range turns {
		out[i] = Segment{Speaker: t.Speaker.String(), Text: t.Text}
	}
	return out
}

// fromSegments drops segments whose text is blank.
func fromSegments(segments []Segment) []script.Turn {
	turns := make([]script.Turn, 0, len(segments))
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		turns = append(turns, script.Turn{Speaker: script.ParseSpeaker(s.Speaker), Text: text})
	}
	return turns
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
