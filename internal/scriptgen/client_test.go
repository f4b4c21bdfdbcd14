package scriptgen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nupi-ai/plugin-tts-podcast/internal/script"
)

func TestGenerateSendsChatRequest(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer oa-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Host: Hi.\nGuest: Hello.  "}}]}`))
	}))
	defer srv.Close()

	client := NewClient("oa-key", srv.URL+"/v1/", "test-model", nil)
	text, err := client.Generate(context.Background(), "tide pools")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Host: Hi.\nGuest: Hello." {
		t.Errorf("text = %q", text)
	}
	if got.Model != "test-model" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if !strings.Contains(got.Messages[1].Content, "tide pools") {
		t.Errorf("user message %q does not mention the topic", got.Messages[1].Content)
	}
}

func TestGenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient("bad", srv.URL, "", nil).Generate(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || !strings.Contains(apiErr.Body, "invalid key") {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestGenerateMalformedResponses(t *testing.T) {
	tests := map[string]string{
		"not json":   `nope`,
		"no choices": `{"choices":[]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			if _, err := NewClient("k", srv.URL, "", nil).Generate(context.Background(), "x"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("k", "", "", nil)
	if c.baseURL != DefaultBaseURL || c.model != DefaultModel {
		t.Errorf("baseURL=%q model=%q", c.baseURL, c.model)
	}
}

func TestStubGeneratorSegments(t *testing.T) {
	text, err := StubGenerator{}.Generate(context.Background(), "volcanoes")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	turns := script.Segment(text)
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	want := []script.Speaker{script.Host, script.Guest, script.Host}
	for i, turn := range turns {
		if turn.Speaker != want[i] {
			t.Errorf("turn %d speaker = %v, want %v", i, turn.Speaker, want[i])
		}
	}
	if !strings.Contains(turns[0].Text, "volcanoes") {
		t.Errorf("first turn %q does not mention the topic", turns[0].Text)
	}
}
