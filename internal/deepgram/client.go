// Package deepgram synthesizes turns over Deepgram's streaming speak websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nupi-ai/plugin-tts-podcast/internal/audio"
	"github.com/nupi-ai/plugin-tts-podcast/internal/tts"
)

const (
	DefaultEndpoint   = "wss://api.deepgram.com/v1/speak"
	DefaultSampleRate = 16000

	maxErrorBody = 4096
)

// HandshakeError is returned when Deepgram refuses the websocket upgrade.
type HandshakeError struct {
	StatusCode int
	Body       string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("deepgram: handshake status %d: %s", e.StatusCode, e.Body)
}

func (e *HandshakeError) Unwrap() error {
	return tts.StatusError(e.StatusCode)
}

// Client opens one speak socket per turn and collects the linear16 audio it
// streams back until the server acknowledges the flush.
type Client struct {
	apiKey     string
	endpoint   string
	sampleRate int
	dialer     *websocket.Dialer
	log        *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithEndpoint points the client at a different speak endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithSampleRate sets the requested linear16 sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Client) { c.sampleRate = rate }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// NewClient creates a Deepgram client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		endpoint:   DefaultEndpoint,
		sampleRate: DefaultSampleRate,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "deepgram")
	return c
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type serverMessage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	ErrMsg      string `json:"err_msg"`
}

// Synthesize implements tts.Synthesizer. voiceID is a Deepgram model name
// such as "aura-2-thalia-en".
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if voiceID == "" {
		return nil, fmt.Errorf("deepgram: voice is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("deepgram: text is required")
	}

	conn, err := c.dial(ctx, voiceID)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	if err := conn.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
		return nil, fmt.Errorf("deepgram: send text: %w", err)
	}
	if err := conn.WriteJSON(speakMessage{Type: "Flush"}); err != nil {
		return nil, fmt.Errorf("deepgram: flush: %w", err)
	}

	pcm, err := c.collect(ctx, conn)
	if err != nil {
		return nil, err
	}
	// Best effort; the socket is closed right after.
	_ = conn.WriteJSON(speakMessage{Type: "Close"})

	if len(pcm) == 0 {
		return nil, nil
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	c.log.Debug("turn synthesized", "voice", voiceID, "bytes", len(pcm))
	return audio.WrapPCM16(pcm, c.sampleRate, 1)
}

func (c *Client) dial(ctx context.Context, voiceID string) (*websocket.Conn, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("deepgram: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(c.sampleRate))
	q.Set("model", voiceID)
	q.Set("container", "none")
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	return conn, nil
}

func (c *Client) collect(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var pcm []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("deepgram: %w", ctxErr)
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return pcm, nil
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			pcm = append(pcm, msg...)
		case websocket.TextMessage:
			var parsed serverMessage
			if err := json.Unmarshal(msg, &parsed); err != nil {
				c.log.Debug("ignoring unparseable message", "error", err)
				continue
			}
			switch parsed.Type {
			case "Flushed":
				return pcm, nil
			case "Error":
				detail := parsed.Description
				if detail == "" {
					detail = parsed.ErrMsg
				}
				return nil, errors.New("deepgram: server error: " + detail)
			case "Warning":
				c.log.Warn("server warning", "description", parsed.Description)
			}
		}
	}
}
