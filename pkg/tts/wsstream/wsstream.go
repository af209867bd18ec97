// Package wsstream provides a tts.Provider backed by a WebSocket streaming
// synthesis service. It speaks a small JSON protocol: one request message
// out, then a sequence of base64-encoded PCM16 audio messages back until
// the server marks the stream final.
package wsstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/parlavox/parlavox/pkg/audio"
	"github.com/parlavox/parlavox/pkg/tts"
)

const defaultChunkBuf = 64

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithHTTPClient sets the HTTP client used for the WebSocket dial.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithSampleRate requests a specific synthesis output rate in Hz.
// Zero lets the server choose; the rate actually used is reported per chunk.
func WithSampleRate(hz int) Option {
	return func(p *Provider) { p.sampleRate = hz }
}

// Provider implements tts.Provider over a WebSocket synthesis endpoint.
// Safe for concurrent use; each request opens its own connection.
type Provider struct {
	endpoint   string
	apiKey     string
	sampleRate int
	httpClient *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Provider for the given ws:// or wss:// endpoint.
func New(endpoint, apiKey string, opts ...Option) (*Provider, error) {
	if endpoint == "" {
		return nil, errors.New("wsstream: endpoint must not be empty")
	}
	p := &Provider{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- Wire message types ----

// synthRequest is the JSON payload that opens a synthesis stream.
type synthRequest struct {
	Text       string  `json:"text"`
	SpeakerID  string  `json:"speaker_id,omitempty"`
	Speed      float64 `json:"speed,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	APIKey     string  `json:"api_key,omitempty"`
}

// synthResponse is one JSON message received from the server.
type synthResponse struct {
	Audio      string `json:"audio"` // base64 little-endian PCM16
	SampleRate int    `json:"sample_rate"`
	Final      bool   `json:"final"`
	Message    string `json:"message,omitempty"` // error or info
}

// SynthesizeStream dials the endpoint, sends the synthesis request, and
// returns a channel emitting decoded float chunks.
//
// The channel is closed when the server marks the stream final, on any
// read/decode failure (logged, stream ends early), or when ctx is cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, req tts.Request) (<-chan audio.Chunk, error) {
	conn, _, err := websocket.Dial(ctx, p.endpoint, &websocket.DialOptions{
		HTTPClient: p.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("wsstream: dial %s: %w", p.endpoint, err)
	}

	msg, err := json.Marshal(synthRequest{
		Text:       req.Text,
		SpeakerID:  req.SpeakerID,
		Speed:      req.Speed,
		SampleRate: p.sampleRate,
		APIKey:     p.apiKey,
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "marshal request")
		return nil, fmt.Errorf("wsstream: marshal request: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		conn.Close(websocket.StatusInternalError, "send request")
		return nil, fmt.Errorf("wsstream: send request: %w", err)
	}

	out := make(chan audio.Chunk, defaultChunkBuf)

	go func() {
		defer close(out)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("tts stream read failed", "endpoint", p.endpoint, "err", err)
				}
				return
			}

			var resp synthResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				slog.Warn("tts stream sent malformed message", "endpoint", p.endpoint, "err", err)
				return
			}
			if resp.Message != "" {
				slog.Warn("tts stream reported error", "endpoint", p.endpoint, "message", resp.Message)
				return
			}

			if resp.Audio != "" {
				pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
				if err != nil {
					slog.Warn("tts stream sent undecodable audio", "endpoint", p.endpoint, "err", err)
					return
				}
				chunk := audio.Chunk{
					Samples:    pcm16ToFloat(pcm),
					SampleRate: resp.SampleRate,
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}

			if resp.Final {
				return
			}
		}
	}()

	return out, nil
}

// pcm16ToFloat converts little-endian PCM16 bytes to float32 samples in
// [-1, 1).
func pcm16ToFloat(pcm []byte) []float32 {
	samples := audio.DecodePCM16(pcm)
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}
