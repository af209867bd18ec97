package wsstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/parlavox/parlavox/pkg/audio"
	"github.com/parlavox/parlavox/pkg/tts"
)

// synthServer is a scripted fake synthesis endpoint: it records the request
// it receives and replies with a fixed response sequence.
type synthServer struct {
	t         *testing.T
	responses []synthResponse
	requests  chan synthRequest
}

func newSynthServer(t *testing.T, responses ...synthResponse) *httptest.Server {
	s := &synthServer{t: t, responses: responses, requests: make(chan synthRequest, 1)}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

func (s *synthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var req synthRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.t.Errorf("server received malformed request: %v", err)
		return
	}
	select {
	case s.requests <- req:
	default:
	}

	for _, resp := range s.responses {
		msg, _ := json.Marshal(resp)
		if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
			return
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func encodeAudio(samples []int16) string {
	return base64.StdEncoding.EncodeToString(audio.EncodePCM16(samples))
}

func drain(t *testing.T, stream <-chan audio.Chunk) []audio.Chunk {
	t.Helper()
	var chunks []audio.Chunk
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-stream:
			if !ok {
				return chunks
			}
			chunks = append(chunks, c)
		case <-deadline:
			t.Fatal("stream never closed")
		}
	}
}

func TestNew_RequiresEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := New("", "key"); err == nil {
		t.Error("New with empty endpoint = nil error, want error")
	}
}

func TestSynthesizeStream_DecodesChunks(t *testing.T) {
	t.Parallel()

	srv := newSynthServer(t,
		synthResponse{Audio: encodeAudio([]int16{0, 16384, -16384}), SampleRate: 16000},
		synthResponse{Audio: encodeAudio([]int16{32767}), SampleRate: 16000, Final: true},
	)

	p, err := New(wsURL(srv), "test-key", WithSampleRate(16000))
	if err != nil {
		t.Fatal(err)
	}

	stream, err := p.SynthesizeStream(context.Background(), tts.Request{
		Text: "hello", SpeakerID: "ada", Speed: 1.2,
	})
	if err != nil {
		t.Fatalf("SynthesizeStream = %v, want nil", err)
	}
	chunks := drain(t, stream)

	if len(chunks) != 2 {
		t.Fatalf("received %d chunks, want 2", len(chunks))
	}
	if chunks[0].SampleRate != 16000 {
		t.Errorf("chunk sample rate = %d, want 16000", chunks[0].SampleRate)
	}

	want := []float32{0, 0.5, -0.5}
	if len(chunks[0].Samples) != len(want) {
		t.Fatalf("chunk 0 has %d samples, want %d", len(chunks[0].Samples), len(want))
	}
	for i := range want {
		if diff := math.Abs(float64(chunks[0].Samples[i] - want[i])); diff > 1e-6 {
			t.Errorf("sample %d = %g, want %g", i, chunks[0].Samples[i], want[i])
		}
	}
}

func TestSynthesizeStream_SendsRequestFields(t *testing.T) {
	t.Parallel()

	s := &synthServer{t: t, requests: make(chan synthRequest, 1),
		responses: []synthResponse{{Final: true}}}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	p, err := New(wsURL(srv), "secret", WithSampleRate(8000))
	if err != nil {
		t.Fatal(err)
	}
	stream, err := p.SynthesizeStream(context.Background(), tts.Request{
		Text: "script text", SpeakerID: "nova", Speed: 0.8,
	})
	if err != nil {
		t.Fatal(err)
	}
	drain(t, stream)

	select {
	case req := <-s.requests:
		if req.Text != "script text" || req.SpeakerID != "nova" || req.Speed != 0.8 {
			t.Errorf("request = %+v, want text/speaker/speed preserved", req)
		}
		if req.APIKey != "secret" || req.SampleRate != 8000 {
			t.Errorf("request = %+v, want api key and sample rate attached", req)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the request")
	}
}

func TestSynthesizeStream_ServerErrorEndsStream(t *testing.T) {
	t.Parallel()

	srv := newSynthServer(t,
		synthResponse{Audio: encodeAudio([]int16{100}), SampleRate: 8000},
		synthResponse{Message: "voice not found"},
	)

	p, err := New(wsURL(srv), "")
	if err != nil {
		t.Fatal(err)
	}
	stream, err := p.SynthesizeStream(context.Background(), tts.Request{Text: "x"})
	if err != nil {
		t.Fatal(err)
	}

	// The first chunk arrives; the error message closes the stream instead
	// of surfacing more audio.
	chunks := drain(t, stream)
	if len(chunks) != 1 {
		t.Errorf("received %d chunks, want 1 before the server error", len(chunks))
	}
}

func TestSynthesizeStream_DialFailure(t *testing.T) {
	t.Parallel()

	p, err := New("ws://127.0.0.1:1/nope", "")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := p.SynthesizeStream(ctx, tts.Request{Text: "x"}); err == nil {
		t.Error("SynthesizeStream against dead endpoint = nil error, want error")
	}
}
