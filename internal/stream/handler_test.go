package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-gateway/internal/engine"
	"github.com/lexiqai/tts-gateway/internal/speech"
	"github.com/lexiqai/tts-gateway/internal/synth"
)

func newMockSynth(t *testing.T) (*synth.Synthesizer, int) {
	t.Helper()
	m := engine.NewMock(engine.MockOptions{SampleRate: 16000, HopLength: 160, FramesPerUnit: 1})
	info, err := m.Info(context.Background())
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	syn, err := synth.New(m, m, info, synth.Options{})
	if err != nil {
		t.Fatalf("synth.New failed: %v", err)
	}
	speaker, err := syn.SpeakerID("EN-AU")
	if err != nil {
		t.Fatalf("SpeakerID failed: %v", err)
	}
	return syn, speaker
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	msg, err := Decode(messageType, data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return msg
}

func TestHandler_StreamsTaggedText(t *testing.T) {
	syn, speaker := newMockSynth(t)
	logger := zerolog.Nop()
	h := NewHandler(syn, Options{
		SpeakerID:       speaker,
		Hyperparameters: speech.DefaultHyperparameters(),
		QueueSize:       4,
		WriteTimeout:    5 * time.Second,
		Logger:          &logger,
	}, HandlerConfig{MaxMessageSize: 1 << 16})

	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/tts/stream"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("Hi. <<smile>> Bye.")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	want := [][]speech.WordTiming{
		{{Word: "Hi.", StartMS: 10}},
		{{Word: "Bye.", StartMS: 10, Tags: []string{"<<smile>>"}}},
	}
	for i, words := range want {
		timing := readMessage(t, conn)
		if timing.Kind != KindTiming || !reflect.DeepEqual(timing.Words, words) {
			t.Errorf("Sentence %d: expected timing %+v, got %+v", i, words, timing)
		}
		pcm := readMessage(t, conn)
		if pcm.Kind != KindAudio || len(pcm.Audio) == 0 || len(pcm.Audio)%2 != 0 {
			t.Errorf("Sentence %d: expected int16 audio, got %v with %d bytes", i, pcm.Kind, len(pcm.Audio))
		}
	}
	if msg := readMessage(t, conn); msg.Kind != KindEndOfUtterance {
		t.Errorf("Expected EOF, got %v", msg.Kind)
	}

	// the connection stays open for the next utterance
	if err := conn.WriteMessage(websocket.TextMessage, []byte("   ")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if msg := readMessage(t, conn); msg.Kind != KindEndOfUtterance {
		t.Errorf("Expected only EOF for blank input, got %v", msg.Kind)
	}
}

func TestHandler_RateLimited(t *testing.T) {
	syn, _ := newMockSynth(t)
	logger := zerolog.Nop()
	limiter := NewRateLimiter(1, 1)
	defer limiter.Close()

	srv := httptest.NewServer(NewHandler(syn, Options{Logger: &logger}, HandlerConfig{Limiter: limiter}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/"), nil)
	if err != nil {
		t.Fatalf("First dial failed: %v", err)
	}
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/"), nil)
	if err == nil {
		t.Fatal("Expected the second dial to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %v", resp)
	}
}

func TestHandler_ForwardedForIgnoredFromUntrustedPeer(t *testing.T) {
	syn, _ := newMockSynth(t)
	logger := zerolog.Nop()
	limiter := NewRateLimiter(1, 1)
	defer limiter.Close()

	h := NewHandler(syn, Options{Logger: &logger}, HandlerConfig{Limiter: limiter})

	allowed := 0
	for i := 0; i < 5; i++ {
		r := httptest.NewRequest("GET", "/tts/stream", nil)
		r.RemoteAddr = "192.0.2.7:5555"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if rec.Code != http.StatusTooManyRequests {
			allowed++
		}
	}
	if allowed != 1 {
		t.Errorf("Expected one request through from a single peer, got %d", allowed)
	}
}

func TestHandler_ForwardedForFromTrustedProxy(t *testing.T) {
	syn, _ := newMockSynth(t)
	logger := zerolog.Nop()
	limiter := NewRateLimiter(1, 1)
	defer limiter.Close()
	proxies, err := NewProxyTrust([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("NewProxyTrust failed: %v", err)
	}

	h := NewHandler(syn, Options{Logger: &logger}, HandlerConfig{Limiter: limiter, Proxies: proxies})

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest("GET", "/tts/stream", nil)
		r.RemoteAddr = "10.1.2.3:443"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if rec.Code == http.StatusTooManyRequests {
			t.Errorf("Request %d: expected distinct clients behind the proxy to get their own bucket", i)
		}
	}
}

func TestHandleEcho(t *testing.T) {
	srv := httptest.NewServer(HandleEcho(zerolog.Nop()))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/websocket"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.WriteMessage(websocket.TextMessage, []byte("ping"))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if string(data) != `Your message was: "ping"` {
		t.Errorf("Unexpected echo: %q", data)
	}
}
