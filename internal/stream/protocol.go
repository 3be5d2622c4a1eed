// Package stream serves synthesized speech over a websocket.
//
// Each text message from the client is one utterance. For every sentence the
// server sends a text frame holding a JSON array of word timings followed by
// a binary frame of little-endian int16 PCM. After the last sentence it sends
// a text frame with the literal payload EOF. An utterance that fails sends an
// aborted JSON object instead of EOF; the connection stays open for the next
// text.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/tts-gateway/internal/speech"
)

// EndOfUtterance is the payload of the text frame closing an utterance.
const EndOfUtterance = "EOF"

// Kind identifies a server to client message.
type Kind int

const (
	KindTiming Kind = iota + 1
	KindAudio
	KindEndOfUtterance
	KindAborted
)

func (k Kind) String() string {
	switch k {
	case KindTiming:
		return "timing"
	case KindAudio:
		return "audio"
	case KindEndOfUtterance:
		return "eof"
	case KindAborted:
		return "aborted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Aborted tells the client an utterance ended without EOF.
type Aborted struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
	Reason      string `json:"reason"`
}

// Message is one frame of the server to client stream. Only the field
// matching Kind is set.
type Message struct {
	Kind    Kind
	Words   []speech.WordTiming
	Audio   []byte
	Aborted *Aborted
}

// Encode returns the websocket frame type and payload for m.
func Encode(m Message) (int, []byte, error) {
	switch m.Kind {
	case KindTiming:
		words := m.Words
		if words == nil {
			words = []speech.WordTiming{}
		}
		data, err := speech.EncodeJSON(words)
		if err != nil {
			return 0, nil, fmt.Errorf("encode timing: %w", err)
		}
		return websocket.TextMessage, data, nil
	case KindAudio:
		return websocket.BinaryMessage, m.Audio, nil
	case KindEndOfUtterance:
		return websocket.TextMessage, []byte(EndOfUtterance), nil
	case KindAborted:
		if m.Aborted == nil {
			return 0, nil, fmt.Errorf("aborted message without payload")
		}
		a := *m.Aborted
		a.Type = "aborted"
		data, err := speech.EncodeJSON(a)
		if err != nil {
			return 0, nil, fmt.Errorf("encode aborted: %w", err)
		}
		return websocket.TextMessage, data, nil
	default:
		return 0, nil, fmt.Errorf("unknown message kind %v", m.Kind)
	}
}

// Decode parses a frame received from the server.
func Decode(messageType int, data []byte) (Message, error) {
	if messageType == websocket.BinaryMessage {
		return Message{Kind: KindAudio, Audio: data}, nil
	}
	if messageType != websocket.TextMessage {
		return Message{}, fmt.Errorf("unexpected frame type %d", messageType)
	}

	trimmed := bytes.TrimSpace(data)
	switch {
	case string(trimmed) == EndOfUtterance:
		return Message{Kind: KindEndOfUtterance}, nil
	case bytes.HasPrefix(trimmed, []byte("[")):
		var words []speech.WordTiming
		if err := json.Unmarshal(trimmed, &words); err != nil {
			return Message{}, fmt.Errorf("decode timing: %w", err)
		}
		return Message{Kind: KindTiming, Words: words}, nil
	case bytes.HasPrefix(trimmed, []byte("{")):
		var a Aborted
		if err := json.Unmarshal(trimmed, &a); err != nil {
			return Message{}, fmt.Errorf("decode aborted: %w", err)
		}
		if a.Type != "aborted" {
			return Message{}, fmt.Errorf("unknown message type %q", a.Type)
		}
		return Message{Kind: KindAborted, Aborted: &a}, nil
	default:
		return Message{}, fmt.Errorf("unrecognized text frame %q", truncate(trimmed, 32))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
