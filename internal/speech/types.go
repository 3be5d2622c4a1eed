// Package speech holds the data model shared by the synthesis pipeline and
// the contracts of its external collaborators (linguistic frontend and
// inference engine).
package speech

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Slot is one position of the phoneme sequence fed to the inference engine.
// It is either a Sentinel (boundary/blank) or a Word.
type Slot interface {
	isSlot()
}

// Sentinel is a boundary slot that carries no word.
type Sentinel struct{}

// Word is a word-bearing slot. TagCount is the number of queued tags that
// immediately preceded this word in the original text.
type Word struct {
	Text     string
	TagCount int
}

func (Sentinel) isSlot() {}
func (Word) isSlot()     {}

// wordWire is the extractor's JSON form of a word slot.
type wordWire struct {
	Word     string `json:"word"`
	TagCount int    `json:"tag_count"`
}

// DecodeSlots converts the extractor's wire form (null for a sentinel, an
// object for a word) into typed slots.
func DecodeSlots(raw []json.RawMessage) ([]Slot, error) {
	slots := make([]Slot, len(raw))
	for i, r := range raw {
		trimmed := bytes.TrimSpace(r)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			slots[i] = Sentinel{}
			continue
		}
		var w wordWire
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return nil, fmt.Errorf("decode slot %d: %w", i, err)
		}
		if w.TagCount < 0 {
			return nil, fmt.Errorf("decode slot %d: negative tag_count %d", i, w.TagCount)
		}
		slots[i] = Word{Text: w.Word, TagCount: w.TagCount}
	}
	return slots, nil
}

// EncodeSlots is the inverse of DecodeSlots.
func EncodeSlots(slots []Slot) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(slots))
	for i, s := range slots {
		switch v := s.(type) {
		case Word:
			b, err := EncodeJSON(wordWire{Word: v.Text, TagCount: v.TagCount})
			if err != nil {
				return nil, err
			}
			out[i] = b
		default:
			out[i] = json.RawMessage("null")
		}
	}
	return out, nil
}

// EncodeJSON marshals v without HTML escaping, so tags such as <<smile>>
// reach clients as written. No trailing newline is added.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// WordTiming is the per-word record streamed to clients.
type WordTiming struct {
	Word    string   `json:"word,omitempty"`
	StartMS int      `json:"start_ms"`
	Tags    []string `json:"tags,omitempty"`
}

// Hyperparameters are passed through unchanged to the inference engine.
// Speed is inverted into a length scale before the engine call.
type Hyperparameters struct {
	SDPRatio    float64
	NoiseScale  float64
	NoiseScaleW float64
	Speed       float64
}

// DefaultHyperparameters mirrors the engine's reference settings.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		SDPRatio:    0.2,
		NoiseScale:  0.6,
		NoiseScaleW: 0.8,
		Speed:       1.0,
	}
}

// LengthScale returns 1/Speed, falling back to 1 for a non-positive speed.
func (h Hyperparameters) LengthScale() float64 {
	if h.Speed <= 0 {
		return 1.0
	}
	return 1.0 / h.Speed
}
