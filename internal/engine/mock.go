package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/lexiqai/tts-gateway/internal/speech"
	"github.com/lexiqai/tts-gateway/internal/tags"
)

// MockOptions configures a Mock.
type MockOptions struct {
	SampleRate    int
	HopLength     int
	Language      string
	FramesPerUnit int // frames per phoneme unit at length scale 1
}

// Mock is a deterministic stand-in for a real model. Every word becomes one
// phoneme row, with a blank row between words, and the waveform is a tone
// whose length follows the alignment exactly.
type Mock struct {
	opts     MockOptions
	speakers map[string]int
}

// NewMock returns a Mock with defaults filled in.
func NewMock(opts MockOptions) *Mock {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.HopLength <= 0 {
		opts.HopLength = 512
	}
	if opts.Language == "" {
		opts.Language = "EN"
	}
	if opts.FramesPerUnit <= 0 {
		opts.FramesPerUnit = 2
	}
	return &Mock{
		opts: opts,
		speakers: map[string]int{
			"EN-US":      0,
			"EN-BR":      1,
			"EN_INDIA":   2,
			"EN-AU":      3,
			"EN-Default": 4,
		},
	}
}

// Info implements speech.Engine.
func (m *Mock) Info(ctx context.Context) (speech.EngineInfo, error) {
	speakers := make(map[string]int, len(m.speakers))
	for k, v := range m.speakers {
		speakers[k] = v
	}
	return speech.EngineInfo{
		SampleRate: m.opts.SampleRate,
		HopLength:  m.opts.HopLength,
		Language:   m.opts.Language,
		Speakers:   speakers,
	}, nil
}

// SplitSentences breaks after terminal punctuation followed by whitespace.
func (m *Mock) SplitSentences(ctx context.Context, text, language string) ([]string, error) {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		atEnd := i == len(runes)-1
		if isTerminal(r) && (atEnd || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences, nil
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// Features implements speech.Frontend. Placeholders count toward the next
// word; trailing ones attach to an empty word at the end of the sentence.
func (m *Mock) Features(ctx context.Context, sentence, language string) (*speech.Features, []speech.Slot, error) {
	var words []speech.Word
	pending := 0

	for _, token := range strings.Fields(sentence) {
		for i, part := range strings.Split(token, tags.Placeholder) {
			if i > 0 {
				pending++
			}
			if part == "" {
				continue
			}
			words = append(words, speech.Word{Text: part, TagCount: pending})
			pending = 0
		}
	}
	if pending > 0 {
		words = append(words, speech.Word{TagCount: pending})
	}

	slots := make([]speech.Slot, 0, 2*len(words)+1)
	phones := make([]int, 0, cap(slots))
	slots = append(slots, speech.Sentinel{})
	phones = append(phones, 1)
	for _, w := range words {
		slots = append(slots, w, speech.Sentinel{})
		phones = append(phones, 1+len([]rune(w.Text)), 1)
	}

	langID := 0
	if strings.HasPrefix(language, "ZH") {
		langID = 1
	}
	features := &speech.Features{
		Phones:  phones,
		Tones:   make([]int, len(phones)),
		LangIDs: make([]int, len(phones)),
	}
	for i := range features.LangIDs {
		features.LangIDs[i] = langID
	}
	return features, slots, nil
}

// Infer implements speech.Engine. Row i lasts Phones[i] units of
// FramesPerUnit frames, scaled by the length scale.
func (m *Mock) Infer(ctx context.Context, req speech.InferRequest) (*speech.InferResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Features == nil {
		return nil, fmt.Errorf("missing features")
	}
	if _, ok := m.speakerName(req.SpeakerID); !ok {
		return nil, fmt.Errorf("unknown speaker id %d", req.SpeakerID)
	}

	scale := req.LengthScale
	if scale <= 0 {
		scale = 1
	}

	durations := make([]int, len(req.Features.Phones))
	total := 0
	for i, p := range req.Features.Phones {
		d := int(math.Round(float64(p*m.opts.FramesPerUnit) * scale))
		if d < 1 {
			d = 1
		}
		durations[i] = d
		total += d
	}

	attention := make([][]float32, len(durations))
	frame := 0
	for i, d := range durations {
		row := make([]float32, total)
		for j := frame; j < frame+d; j++ {
			row[j] = 1
		}
		attention[i] = row
		frame += d
	}

	freq := 180.0 + 20.0*float64(req.SpeakerID)
	audio := make([]float32, total*m.opts.HopLength)
	for i := range audio {
		audio[i] = float32(0.3 * math.Sin(2*math.Pi*freq*float64(i)/float64(m.opts.SampleRate)))
	}

	return &speech.InferResult{Audio: audio, Attention: attention}, nil
}

func (m *Mock) speakerName(id int) (string, bool) {
	for name, v := range m.speakers {
		if v == id {
			return name, true
		}
	}
	return "", false
}
