// Package timing projects an inference engine's alignment matrix onto word
// start times and computes the trailing-silence trim.
package timing

import (
	"fmt"
	"math"

	"github.com/lexiqai/tts-gateway/internal/speech"
)

// Start is a projected word start time. Index is the slot position.
type Start struct {
	Index   int
	Word    speech.Word
	StartMS int
}

// Projection is the result of projecting one sentence.
type Projection struct {
	// Durations holds the rounded frame count per phoneme row.
	Durations []int
	// Starts holds one entry per word slot that received a start time, in
	// slot order.
	Starts []Start
	// TrimSamples is the number of samples to drop from the end of the
	// waveform: the final phoneme's duration times hop.
	TrimSamples int
}

// Durations sums each alignment row and rounds to the nearest frame.
func Durations(matrix [][]float32) []int {
	dur := make([]int, len(matrix))
	for i, row := range matrix {
		var sum float64
		for _, v := range row {
			sum += float64(v)
		}
		dur[i] = int(math.Round(sum))
	}
	return dur
}

// Project converts alignment rows into word start times. Slots and rows are
// index-aligned; a slot list shorter than the matrix stops assignment once
// exhausted, a longer one is a desync.
func Project(matrix [][]float32, slots []speech.Slot, hop, sampleRate int) (Projection, error) {
	if hop <= 0 || sampleRate <= 0 {
		return Projection{}, fmt.Errorf("invalid audio params: hop=%d sample_rate=%d", hop, sampleRate)
	}
	if len(slots) > len(matrix) {
		return Projection{}, fmt.Errorf("%w: %d slots for %d alignment rows", speech.ErrProtocolDesync, len(slots), len(matrix))
	}

	dur := Durations(matrix)
	p := Projection{Durations: dur}
	if len(dur) == 0 {
		return p, nil
	}

	frameMS := float64(hop) * 1000.0 / float64(sampleRate)
	offset := 0
	for i, d := range dur {
		if i >= len(slots) {
			break
		}
		if w, ok := slots[i].(speech.Word); ok {
			p.Starts = append(p.Starts, Start{
				Index:   i,
				Word:    w,
				StartMS: int(math.Round(float64(offset) * frameMS)),
			})
		}
		offset += d
	}

	p.TrimSamples = dur[len(dur)-1] * hop
	if p.TrimSamples < 0 {
		p.TrimSamples = 0
	}
	return p, nil
}

// Trim drops the projection's trailing samples. The result is never shorter
// than zero samples and shares the input's backing array.
func (p Projection) Trim(wave []float32) []float32 {
	n := len(wave) - p.TrimSamples
	if n < 0 {
		n = 0
	}
	return wave[:n]
}
