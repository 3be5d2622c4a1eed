package synth

import (
	"context"
	"math"

	"github.com/lexiqai/tts-gateway/internal/speech"
)

// Batch is a whole utterance joined into one waveform.
type Batch struct {
	Audio      []float32
	SampleRate int
	// Words carries start times relative to the start of Audio.
	Words []speech.WordTiming
}

// PauseSamples is the number of silent samples inserted after each sentence.
func PauseSamples(sampleRate int, speed, pauseSeconds float64) int {
	if speed <= 0 {
		speed = 1
	}
	n := int(math.Round(float64(sampleRate) * pauseSeconds / speed))
	if n < 0 {
		return 0
	}
	return n
}

// Concatenate joins chunks in order and appends a pause of silence after
// every chunk, the last one included. Empty input yields an empty waveform.
func Concatenate(chunks [][]float32, sampleRate int, speed, pauseSeconds float64) []float32 {
	pause := PauseSamples(sampleRate, speed, pauseSeconds)

	total := 0
	for _, c := range chunks {
		total += len(c) + pause
	}

	out := make([]float32, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
		out = append(out, make([]float32, pause)...)
	}
	return out
}

// SynthesizeAll runs the whole utterance and returns it as one waveform.
// Word start times are shifted by the audio and pauses preceding their
// sentence.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, text string, speakerID int, hp speech.Hyperparameters) (*Batch, error) {
	pause := PauseSamples(s.info.SampleRate, hp.Speed, s.pause)

	var chunks [][]float32
	words := []speech.WordTiming{}
	offset := 0
	err := s.Synthesize(ctx, text, speakerID, hp, func(sentence Sentence) error {
		offsetMS := int(math.Round(float64(offset) * 1000 / float64(s.info.SampleRate)))
		for _, w := range sentence.Words {
			w.StartMS += offsetMS
			words = append(words, w)
		}
		chunks = append(chunks, sentence.Audio)
		offset += len(sentence.Audio) + pause
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Batch{
		Audio:      Concatenate(chunks, s.info.SampleRate, hp.Speed, s.pause),
		SampleRate: s.info.SampleRate,
		Words:      words,
	}, nil
}
