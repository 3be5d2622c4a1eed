package audio

import (
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatFloat is the WAVE_FORMAT_IEEE_FLOAT format tag.
const wavFormatFloat = 3

// WriteWAV writes samples as a mono 32-bit float WAV file.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	enc := wav.NewEncoder(w, sampleRate, 32, 1, wavFormatFloat)

	// go-audio carries samples as ints; float frames travel as their IEEE bits.
	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(int32(math.Float32bits(v)))
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 32,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// ReadWAV reads a mono WAV file written by WriteWAV, or a 16-bit PCM one.
func ReadWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if dec.NumChans != 1 {
		return nil, 0, fmt.Errorf("expected mono audio, got %d channels", dec.NumChans)
	}

	samples := make([]float32, len(buf.Data))
	switch {
	case dec.WavAudioFormat == wavFormatFloat && dec.BitDepth == 32:
		for i, v := range buf.Data {
			samples[i] = math.Float32frombits(uint32(int32(v)))
		}
	case dec.BitDepth == 16:
		for i, v := range buf.Data {
			samples[i] = float32(v) / 32767
		}
	default:
		return nil, 0, fmt.Errorf("unsupported wav format %d with bit depth %d", dec.WavAudioFormat, dec.BitDepth)
	}

	return samples, int(dec.SampleRate), nil
}
