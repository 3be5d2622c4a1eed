package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ClipStats describes how far a waveform strayed outside [-1, 1] before it
// was clamped for PCM encoding.
type ClipStats struct {
	Samples int
	Over    int // samples above 1.0
	Under   int // samples below -1.0
	Min     float32
	Max     float32
}

// Clipped returns the number of clamped samples.
func (s ClipStats) Clipped() int {
	return s.Over + s.Under
}

// EncodePCM16 converts float samples to 16-bit signed little-endian PCM.
// Samples are clamped to [-1, 1] and scaled by 32767. NaN encodes as silence.
func EncodePCM16(samples []float32) ([]byte, ClipStats) {
	stats := ClipStats{Samples: len(samples)}
	out := make([]byte, len(samples)*2)

	for i, v := range samples {
		if v != v {
			v = 0
		}
		if i == 0 || v < stats.Min {
			stats.Min = v
		}
		if i == 0 || v > stats.Max {
			stats.Max = v
		}

		if v > 1 {
			stats.Over++
			v = 1
		} else if v < -1 {
			stats.Under++
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}

	return out, stats
}

// DecodePCM16 converts 16-bit signed little-endian PCM back to float samples.
func DecodePCM16(pcmData []byte) ([]float32, error) {
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(pcmData))
	}

	samples := make([]float32, len(pcmData)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcmData[i*2:]))) / 32767
	}
	return samples, nil
}

// Resample performs linear interpolation resampling.
func Resample(samples []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || len(samples) == 0 || inputRate <= 0 || outputRate <= 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]float32, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := float32(srcPos - float64(idx0))
		output[i] = samples[idx0]*(1-fraction) + samples[idx1]*fraction
	}

	return output
}

// RMS calculates the root mean square of audio samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// DurationMS returns the playback length of n samples at sampleRate, in
// milliseconds.
func DurationMS(n, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	return int(math.Round(float64(n) * 1000 / float64(sampleRate)))
}
