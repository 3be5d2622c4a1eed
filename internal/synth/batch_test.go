package synth

import (
	"context"
	"errors"
	"testing"

	"github.com/lexiqai/tts-gateway/internal/speech"
)

func ones(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func TestConcatenate(t *testing.T) {
	out := Concatenate([][]float32{ones(16000), ones(16000)}, 16000, 1.0, 0.05)

	expected := 16000*2 + 800*2
	if len(out) != expected {
		t.Fatalf("Expected %d samples, got %d", expected, len(out))
	}

	// pause after the first chunk, then the second chunk, then a trailing pause
	if out[16000] != 0 || out[16799] != 0 {
		t.Error("Expected silence after the first chunk")
	}
	if out[16800] != 1 {
		t.Error("Expected the second chunk to start after the pause")
	}
	if out[len(out)-1] != 0 {
		t.Error("Expected a trailing pause")
	}
}

func TestConcatenate_Empty(t *testing.T) {
	out := Concatenate(nil, 16000, 1.0, 0.05)
	if len(out) != 0 {
		t.Errorf("Expected empty waveform, got %d samples", len(out))
	}
}

func TestPauseSamples(t *testing.T) {
	tests := []struct {
		name     string
		rate     int
		speed    float64
		pause    float64
		expected int
	}{
		{"normal speed", 16000, 1.0, 0.05, 800},
		{"double speed halves the pause", 16000, 2.0, 0.05, 400},
		{"slow speed", 44100, 0.5, 0.05, 4410},
		{"no pause", 16000, 1.0, 0, 0},
		{"invalid speed treated as 1", 16000, 0, 0.05, 800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PauseSamples(tt.rate, tt.speed, tt.pause); got != tt.expected {
				t.Errorf("Expected %d samples, got %d", tt.expected, got)
			}
		})
	}
}

func TestSynthesizeAll(t *testing.T) {
	fe := &scriptedFrontend{
		sentences: []string{"Hi.", "Bye."},
		slots: map[string][]speech.Slot{
			"Hi.":  {gap, speech.Word{Text: "Hi"}, gap},
			"Bye.": {gap, speech.Word{Text: "Bye"}, gap},
		},
	}
	syn := newTestSynth(t, fe, &uniformEngine{}, "EN")

	batch, err := syn.SynthesizeAll(context.Background(), "Hi. Bye.", 0, speech.DefaultHyperparameters())
	if err != nil {
		t.Fatalf("SynthesizeAll() failed: %v", err)
	}

	// two trimmed sentences of 640 samples, each followed by 800 samples of pause
	if len(batch.Audio) != 2*(640+800) {
		t.Errorf("Expected %d samples, got %d", 2*(640+800), len(batch.Audio))
	}
	if batch.SampleRate != testRate {
		t.Errorf("Expected sample rate %d, got %d", testRate, batch.SampleRate)
	}

	if len(batch.Words) != 2 {
		t.Fatalf("Expected 2 words, got %d", len(batch.Words))
	}
	if batch.Words[0].StartMS != 20 {
		t.Errorf("Expected first word at 20ms, got %d", batch.Words[0].StartMS)
	}
	// 1440 samples before the second sentence is 90ms
	if batch.Words[1].StartMS != 110 {
		t.Errorf("Expected second word at 110ms, got %d", batch.Words[1].StartMS)
	}
}

func TestSynthesizeAll_Failure(t *testing.T) {
	fe := &scriptedFrontend{sentences: []string{"Hi."}}
	syn := newTestSynth(t, fe, &uniformEngine{failAt: 1}, "EN")

	batch, err := syn.SynthesizeAll(context.Background(), "Hi.", 0, speech.DefaultHyperparameters())
	if !errors.Is(err, speech.ErrEngineFailure) {
		t.Errorf("Expected ErrEngineFailure, got %v", err)
	}
	if batch != nil {
		t.Error("Expected no batch on failure")
	}
}
