package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteWAV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	samples := []float32{0, 0.25, -0.25, 0.999, -1, 1.5}
	if err := WriteWAV(f, samples, 44100); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	f.Close()

	r, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	got, rate, err := ReadWAV(r)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if rate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", rate)
	}
	if len(got) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(got))
	}
	// float samples are stored bit-exact, unclamped
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, samples[i], got[i])
		}
	}
}

func TestWriteWAV_InvalidRate(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "bad.wav"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer f.Close()

	if err := WriteWAV(f, []float32{0}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}
