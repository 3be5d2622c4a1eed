package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lexiqai/tts-gateway/internal/audio"
)

func TestInspectCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = 0.5
		if i%2 == 1 {
			samples[i] = -0.5
		}
	}
	if err := audio.WriteWAV(f, samples, 16000); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	f.Close()

	var stdout bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"inspect", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}

	want := path + ": 16000 Hz, 16000 samples, 1000 ms, rms 0.5000, peak 0.5000"
	if got := strings.TrimSpace(stdout.String()); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestInspectCmd_NotWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"inspect", path})
	if err := cmd.Execute(); err == nil {
		t.Error("Expected an error for a non-WAV file")
	}
}
