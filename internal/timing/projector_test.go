package timing

import (
	"errors"
	"reflect"
	"testing"

	"github.com/lexiqai/tts-gateway/internal/speech"
)

// oneHot builds an alignment matrix in which phoneme i owns durs[i] frames.
func oneHot(durs ...int) [][]float32 {
	total := 0
	for _, d := range durs {
		total += d
	}
	m := make([][]float32, len(durs))
	col := 0
	for i, d := range durs {
		m[i] = make([]float32, total)
		for j := 0; j < d; j++ {
			m[i][col] = 1
			col++
		}
	}
	return m
}

func interleaved(words ...string) []speech.Slot {
	slots := []speech.Slot{speech.Sentinel{}}
	for _, w := range words {
		slots = append(slots, speech.Word{Text: w}, speech.Sentinel{})
	}
	return slots
}

func TestDurations_Rounding(t *testing.T) {
	m := [][]float32{
		{0.4, 0.4, 0.4}, // 1.2 -> 1
		{0.5, 0.5, 0.6}, // 1.6 -> 2
		{0.25, 0.25, 0}, // 0.5 -> 1 (half away from zero)
		{0.1, 0.1, 0.1}, // 0.3 -> 0
	}
	got := Durations(m)
	want := []int{1, 2, 1, 0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestProject(t *testing.T) {
	// hop 256 at 16 kHz -> 16 ms per frame
	m := oneHot(2, 5, 1, 4, 3)
	slots := interleaved("hello", "world")

	p, err := Project(m, slots, 256, 16000)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}

	want := []Start{
		{Index: 1, Word: speech.Word{Text: "hello"}, StartMS: 32},  // offset 2
		{Index: 3, Word: speech.Word{Text: "world"}, StartMS: 128}, // offset 8
	}
	if !reflect.DeepEqual(p.Starts, want) {
		t.Errorf("Expected starts %+v, got %+v", want, p.Starts)
	}
	if p.TrimSamples != 3*256 {
		t.Errorf("Expected trim %d, got %d", 3*256, p.TrimSamples)
	}
}

func TestProject_MillisecondRounding(t *testing.T) {
	// hop 512 at 44100 Hz -> ~11.61 ms per frame; offset 3 -> 34.83 -> 35
	m := oneHot(3, 2, 1)
	p, err := Project(m, interleaved("a"), 512, 44100)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if len(p.Starts) != 1 || p.Starts[0].StartMS != 35 {
		t.Errorf("Expected start 35ms, got %+v", p.Starts)
	}
}

func TestProject_Monotonic(t *testing.T) {
	m := oneHot(1, 3, 0, 7, 2, 0, 5, 1, 9)
	slots := interleaved("a", "b", "c", "d")

	p, err := Project(m, slots, 300, 22050)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	for i := 1; i < len(p.Starts); i++ {
		if p.Starts[i].StartMS < p.Starts[i-1].StartMS {
			t.Errorf("start_ms decreased at %d: %d < %d", i, p.Starts[i].StartMS, p.Starts[i-1].StartMS)
		}
	}
}

func TestProject_ShortSlotsTolerated(t *testing.T) {
	// Two extra trailing rows are engine padding.
	m := oneHot(1, 2, 1, 4, 4)
	slots := interleaved("only")

	p, err := Project(m, slots, 100, 1000)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if len(p.Starts) != 1 || p.Starts[0].StartMS != 100 {
		t.Errorf("Unexpected starts: %+v", p.Starts)
	}
	if p.TrimSamples != 400 {
		t.Errorf("Expected trim from last matrix row (400), got %d", p.TrimSamples)
	}
}

func TestProject_LongSlotsDesync(t *testing.T) {
	m := oneHot(1, 2)
	_, err := Project(m, interleaved("a", "b"), 100, 1000)
	if !errors.Is(err, speech.ErrProtocolDesync) {
		t.Errorf("Expected ErrProtocolDesync, got %v", err)
	}
}

func TestProject_InvalidParams(t *testing.T) {
	if _, err := Project(oneHot(1), interleaved(), 0, 16000); err == nil {
		t.Error("Expected error for zero hop")
	}
	if _, err := Project(oneHot(1), interleaved(), 256, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestProject_Empty(t *testing.T) {
	p, err := Project(nil, nil, 256, 16000)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if len(p.Starts) != 0 || p.TrimSamples != 0 {
		t.Errorf("Expected empty projection, got %+v", p)
	}
}

func TestProjection_Trim(t *testing.T) {
	wave := make([]float32, 1000)

	p := Projection{TrimSamples: 256}
	if got := len(p.Trim(wave)); got != 744 {
		t.Errorf("Expected 744 samples, got %d", got)
	}

	p = Projection{TrimSamples: 5000}
	if got := len(p.Trim(wave)); got != 0 {
		t.Errorf("Expected trim to clamp at 0, got %d", got)
	}

	p = Projection{}
	if got := len(p.Trim(wave)); got != 1000 {
		t.Errorf("Expected untouched wave, got %d", got)
	}
}
