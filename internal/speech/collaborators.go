package speech

import "context"

// Features is the linguistic extractor's output for one sentence.
type Features struct {
	Phones  []int       `json:"phones"`
	Tones   []int       `json:"tones"`
	LangIDs []int       `json:"lang_ids"`
	BERT    [][]float32 `json:"bert"`
	JaBERT  [][]float32 `json:"ja_bert"`
}

// InferRequest is one per-sentence call into the inference engine.
type InferRequest struct {
	Features    *Features `json:"features"`
	SpeakerID   int       `json:"speaker_id"`
	SDPRatio    float64   `json:"sdp_ratio"`
	NoiseScale  float64   `json:"noise_scale"`
	NoiseScaleW float64   `json:"noise_scale_w"`
	LengthScale float64   `json:"length_scale"`
}

// InferResult holds the engine outputs the orchestrator uses.
type InferResult struct {
	// Audio is the raw mono waveform, samples approximately in [-1, 1].
	Audio []float32
	// Attention is the alignment matrix: rows are phonemes, columns frames.
	Attention [][]float32
}

// EngineInfo describes the loaded model.
type EngineInfo struct {
	SampleRate int            `json:"sample_rate"`
	HopLength  int            `json:"hop_length"`
	Language   string         `json:"language"`
	Speakers   map[string]int `json:"speakers"`
}

// Frontend segments text and extracts linguistic features.
type Frontend interface {
	// SplitSentences segments placeholder text into synthesizable sentences.
	SplitSentences(ctx context.Context, text, language string) ([]string, error)

	// Features returns the model inputs for one sentence together with the
	// slot list describing which phonemes carry which words.
	Features(ctx context.Context, sentence, language string) (*Features, []Slot, error)
}

// Engine runs neural inference for one sentence at a time.
type Engine interface {
	Info(ctx context.Context) (EngineInfo, error)
	Infer(ctx context.Context, req InferRequest) (*InferResult, error)
}
