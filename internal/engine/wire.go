// Package engine connects the synthesizer to a model runtime: a local worker
// process speaking JSON lines, a remote gRPC service, or a built-in mock.
package engine

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/lexiqai/tts-gateway/internal/speech"
)

// Operations understood by worker processes and remote services.
const (
	opInfo     = "info"
	opSplit    = "split"
	opFeatures = "features"
	opInfer    = "infer"
)

// request is the payload of every engine call. Only the fields an operation
// needs are set.
type request struct {
	ID       string               `json:"id,omitempty"`
	Op       string               `json:"op,omitempty"`
	Text     string               `json:"text,omitempty"`
	Language string               `json:"language,omitempty"`
	Infer    *speech.InferRequest `json:"infer,omitempty"`
}

// reply carries the result of any operation. Audio is base64 of
// little-endian float32 samples.
type reply struct {
	ID        string             `json:"id,omitempty"`
	OK        bool               `json:"ok,omitempty"`
	Error     string             `json:"error,omitempty"`
	Info      *speech.EngineInfo `json:"info,omitempty"`
	Sentences []string           `json:"sentences,omitempty"`
	Features  *speech.Features   `json:"features,omitempty"`
	Slots     []json.RawMessage  `json:"slots,omitempty"`
	Audio     string             `json:"audio,omitempty"`
	Attention [][]float32        `json:"attention,omitempty"`
}

func (r *reply) engineInfo() (speech.EngineInfo, error) {
	if r.Info == nil {
		return speech.EngineInfo{}, fmt.Errorf("reply carries no engine info")
	}
	if r.Info.SampleRate <= 0 || r.Info.HopLength <= 0 {
		return speech.EngineInfo{}, fmt.Errorf("invalid engine info: sample_rate=%d hop_length=%d", r.Info.SampleRate, r.Info.HopLength)
	}
	return *r.Info, nil
}

func (r *reply) features() (*speech.Features, []speech.Slot, error) {
	if r.Features == nil {
		return nil, nil, fmt.Errorf("reply carries no features")
	}
	slots, err := speech.DecodeSlots(r.Slots)
	if err != nil {
		return nil, nil, err
	}
	return r.Features, slots, nil
}

func (r *reply) inferResult() (*speech.InferResult, error) {
	audio, err := decodeAudio(r.Audio)
	if err != nil {
		return nil, err
	}
	return &speech.InferResult{Audio: audio, Attention: r.Attention}, nil
}

func encodeAudio(samples []float32) string {
	buf := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func decodeAudio(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("decode audio: %d bytes is not a whole number of float32 samples", len(buf))
	}
	samples := make([]float32, len(buf)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return samples, nil
}
