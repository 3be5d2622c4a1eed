package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/lexiqai/tts-gateway/internal/speech"
)

// Model is a frontend and engine served together.
type Model interface {
	speech.Frontend
	speech.Engine
}

// maxRequestLine bounds one request line read by ServeWorker.
const maxRequestLine = 16 << 20

// ServeWorker answers JSON-line requests from r on w until r is exhausted,
// speaking the protocol Bridge expects. It lets any Model run as a worker
// process.
func ServeWorker(ctx context.Context, r io.Reader, w io.Writer, model Model) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRequestLine)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			if err := enc.Encode(reply{Error: fmt.Sprintf("decode request: %v", err)}); err != nil {
				return err
			}
			continue
		}

		resp, err := handle(ctx, model, req)
		if err != nil {
			resp = reply{Error: err.Error()}
		} else {
			resp.OK = true
		}
		resp.ID = req.ID
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
	return scanner.Err()
}

// handle runs one operation against model.
func handle(ctx context.Context, model Model, req request) (reply, error) {
	switch req.Op {
	case opInfo:
		info, err := model.Info(ctx)
		if err != nil {
			return reply{}, err
		}
		return reply{Info: &info}, nil

	case opSplit:
		sentences, err := model.SplitSentences(ctx, req.Text, req.Language)
		if err != nil {
			return reply{}, err
		}
		return reply{Sentences: sentences}, nil

	case opFeatures:
		features, slots, err := model.Features(ctx, req.Text, req.Language)
		if err != nil {
			return reply{}, err
		}
		raw, err := speech.EncodeSlots(slots)
		if err != nil {
			return reply{}, err
		}
		return reply{Features: features, Slots: raw}, nil

	case opInfer:
		if req.Infer == nil {
			return reply{}, fmt.Errorf("infer request missing")
		}
		result, err := model.Infer(ctx, *req.Infer)
		if err != nil {
			return reply{}, err
		}
		return reply{Audio: encodeAudio(result.Audio), Attention: result.Attention}, nil

	default:
		return reply{}, fmt.Errorf("unknown op %q", req.Op)
	}
}
