package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/speech"
)

// Limited bounds concurrent inference calls on a shared engine. With a
// limit of 1 it serializes a non-reentrant model across sessions.
type Limited struct {
	engine  speech.Engine
	sem     *semaphore.Weighted
	backend string
	tracer  trace.Tracer
}

// Limit wraps engine so that at most n Infer calls run at once.
func Limit(engine speech.Engine, n int, backend string) *Limited {
	if n < 1 {
		n = 1
	}
	return &Limited{
		engine:  engine,
		sem:     semaphore.NewWeighted(int64(n)),
		backend: backend,
		tracer:  observability.Tracer(),
	}
}

// Info implements speech.Engine.
func (l *Limited) Info(ctx context.Context) (speech.EngineInfo, error) {
	return l.engine.Info(ctx)
}

// Infer waits for a slot, honoring ctx, then calls the wrapped engine.
func (l *Limited) Infer(ctx context.Context, req speech.InferRequest) (*speech.InferResult, error) {
	ctx, span := l.tracer.Start(ctx, "engine.Infer", trace.WithAttributes(
		attribute.String("engine.backend", l.backend),
		attribute.Int("engine.speaker_id", req.SpeakerID),
	))
	defer span.End()

	waitStart := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("wait for engine: %w", err)
	}
	defer l.sem.Release(1)
	observability.RecordInferenceWait(time.Since(waitStart))

	start := time.Now()
	result, err := l.engine.Infer(ctx, req)
	observability.RecordInference(l.backend, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference failed")
		return nil, err
	}
	if req.Features != nil {
		span.SetAttributes(attribute.Int("engine.phonemes", len(req.Features.Phones)))
	}
	span.SetAttributes(attribute.Int("engine.samples", len(result.Audio)))
	return result, nil
}
