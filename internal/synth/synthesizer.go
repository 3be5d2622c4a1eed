// Package synth drives per-sentence synthesis for one utterance: tag
// extraction, linguistic features, inference, timing projection, silence
// trimming and tag reinsertion.
package synth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/speech"
	"github.com/lexiqai/tts-gateway/internal/tags"
	"github.com/lexiqai/tts-gateway/internal/timing"
)

// caseBoundary finds a lowercase letter directly followed by an uppercase one.
var caseBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

// Sentence is one synthesized sentence of an utterance.
type Sentence struct {
	Index int
	Text  string
	// Audio is the trimmed waveform at the engine sample rate.
	Audio []float32
	// Words holds one record per word slot, in slot order. Never nil.
	Words []speech.WordTiming
}

// YieldFunc receives sentences in order. Returning an error stops the loop
// and is returned from Synthesize unchanged.
type YieldFunc func(Sentence) error

// Options configures a Synthesizer.
type Options struct {
	Language      string
	SentencePause float64 // seconds, batch path only
	Logger        *zerolog.Logger
}

// Synthesizer turns text into a sequence of sentences. It holds no
// per-utterance state and is safe for concurrent use if its frontend and
// engine are.
type Synthesizer struct {
	frontend speech.Frontend
	engine   speech.Engine
	info     speech.EngineInfo
	language string
	pause    float64
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// New creates a Synthesizer for an engine described by info.
func New(frontend speech.Frontend, engine speech.Engine, info speech.EngineInfo, opts Options) (*Synthesizer, error) {
	if frontend == nil || engine == nil {
		return nil, fmt.Errorf("frontend and engine are required")
	}
	if info.SampleRate <= 0 || info.HopLength <= 0 {
		return nil, fmt.Errorf("invalid engine info: sample_rate=%d hop_length=%d", info.SampleRate, info.HopLength)
	}

	language := opts.Language
	if language == "" {
		language = info.Language
	}
	logger := observability.GetLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Synthesizer{
		frontend: frontend,
		engine:   engine,
		info:     info,
		language: NormalizeLanguage(language),
		pause:    opts.SentencePause,
		logger:   logger.With().Str("component", "synth").Logger(),
		tracer:   observability.Tracer(),
	}, nil
}

// NormalizeLanguage maps a model language to the code the frontend expects.
// Chinese models are mixed Chinese/English.
func NormalizeLanguage(language string) string {
	language = strings.ToUpper(strings.TrimSpace(language))
	if strings.SplitN(language, "_", 2)[0] == "ZH" {
		return "ZH_MIX_EN"
	}
	return language
}

// SampleRate returns the engine's output sample rate.
func (s *Synthesizer) SampleRate() int { return s.info.SampleRate }

// Language returns the normalized synthesis language.
func (s *Synthesizer) Language() string { return s.language }

// SpeakerID resolves a speaker name through the engine's speaker map.
func (s *Synthesizer) SpeakerID(name string) (int, error) {
	id, ok := s.info.Speakers[name]
	if !ok {
		known := make([]string, 0, len(s.info.Speakers))
		for k := range s.info.Speakers {
			known = append(known, k)
		}
		return 0, fmt.Errorf("unknown speaker %q (available: %s)", name, strings.Join(known, ", "))
	}
	return id, nil
}

// Synthesize splits text into sentences and yields each synthesized sentence
// in order. A frontend or engine failure aborts the call with
// speech.ErrEngineFailure; nothing is yielded for the failing sentence.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, speakerID int, hp speech.Hyperparameters, yield YieldFunc) error {
	logger := s.loggerFrom(ctx)

	ctx, span := s.tracer.Start(ctx, "synth.Utterance",
		trace.WithAttributes(attribute.Int("text.length", len(text)), attribute.Int("speaker.id", speakerID)))
	defer span.End()

	found, placeholder := tags.Extract(norm.NFC.String(text))
	queue := tags.NewQueue(found)
	if strings.TrimSpace(placeholder) == "" {
		return nil
	}

	sentences, err := s.frontend.SplitSentences(ctx, placeholder, s.language)
	if err != nil {
		err = fmt.Errorf("%w: split sentences: %w", speech.ErrEngineFailure, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "split failed")
		return err
	}
	logger.Debug().
		Int("tags", len(found)).
		Int("sentences", len(sentences)).
		Msg("Utterance split")

	for i, text := range sentences {
		if err := ctx.Err(); err != nil {
			return err
		}

		var out Sentence
		out, queue, err = s.sentence(ctx, i, text, speakerID, hp, queue)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "sentence failed")
			return err
		}
		if err := yield(out); err != nil {
			return err
		}
	}

	if queue.Len() != 0 {
		err := fmt.Errorf("%w: %d tags not attached to any word", speech.ErrProtocolDesync, queue.Len())
		span.RecordError(err)
		span.SetStatus(codes.Error, "tag queue not drained")
		return err
	}
	return nil
}

// sentence synthesizes one sentence, threading the tag queue through.
func (s *Synthesizer) sentence(ctx context.Context, index int, text string, speakerID int, hp speech.Hyperparameters, queue tags.Queue) (Sentence, tags.Queue, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "synth.Sentence", trace.WithAttributes(attribute.Int("sentence.index", index)))
	defer span.End()

	out, rest, err := s.runSentence(ctx, index, text, speakerID, hp, queue)
	observability.RecordSentence(time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Sentence{}, queue, err
	}
	span.SetAttributes(attribute.Int("sentence.words", len(out.Words)), attribute.Int("sentence.samples", len(out.Audio)))
	return out, rest, nil
}

func (s *Synthesizer) runSentence(ctx context.Context, index int, text string, speakerID int, hp speech.Hyperparameters, queue tags.Queue) (Sentence, tags.Queue, error) {
	if s.language == "EN" || s.language == "ZH_MIX_EN" {
		text = caseBoundary.ReplaceAllString(text, "${1} ${2}")
	}

	features, slots, err := s.frontend.Features(ctx, text, s.language)
	if err != nil {
		return Sentence{}, queue, fmt.Errorf("%w: features for sentence %d: %w", speech.ErrEngineFailure, index, err)
	}

	result, err := s.engine.Infer(ctx, speech.InferRequest{
		Features:    features,
		SpeakerID:   speakerID,
		SDPRatio:    hp.SDPRatio,
		NoiseScale:  hp.NoiseScale,
		NoiseScaleW: hp.NoiseScaleW,
		LengthScale: hp.LengthScale(),
	})
	if err != nil {
		return Sentence{}, queue, fmt.Errorf("%w: inference for sentence %d: %w", speech.ErrEngineFailure, index, err)
	}

	proj, err := timing.Project(result.Attention, slots, s.info.HopLength, s.info.SampleRate)
	if err != nil {
		return Sentence{}, queue, fmt.Errorf("sentence %d: %w", index, err)
	}

	words := make([]speech.WordTiming, 0, len(proj.Starts))
	for _, st := range proj.Starts {
		var wt speech.WordTiming
		wt, queue, err = tags.Reinsert(st.Word, st.StartMS, queue)
		if err != nil {
			return Sentence{}, queue, fmt.Errorf("sentence %d: %w", index, err)
		}
		words = append(words, wt)
	}

	return Sentence{
		Index: index,
		Text:  text,
		Audio: proj.Trim(result.Audio),
		Words: words,
	}, queue, nil
}

// loggerFrom prefers a logger attached to ctx by the caller.
func (s *Synthesizer) loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}
