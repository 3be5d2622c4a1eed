package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-gateway/internal/audio"
	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/speech"
	"github.com/lexiqai/tts-gateway/internal/synth"
)

// ErrTransport reports a failed websocket read or write. It ends the session.
var ErrTransport = errors.New("transport failure")

// State is the position of a session in its lifecycle.
type State int32

const (
	StateAwaitingText State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingText:
		return "awaiting_text"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the part of *websocket.Conn a session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// Synthesizer produces the sentences of one utterance in order.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, speakerID int, hp speech.Hyperparameters, yield synth.YieldFunc) error
}

// Options configures a session.
type Options struct {
	SpeakerID       int
	Hyperparameters speech.Hyperparameters // zero value means speech.DefaultHyperparameters
	QueueSize       int                    // texts waiting behind the current utterance
	WriteTimeout    time.Duration          // per frame; 0 means no deadline
	Logger          *zerolog.Logger
}

// Session streams one connection's utterances strictly one after another.
type Session struct {
	id      string
	conn    Conn
	synth   Synthesizer
	opts    Options
	logger  zerolog.Logger
	metrics *observability.Metrics

	inbox chan string
	state atomic.Int32

	mu      sync.Mutex
	readErr error
}

// NewSession creates a session in the awaiting-text state.
func NewSession(conn Conn, s Synthesizer, opts Options) *Session {
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.Hyperparameters == (speech.Hyperparameters{}) {
		opts.Hyperparameters = speech.DefaultHyperparameters()
	}

	id := uuid.New().String()
	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("session_id", id).Logger()
	} else {
		logger = observability.WithCorrelationID(observability.NewCorrelationID()).
			With().
			Str("session_id", id).
			Logger()
	}

	return &Session{
		id:      id,
		conn:    conn,
		synth:   s,
		opts:    opts,
		logger:  logger,
		metrics: observability.NewSessionMetrics(id),
		inbox:   make(chan string, opts.QueueSize),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run serves the connection until the client goes away, ctx is done or a
// write fails. A normal close by the client returns nil; transport failures
// wrap ErrTransport. Run does not close the connection.
func (s *Session) Run(ctx context.Context) error {
	s.metrics.RecordSessionStart()
	defer s.metrics.RecordSessionEnd()
	defer s.setState(StateClosed)

	s.logger.Info().Msg("Session started")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.readLoop(ctx, cancel)

	for {
		select {
		case <-ctx.Done():
			return s.closeReason(ctx)
		case text := <-s.inbox:
			// the reader may have failed while this text sat in the queue
			if ctx.Err() != nil {
				return s.closeReason(ctx)
			}
			if err := s.speak(ctx, text); err != nil {
				s.logger.Warn().Err(err).Msg("Session ended by transport failure")
				s.metrics.RecordError("transport", "stream")
				return err
			}
		}
	}
}

// readLoop queues inbound text until the connection fails. Binary frames are
// ignored.
func (s *Session) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
		if messageType != websocket.TextMessage {
			s.logger.Debug().Int("type", messageType).Msg("Ignoring non-text frame")
			continue
		}

		select {
		case s.inbox <- string(data):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) closeReason(ctx context.Context) error {
	s.mu.Lock()
	err := s.readErr
	s.mu.Unlock()

	switch {
	case err == nil:
		s.logger.Info().Msg("Session context done")
		return ctx.Err()
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		s.logger.Info().Msg("Session closed by client")
		return nil
	default:
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			s.logger.Warn().Err(err).Msg("WebSocket read error")
		}
		return fmt.Errorf("%w: read: %v", ErrTransport, err)
	}
}

// speak synthesizes and streams one utterance. Only transport failures are
// returned; synthesis failures are reported to the client as aborted.
func (s *Session) speak(ctx context.Context, text string) error {
	utteranceID := uuid.New().String()
	logger := s.logger.With().Str("utterance_id", utteranceID).Logger()
	ctx = logger.WithContext(ctx)

	s.setState(StateStreaming)
	defer s.setState(StateAwaitingText)
	s.metrics.RecordUtteranceStart()

	logger.Info().Int("length", len(text)).Msg("Utterance received")

	sentences := 0
	err := s.synth.Synthesize(ctx, text, s.opts.SpeakerID, s.opts.Hyperparameters, func(sentence synth.Sentence) error {
		if err := s.sendSentence(logger, sentence); err != nil {
			return err
		}
		sentences++
		return nil
	})

	switch {
	case err == nil:
		if err := s.send(Message{Kind: KindEndOfUtterance}); err != nil {
			s.metrics.RecordUtteranceEnd("transport_error")
			return err
		}
		s.metrics.RecordUtteranceEnd("success")
		logger.Info().Int("sentences", sentences).Msg("Utterance streamed")
		return nil

	case errors.Is(err, ErrTransport):
		s.metrics.RecordUtteranceEnd("transport_error")
		return err

	case ctx.Err() != nil:
		// connection gone mid-utterance; Run reports why
		s.metrics.RecordUtteranceEnd("canceled")
		return nil
	}

	reason := abortReason(err)
	logger.Error().Err(err).Int("sentences_sent", sentences).Str("reason", reason).Msg("Utterance aborted")
	s.metrics.RecordUtteranceEnd("aborted")
	s.metrics.RecordError(reason, "synth")

	return s.send(Message{Kind: KindAborted, Aborted: &Aborted{UtteranceID: utteranceID, Reason: reason}})
}

func (s *Session) sendSentence(logger zerolog.Logger, sentence synth.Sentence) error {
	pcm, stats := audio.EncodePCM16(sentence.Audio)
	if stats.Clipped() > 0 {
		logger.Warn().
			Int("sentence", sentence.Index).
			Int("over", stats.Over).
			Int("under", stats.Under).
			Float32("min", stats.Min).
			Float32("max", stats.Max).
			Msg("Clamped out-of-range samples")
		s.metrics.RecordClampedSamples(stats.Clipped())
	}

	if err := s.send(Message{Kind: KindTiming, Words: sentence.Words}); err != nil {
		return err
	}
	if err := s.send(Message{Kind: KindAudio, Audio: pcm}); err != nil {
		return err
	}
	s.metrics.RecordAudioBytes(int64(len(pcm)))

	logger.Debug().
		Int("sentence", sentence.Index).
		Int("words", len(sentence.Words)).
		Int("bytes", len(pcm)).
		Float64("rms", audio.RMS(sentence.Audio)).
		Msg("Sentence sent")
	return nil
}

func (s *Session) send(m Message) error {
	messageType, data, err := Encode(m)
	if err != nil {
		return err
	}
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return fmt.Errorf("%w: set deadline: %v", ErrTransport, err)
		}
	}
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrTransport, m.Kind, err)
	}
	return nil
}

func abortReason(err error) string {
	switch {
	case errors.Is(err, speech.ErrProtocolDesync):
		return "protocol_desync"
	case errors.Is(err, speech.ErrEngineFailure):
		return "engine_failure"
	default:
		return "internal"
	}
}
