package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-gateway/internal/resilience"
	"github.com/lexiqai/tts-gateway/internal/speech"
)

// ErrClosed is returned by calls on a closed backend.
var ErrClosed = errors.New("engine closed")

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	Timeout   time.Duration // per call, independent of the caller's ctx; zero means no limit
	Reconnect *resilience.ReconnectConfig
	Logger    zerolog.Logger
}

// Bridge runs the model in a long-lived worker process. Requests are JSON
// lines on the worker's stdin, one JSON reply per line on its stdout. Calls
// are serialized; a worker that fails mid-call is killed and restarted on
// the next call.
type Bridge struct {
	args      []string
	timeout   time.Duration
	reconnect *resilience.ReconnectConfig
	logger    zerolog.Logger

	mu     sync.Mutex
	worker *worker
	seq    uint64
	closed bool
}

type worker struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	dec   *json.Decoder
	exit  chan struct{}
}

// NewBridge parses command and starts the worker.
func NewBridge(ctx context.Context, command string, opts BridgeOptions) (*Bridge, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}

	b := &Bridge{
		args:      args,
		timeout:   opts.Timeout,
		reconnect: opts.Reconnect,
		logger:    opts.Logger.With().Str("component", "engine_bridge").Logger(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.restart(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Info asks the worker to describe its model.
func (b *Bridge) Info(ctx context.Context) (speech.EngineInfo, error) {
	resp, err := b.call(ctx, request{Op: opInfo})
	if err != nil {
		return speech.EngineInfo{}, err
	}
	return resp.engineInfo()
}

// SplitSentences implements speech.Frontend.
func (b *Bridge) SplitSentences(ctx context.Context, text, language string) ([]string, error) {
	resp, err := b.call(ctx, request{Op: opSplit, Text: text, Language: language})
	if err != nil {
		return nil, err
	}
	return resp.Sentences, nil
}

// Features implements speech.Frontend.
func (b *Bridge) Features(ctx context.Context, sentence, language string) (*speech.Features, []speech.Slot, error) {
	resp, err := b.call(ctx, request{Op: opFeatures, Text: sentence, Language: language})
	if err != nil {
		return nil, nil, err
	}
	return resp.features()
}

// Infer implements speech.Engine.
func (b *Bridge) Infer(ctx context.Context, req speech.InferRequest) (*speech.InferResult, error) {
	resp, err := b.call(ctx, request{Op: opInfer, Infer: &req})
	if err != nil {
		return nil, err
	}
	return resp.inferResult()
}

// Healthy reports whether a worker process is running.
func (b *Bridge) Healthy(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, ErrClosed
	}
	if b.worker == nil {
		return false, fmt.Errorf("engine worker not running")
	}
	select {
	case <-b.worker.exit:
		return false, fmt.Errorf("engine worker exited")
	default:
		return true, nil
	}
}

// Close stops the worker.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.stop(b.worker)
	b.worker = nil
	return nil
}

type callResult struct {
	resp reply
	err  error
}

// call sends one request. A caller that gives up early gets its context
// error back at once; the reply is still drained in the background so the
// shared worker stays usable. Only the bridge timeout or a broken pipe
// costs a restart.
func (b *Bridge) call(ctx context.Context, req request) (reply, error) {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		return reply{}, ErrClosed
	}
	if b.worker == nil {
		if err := b.restart(ctx); err != nil {
			b.mu.Unlock()
			return reply{}, err
		}
	}

	// The round trip outlives caller cancellation, bounded by the bridge timeout.
	var (
		rtCtx  context.Context
		cancel context.CancelFunc
	)
	if b.timeout > 0 {
		rtCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	} else {
		rtCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}

	b.seq++
	req.ID = strconv.FormatUint(b.seq, 10)

	w := b.worker
	done := make(chan callResult, 1)
	go func() {
		resp, err := w.roundTrip(req)
		done <- callResult{resp: resp, err: err}
	}()

	select {
	case res := <-done:
		defer b.mu.Unlock()
		cancel()
		return b.finish(w, req, res)

	case <-rtCtx.Done():
		defer b.mu.Unlock()
		cancel()
		b.expire(w, req, done)
		return reply{}, fmt.Errorf("%s: %w", req.Op, context.DeadlineExceeded)

	case <-ctx.Done():
		// drain releases mu once the worker has answered or expired
		go b.drain(rtCtx, cancel, w, req, done)
		return reply{}, fmt.Errorf("%s: %w", req.Op, ctx.Err())
	}
}

// drain consumes the reply of an abandoned call. Caller holds mu; drain
// releases it.
func (b *Bridge) drain(ctx context.Context, cancel context.CancelFunc, w *worker, req request, done <-chan callResult) {
	defer b.mu.Unlock()
	defer cancel()

	select {
	case res := <-done:
		if _, err := b.finish(w, req, res); err != nil {
			b.logger.Debug().Err(err).Str("op", req.Op).Msg("Abandoned engine call failed")
		}
	case <-ctx.Done():
		b.expire(w, req, done)
	}
}

// expire kills a worker that did not answer within the bridge timeout.
// Caller holds mu.
func (b *Bridge) expire(w *worker, req request, done <-chan callResult) {
	// The reply stream is now out of step with our requests.
	b.logger.Warn().Str("op", req.Op).Dur("timeout", b.timeout).Msg("Engine worker timed out, will restart")
	b.stop(w)
	if b.worker == w {
		b.worker = nil
	}
	<-done
}

// finish interprets a completed round trip. Caller holds mu.
func (b *Bridge) finish(w *worker, req request, res callResult) (reply, error) {
	if res.err != nil {
		b.logger.Warn().Err(res.err).Str("op", req.Op).Msg("Engine worker failed, will restart")
		b.stop(w)
		b.worker = nil
		return reply{}, fmt.Errorf("%s: %w", req.Op, res.err)
	}
	if res.resp.ID != req.ID {
		b.stop(w)
		b.worker = nil
		return reply{}, fmt.Errorf("%s: engine worker out of sync (got reply %q, expected %q)", req.Op, res.resp.ID, req.ID)
	}
	if !res.resp.OK {
		msg := res.resp.Error
		if msg == "" {
			msg = "unknown engine error"
		}
		return reply{}, fmt.Errorf("%s: %s", req.Op, msg)
	}
	return res.resp, nil
}

func (w *worker) roundTrip(req request) (reply, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return reply{}, fmt.Errorf("encode request: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.stdin.Write(line); err != nil {
		return reply{}, fmt.Errorf("write request: %w", err)
	}

	var resp reply
	if err := w.dec.Decode(&resp); err != nil {
		return reply{}, fmt.Errorf("read reply: %w", err)
	}
	return resp, nil
}

// restart starts a fresh worker, retrying with backoff. Caller holds mu.
func (b *Bridge) restart(ctx context.Context) error {
	return resilience.Reconnect(ctx, func(ctx context.Context) error {
		w, err := b.spawn()
		if err != nil {
			return err
		}
		b.worker = w
		return nil
	}, b.reconnect, b.logger)
}

func (b *Bridge) spawn() (*worker, error) {
	cmd := exec.Command(b.args[0], b.args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine worker: %w", err)
	}

	w := &worker{
		cmd:   cmd,
		stdin: stdin,
		dec:   json.NewDecoder(stdout),
		exit:  make(chan struct{}),
	}

	go b.forwardStderr(stderr, cmd.Process.Pid)
	go func() {
		err := cmd.Wait()
		b.logger.Info().Err(err).Int("pid", cmd.Process.Pid).Msg("Engine worker exited")
		close(w.exit)
	}()

	b.logger.Info().Int("pid", cmd.Process.Pid).Str("command", b.args[0]).Msg("Engine worker started")
	return w, nil
}

func (b *Bridge) forwardStderr(r io.Reader, pid int) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		b.logger.Debug().Int("pid", pid).Str("stderr", scanner.Text()).Msg("Engine worker output")
	}
}

// stop asks the worker to exit and kills it if it lingers.
func (b *Bridge) stop(w *worker) {
	if w == nil {
		return
	}
	_ = w.stdin.Close()
	_ = w.cmd.Process.Signal(os.Interrupt)

	select {
	case <-w.exit:
	case <-time.After(1200 * time.Millisecond):
		_ = w.cmd.Process.Kill()
		<-w.exit
	}
}
