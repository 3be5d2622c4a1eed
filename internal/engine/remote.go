package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/resilience"
	"github.com/lexiqai/tts-gateway/internal/speech"
)

// RemoteOptions configures a Remote.
type RemoteOptions struct {
	Timeout        time.Duration // per call
	MaxFailures    int
	ResetTimeout   time.Duration
	Retry          *resilience.RetryConfig // startup readiness wait
	Logger         zerolog.Logger
	DialOptions    []grpc.DialOption // appended after the defaults
	SkipReadyCheck bool
}

// Remote calls a model served over gRPC as InferenceService. A circuit
// breaker sheds calls while the service is failing.
type Remote struct {
	addr    string
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	breaker *resilience.CircuitBreaker
	timeout time.Duration
	logger  zerolog.Logger
}

// DialRemote connects to addr and waits until the service reports ready.
func DialRemote(ctx context.Context, addr string, opts RemoteOptions) (*Remote, error) {
	logger := opts.Logger.With().Str("component", "engine_remote").Str("addr", addr).Logger()

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		// Keepalive settings for long-lived connections
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(64 << 20)),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine client for %s: %w", addr, err)
	}

	breaker := resilience.NewCircuitBreaker("engine", opts.MaxFailures, opts.ResetTimeout)
	breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Engine circuit breaker changed state")
	})

	r := &Remote{
		addr:    addr,
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		breaker: breaker,
		timeout: opts.Timeout,
		logger:  logger,
	}

	if !opts.SkipReadyCheck {
		err := resilience.Retry(ctx, func(ctx context.Context) error {
			_, err := r.Healthy(ctx)
			return err
		}, opts.Retry, resilience.IsRetryableNetworkError)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("engine at %s not ready: %w", addr, err)
		}
	}

	logger.Info().Msg("Connected to engine")
	return r, nil
}

// Info implements speech.Engine.
func (r *Remote) Info(ctx context.Context) (speech.EngineInfo, error) {
	resp, err := r.invoke(ctx, request{Op: opInfo})
	if err != nil {
		return speech.EngineInfo{}, err
	}
	return resp.engineInfo()
}

// SplitSentences implements speech.Frontend.
func (r *Remote) SplitSentences(ctx context.Context, text, language string) ([]string, error) {
	resp, err := r.invoke(ctx, request{Op: opSplit, Text: text, Language: language})
	if err != nil {
		return nil, err
	}
	return resp.Sentences, nil
}

// Features implements speech.Frontend.
func (r *Remote) Features(ctx context.Context, sentence, language string) (*speech.Features, []speech.Slot, error) {
	resp, err := r.invoke(ctx, request{Op: opFeatures, Text: sentence, Language: language})
	if err != nil {
		return nil, nil, err
	}
	return resp.features()
}

// Infer implements speech.Engine.
func (r *Remote) Infer(ctx context.Context, req speech.InferRequest) (*speech.InferResult, error) {
	resp, err := r.invoke(ctx, request{Op: opInfer, Infer: &req})
	if err != nil {
		return nil, err
	}
	return resp.inferResult()
}

// Healthy checks the standard gRPC health service. Servers without one are
// treated as healthy once they answer at all.
func (r *Remote) Healthy(ctx context.Context) (bool, error) {
	resp, err := r.health.Check(ctx, &healthpb.HealthCheckRequest{Service: InferenceService})
	if err != nil {
		if status.Code(err) == codes.Unimplemented {
			return true, nil
		}
		return false, fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return false, fmt.Errorf("engine status %s", resp.GetStatus())
	}
	return true, nil
}

// Close closes the gRPC connection
func (r *Remote) Close() error {
	return r.conn.Close()
}

func (r *Remote) invoke(ctx context.Context, req request) (reply, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var resp reply
	err := r.breaker.Call(func() error {
		return r.conn.Invoke(ctx, fullMethod(req.Op), &req, &resp, grpc.CallContentSubtype(codecName))
	}, isCallerError)
	if err != nil {
		if !isCallerError(err) && !errors.Is(err, resilience.ErrCircuitOpen) {
			observability.IncrementCircuitBreakerFailures(r.breaker.Name())
		}
		return reply{}, fmt.Errorf("%s: %w", req.Op, err)
	}
	return resp, nil
}

// isCallerError reports failures caused by the request rather than the
// service; they do not count against the circuit breaker.
func isCallerError(err error) bool {
	switch status.Code(err) {
	case codes.Canceled, codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition:
		return true
	}
	return false
}
