package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-gateway/internal/config"
	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/resilience"
	"github.com/lexiqai/tts-gateway/internal/speech"
)

// Backend is a configured frontend and engine pair ready for synthesis.
type Backend struct {
	Name     string
	Frontend speech.Frontend
	Engine   speech.Engine
	Info     speech.EngineInfo
	Health   observability.HealthCheckFunc

	close func() error
}

// Close releases the backend's worker or connection.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open builds the backend selected by cfg.EngineBackend, wraps it with the
// feature cache and concurrency limit, and fetches the model description.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Backend, error) {
	timeout := time.Duration(cfg.EngineTimeout) * time.Second

	var model Model
	b := &Backend{Name: cfg.EngineBackend}

	switch cfg.EngineBackend {
	case config.BackendExec:
		bridge, err := NewBridge(ctx, cfg.EngineCommand, BridgeOptions{
			Timeout: timeout,
			Reconnect: &resilience.ReconnectConfig{
				MaxAttempts: cfg.ReconnectMaxAttempts,
				Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
				Multiplier:  2.0,
				MaxBackoff:  30 * time.Second,
			},
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		model, b.Health, b.close = bridge, bridge.Healthy, bridge.Close

	case config.BackendGRPC:
		remote, err := DialRemote(ctx, cfg.EngineAddr, RemoteOptions{
			Timeout:      timeout,
			MaxFailures:  cfg.CircuitBreakerMaxFailures,
			ResetTimeout: time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second,
			Retry: &resilience.RetryConfig{
				MaxAttempts:       cfg.RetryMaxAttempts,
				InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
				MaxBackoff:        5 * time.Second,
				BackoffMultiplier: 2.0,
				Jitter:            true,
			},
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		model, b.Health, b.close = remote, remote.Healthy, remote.Close

	case config.BackendMock:
		model = NewMock(MockOptions{Language: cfg.Language})
		b.Health = func(context.Context) (bool, error) { return true, nil }

	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.EngineBackend)
	}

	info, err := model.Info(ctx)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("query engine info: %w", err)
	}

	frontend, err := NewCachedFrontend(model, cfg.FeatureCacheSize)
	if err != nil {
		b.Close()
		return nil, err
	}

	b.Frontend = frontend
	b.Engine = Limit(model, cfg.EngineConcurrency, cfg.EngineBackend)
	b.Info = info

	logger.Info().
		Str("backend", b.Name).
		Int("sample_rate", info.SampleRate).
		Int("hop_length", info.HopLength).
		Int("speakers", len(info.Speakers)).
		Msg("Engine ready")
	return b, nil
}
