package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lexiqai/tts-gateway/internal/engine"
	"github.com/lexiqai/tts-gateway/internal/observability"
)

func mockFlags(cmd *cobra.Command, opts *engine.MockOptions) {
	cmd.Flags().IntVar(&opts.SampleRate, "sample-rate", 44100, "mock output sample rate")
	cmd.Flags().IntVar(&opts.HopLength, "hop-length", 512, "mock samples per alignment frame")
	cmd.Flags().StringVar(&opts.Language, "language", "EN", "mock model language")
	cmd.Flags().IntVar(&opts.FramesPerUnit, "frames-per-unit", 2, "mock frames per phoneme unit")
}

func workerCmd() *cobra.Command {
	var opts engine.MockOptions
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the mock engine as an exec backend worker on stdin/stdout",
		Long: "Speaks the JSON-lines worker protocol on stdin/stdout. Point the server\n" +
			"at it with ENGINE_BACKEND=exec ENGINE_COMMAND=\"ttsctl worker\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			return engine.ServeWorker(cmd.Context(), os.Stdin, os.Stdout, engine.NewMock(opts))
		},
	}
	mockFlags(cmd, &opts)
	return cmd
}

func serveEngineCmd() *cobra.Command {
	var (
		opts engine.MockOptions
		addr string
	)
	cmd := &cobra.Command{
		Use:   "serve-engine",
		Short: "Serve the mock engine over gRPC for the grpc backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			observability.InitLoggerTo(os.Stderr, "info", true)
			logger := observability.GetLogger()

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}

			srv := grpc.NewServer()
			engine.RegisterInferenceServer(srv, engine.NewMock(opts))
			hs := health.NewServer()
			hs.SetServingStatus(engine.InferenceService, healthpb.HealthCheckResponse_SERVING)
			healthpb.RegisterHealthServer(srv, hs)

			go func() {
				<-cmd.Context().Done()
				hs.Shutdown()
				srv.GracefulStop()
			}()

			logger.Info().Str("addr", lis.Addr().String()).Msg("Mock engine serving")
			return srv.Serve(lis)
		},
	}
	mockFlags(cmd, &opts)
	cmd.Flags().StringVar(&addr, "addr", ":50061", "listen address")
	return cmd
}
