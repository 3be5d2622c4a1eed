package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexiqai/tts-gateway/internal/audio"
	"github.com/lexiqai/tts-gateway/internal/config"
	"github.com/lexiqai/tts-gateway/internal/engine"
	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/speech"
	"github.com/lexiqai/tts-gateway/internal/synth"
)

func synthCmd() *cobra.Command {
	var (
		outPath     string
		timingsPath string
		inputPath   string
		speaker     string
		mock        bool
	)
	cmd := &cobra.Command{
		Use:   "synth [text...]",
		Short: "Synthesize text to a WAV file using the configured engine",
		Long: "Synthesize text to a 32-bit float mono WAV file. Sentences are joined\n" +
			"with SENTENCE_PAUSE seconds of silence. Engine settings come from the\n" +
			"same environment as the server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if inputPath != "" {
				data, err := os.ReadFile(inputPath)
				if err != nil {
					return err
				}
				text = string(data)
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("no text given")
			}

			cfg, err := loadConfig(mock)
			if err != nil {
				return err
			}
			if speaker != "" {
				cfg.Speaker = speaker
			}

			observability.InitLoggerTo(os.Stderr, cfg.LogLevel, true)
			logger := observability.GetLogger()
			ctx := cmd.Context()

			backend, err := engine.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			syn, err := synth.New(backend.Frontend, backend.Engine, backend.Info, synth.Options{
				Language:      cfg.Language,
				SentencePause: cfg.SentencePause,
				Logger:        &logger,
			})
			if err != nil {
				return err
			}
			speakerID, err := syn.SpeakerID(cfg.Speaker)
			if err != nil {
				return err
			}

			batch, err := syn.SynthesizeAll(ctx, text, speakerID, cfg.Hyperparameters())
			if err != nil {
				return err
			}

			out, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := audio.WriteWAV(out, batch.Audio, batch.SampleRate); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}

			if timingsPath != "" {
				if err := writeTimings(timingsPath, batch.Words); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d ms, %d words)\n", outPath,
				audio.DurationMS(len(batch.Audio), batch.SampleRate), len(batch.Words))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "out.wav", "output WAV path")
	cmd.Flags().StringVar(&timingsPath, "timings", "", "write word timings as JSON to this path")
	cmd.Flags().StringVarP(&inputPath, "file", "f", "", "read text from a file instead of arguments")
	cmd.Flags().StringVar(&speaker, "speaker", "", "speaker name (default from SPEAKER)")
	cmd.Flags().BoolVar(&mock, "mock", false, "use the built-in mock engine")
	return cmd
}

// writeTimings stores words as indented JSON with tags left unescaped.
func writeTimings(path string, words []speech.WordTiming) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(words); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// loadConfig reads the server configuration, optionally forcing the mock
// engine so no model is needed.
func loadConfig(mock bool) (*config.Config, error) {
	if mock {
		if err := os.Setenv("ENGINE_BACKEND", config.BackendMock); err != nil {
			return nil, err
		}
	}
	return config.Load()
}
