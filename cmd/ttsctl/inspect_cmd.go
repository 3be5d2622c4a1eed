package main

import (
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexiqai/tts-gateway/internal/audio"
)

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect file.wav [file.wav...]",
		Short: "Print sample rate, duration and levels of WAV files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				samples, rate, err := audio.ReadWAV(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}

				var peak float64
				for _, s := range samples {
					peak = math.Max(peak, math.Abs(float64(s)))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d Hz, %d samples, %d ms, rms %.4f, peak %.4f\n",
					path, rate, len(samples), audio.DurationMS(len(samples), rate), audio.RMS(samples), peak)
			}
			return nil
		},
	}
}
