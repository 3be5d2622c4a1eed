package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/lexiqai/tts-gateway/internal/audio"
	"github.com/lexiqai/tts-gateway/internal/config"
	"github.com/lexiqai/tts-gateway/internal/stream"
)

func streamCmd() *cobra.Command {
	var (
		url        string
		outPath    string
		sampleRate int
		outRate    int
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stream text [text...]",
		Short: "Send texts to the streaming endpoint one after another",
		Long: "Each argument is sent as one utterance; the next is sent once the\n" +
			"server answers EOF. Word timings are printed as they arrive.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), url, nil)
			if err != nil {
				return fmt.Errorf("dial %s: %w", url, err)
			}
			defer conn.Close()

			var samples []float32
			for i, text := range args {
				got, err := speak(conn, cmd.OutOrStdout(), i, text, timeout)
				if err != nil {
					return err
				}
				samples = append(samples, got...)
			}

			err = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				return fmt.Errorf("close %s: %w", url, err)
			}

			if outPath == "" {
				return nil
			}
			rate := sampleRate
			if outRate > 0 && outRate != sampleRate {
				samples = audio.Resample(samples, sampleRate, outRate)
				rate = outRate
			}
			out, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := audio.WriteWAV(out, samples, rate); err != nil {
				out.Close()
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d ms)\n", outPath, audio.DurationMS(len(samples), rate))
			return out.Close()
		},
	}
	cmd.Flags().StringVar(&url, "url", config.GetEnv("TTS_GATEWAY_URL", "ws://localhost:9009/tts/stream"), "streaming endpoint (env TTS_GATEWAY_URL)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write received audio to this WAV path")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", 44100, "sample rate of the server's engine, for --out")
	cmd.Flags().IntVar(&outRate, "out-rate", 0, "resample --out to this rate (default: keep --sample-rate)")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "maximum wait for each frame")
	return cmd
}

// speak sends one utterance and reads frames until EOF or an abort.
func speak(conn *websocket.Conn, w io.Writer, n int, text string, timeout time.Duration) ([]float32, error) {
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return nil, fmt.Errorf("send utterance %d: %w", n, err)
	}

	var samples []float32
	sentence := 0
	for {
		conn.SetReadDeadline(time.Now().Add(timeout))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read utterance %d: %w", n, err)
		}
		msg, err := stream.Decode(messageType, data)
		if err != nil {
			return nil, err
		}

		switch msg.Kind {
		case stream.KindTiming:
			for _, word := range msg.Words {
				fmt.Fprintf(w, "[%d.%d] %6d ms  %-20q %v\n", n, sentence, word.StartMS, word.Word, word.Tags)
			}
		case stream.KindAudio:
			pcm, err := audio.DecodePCM16(msg.Audio)
			if err != nil {
				return nil, err
			}
			samples = append(samples, pcm...)
			sentence++
		case stream.KindEndOfUtterance:
			fmt.Fprintf(w, "[%d] EOF after %d sentences\n", n, sentence)
			return samples, nil
		case stream.KindAborted:
			return nil, fmt.Errorf("utterance %d aborted by server: %s", n, msg.Aborted.Reason)
		}
	}
}
