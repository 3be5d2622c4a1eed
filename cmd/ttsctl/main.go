// Command ttsctl is the command line companion to the gateway server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ttsctl",
		Short:         "TTS gateway command line tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(synthCmd())
	cmd.AddCommand(streamCmd())
	cmd.AddCommand(inspectCmd())
	cmd.AddCommand(workerCmd())
	cmd.AddCommand(serveEngineCmd())
	return cmd
}
