// Command streamchat runs the streaming chat server and its terminal client.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "streamchat",
		Short:        "Streaming chat server backed by an OpenAI-compatible model",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newServeCommand(), newChatCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
