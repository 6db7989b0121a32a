package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "lostfound",
	Short:        "Campus lost-and-found feed server",
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().String("config", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().String("storage", "", "storage backend: memory or postgres (overrides storage.type)")

	rootCmd.AddCommand(serveCmd, adminsCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
