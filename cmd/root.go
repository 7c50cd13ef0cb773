// Package cmd defines the docsage command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docsage",
	Short: "Docsage - chat with your documents",
	Long: `Docsage is a retrieval-augmented document assistant.

Upload documents, and ask questions about them over a REST API. Answers
are grounded in the most relevant passages from your own files.

Run "docsage serve" to start the API server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
