// Package commands implements the podcaster command line.
package commands

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lexiqai/podcast-studio/internal/observability"
)

var (
	verbose bool
	quiet   bool

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "podcaster",
	Short: "Turn a document into a two-host podcast",
	Long: `Podcaster fetches a PDF or web page, has a language model summarize it and
write a two-host dialogue, then renders every turn with a VOICEVOX compatible
speech engine and joins the result into a single WAV file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func setupLogging() {
	level := "info"
	if verbose {
		level = "debug"
	}
	if quiet {
		level = "error"
	}
	logger = observability.NewLogger(os.Stderr, level, true)
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
}
